// Package model trains and evaluates the severity regressors and claim
// probability classifiers, and serializes them for the artifact store.
package model

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultSeed and DefaultEstimators match the training defaults.
const (
	DefaultSeed       = 42
	DefaultEstimators = 100
)

var (
	// ErrUnsupportedModel is returned when a model lacks a requested capability.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrNotFitted is returned when predicting before training.
	ErrNotFitted = errors.New("model not fitted")
	// ErrBadShape reports mismatched training matrix and target sizes.
	ErrBadShape = errors.New("inconsistent input shape")
)

// Regressor predicts a continuous target.
type Regressor interface {
	Predict(x []float64) float64
}

// Classifier predicts a binary target. PredictProba returns P(y=1).
type Classifier interface {
	PredictProba(x []float64) float64
	Predict(x []float64) float64
}

// SupportsFeatureImportance is implemented by models that expose per-feature
// importances aligned with their training columns.
type SupportsFeatureImportance interface {
	FeatureImportances() []float64
}

// Importance pairs a feature name with its importance.
type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// FeatureImportance returns importances sorted descending. Models without the
// capability yield ErrUnsupportedModel.
func FeatureImportance(m any, names []string) ([]Importance, error) {
	fi, ok := m.(SupportsFeatureImportance)
	if !ok {
		return nil, fmt.Errorf("%w: %T does not expose feature importances", ErrUnsupportedModel, m)
	}
	vals := fi.FeatureImportances()
	if len(vals) != len(names) {
		return nil, fmt.Errorf("%w: %d importances for %d feature names", ErrBadShape, len(vals), len(names))
	}
	out := make([]Importance, len(vals))
	for i, v := range vals {
		out[i] = Importance{Feature: names[i], Importance: v}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

// PredictAll applies a regressor to every row.
func PredictAll(m Regressor, x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.Predict(row)
	}
	return out
}

// ClassifyAll applies a classifier's hard prediction to every row.
func ClassifyAll(m Classifier, x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.Predict(row)
	}
	return out
}

func checkShape(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, fmt.Errorf("%w: no training rows", ErrBadShape)
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrBadShape, len(x), len(y))
	}
	p := len(x[0])
	for i, row := range x {
		if len(row) != p {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrBadShape, i, len(row), p)
		}
	}
	return p, nil
}

func labelError(v float64, row int) error {
	return fmt.Errorf("%w: label %v at row %d is not 0/1", ErrBadShape, v, row)
}

func normalize(v []float64) []float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	out := make([]float64, len(v))
	if total <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}
