package model

import (
	"encoding/json"
	"fmt"
)

// Model kinds recorded in the serialized envelope.
const (
	KindLinearRegression       = "linear_regression"
	KindLogisticRegression     = "logistic_regression"
	KindDecisionTree           = "decision_tree"
	KindRandomForestRegressor  = "random_forest_regressor"
	KindRandomForestClassifier = "random_forest_classifier"
	KindBoostedRegressor       = "boosted_regressor"
	KindBoostedClassifier      = "boosted_classifier"
)

type envelope struct {
	Kind  string          `json:"kind"`
	Model json.RawMessage `json:"model"`
}

// Kind names the concrete model type, or "" when it is not serializable.
func Kind(m any) string {
	switch m.(type) {
	case *LinearRegression:
		return KindLinearRegression
	case *LogisticRegression:
		return KindLogisticRegression
	case *DecisionTree:
		return KindDecisionTree
	case *RandomForestRegressor:
		return KindRandomForestRegressor
	case *RandomForestClassifier:
		return KindRandomForestClassifier
	case *BoostedRegressor:
		return KindBoostedRegressor
	case *BoostedClassifier:
		return KindBoostedClassifier
	}
	return ""
}

// Marshal wraps a model in a kind-tagged JSON envelope.
func Marshal(m any) ([]byte, error) {
	kind := Kind(m)
	if kind == "" {
		return nil, fmt.Errorf("%w: cannot serialize %T", ErrUnsupportedModel, m)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return json.MarshalIndent(envelope{Kind: kind, Model: body}, "", "  ")
}

// Unmarshal decodes an envelope produced by Marshal.
func Unmarshal(b []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}
	var m any
	switch env.Kind {
	case KindLinearRegression:
		m = &LinearRegression{}
	case KindLogisticRegression:
		m = &LogisticRegression{}
	case KindDecisionTree:
		m = &DecisionTree{}
	case KindRandomForestRegressor:
		m = &RandomForestRegressor{}
	case KindRandomForestClassifier:
		m = &RandomForestClassifier{}
	case KindBoostedRegressor:
		m = &BoostedRegressor{}
	case KindBoostedClassifier:
		m = &BoostedClassifier{}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrUnsupportedModel, env.Kind)
	}
	if err := json.Unmarshal(env.Model, m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return m, nil
}

// UnmarshalRegressor decodes a model and checks it predicts a continuous target.
func UnmarshalRegressor(b []byte) (Regressor, error) {
	m, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	switch v := m.(type) {
	case *LogisticRegression, *RandomForestClassifier, *BoostedClassifier:
		return nil, fmt.Errorf("%w: %s is a classifier", ErrUnsupportedModel, Kind(m))
	case *DecisionTree:
		if v.Criterion == Gini {
			return nil, fmt.Errorf("%w: gini tree is a classifier", ErrUnsupportedModel)
		}
	}
	r, ok := m.(Regressor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a regressor", ErrUnsupportedModel, Kind(m))
	}
	return r, nil
}

// UnmarshalClassifier decodes a model exposing PredictProba.
func UnmarshalClassifier(b []byte) (Classifier, error) {
	m, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	c, ok := m.(Classifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no probability output", ErrUnsupportedModel, Kind(m))
	}
	return c, nil
}
