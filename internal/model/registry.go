package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Variant names.
const (
	VariantLinear       = "linear"
	VariantRandomForest = "random_forest"
	VariantBoosted      = "boosted"
)

var (
	// ErrUnknownVariant is returned for a variant name that was never registered.
	ErrUnknownVariant = errors.New("unknown model variant")
	// ErrVariantDisabled is returned for the boosted variant when boosting is off.
	ErrVariantDisabled = errors.New("model variant disabled")
)

// Trainer fits the severity regressor and the claim classifier of one variant.
type Trainer interface {
	FitRegressor(ctx context.Context, x [][]float64, y []float64) (Regressor, error)
	FitClassifier(ctx context.Context, x [][]float64, y []float64) (Classifier, error)
}

// TrainConfig carries the knobs shared by trainer variants.
type TrainConfig struct {
	Trees           int
	Seed            int64
	Workers         int
	BoostingEnabled bool
}

// TrainerFactory builds a Trainer from the generic config.
type TrainerFactory func(TrainConfig) Trainer

type variant struct {
	factory TrainerFactory
	gated   bool
}

var variants = map[string]variant{}

// RegisterVariant registers a trainer under name. Gated variants are only
// available when TrainConfig.BoostingEnabled is set.
func RegisterVariant(name string, gated bool, f TrainerFactory) {
	variants[name] = variant{factory: f, gated: gated}
}

// GetVariant builds the named trainer.
func GetVariant(name string, cfg TrainConfig) (Trainer, error) {
	v, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownVariant, name, VariantNames(cfg))
	}
	if v.gated && !cfg.BoostingEnabled {
		return nil, fmt.Errorf("%w: %q requires boosting_enabled", ErrVariantDisabled, name)
	}
	return v.factory(cfg), nil
}

// VariantNames lists the variants usable under cfg, sorted.
func VariantNames(cfg TrainConfig) []string {
	var out []string
	for name, v := range variants {
		if v.gated && !cfg.BoostingEnabled {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type linearTrainer struct{}

func (linearTrainer) FitRegressor(_ context.Context, x [][]float64, y []float64) (Regressor, error) {
	m, err := FitLinearRegression(x, y)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (linearTrainer) FitClassifier(_ context.Context, x [][]float64, y []float64) (Classifier, error) {
	m, err := FitLogisticRegression(x, y, 1)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type forestTrainer struct{ params ForestParams }

func (t forestTrainer) FitRegressor(ctx context.Context, x [][]float64, y []float64) (Regressor, error) {
	m, err := FitRandomForestRegressor(ctx, x, y, t.params)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (t forestTrainer) FitClassifier(ctx context.Context, x [][]float64, y []float64) (Classifier, error) {
	m, err := FitRandomForestClassifier(ctx, x, y, t.params)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type boostTrainer struct{ params BoostParams }

func (t boostTrainer) FitRegressor(ctx context.Context, x [][]float64, y []float64) (Regressor, error) {
	m, err := FitBoostedRegressor(ctx, x, y, t.params)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (t boostTrainer) FitClassifier(ctx context.Context, x [][]float64, y []float64) (Classifier, error) {
	m, err := FitBoostedClassifier(ctx, x, y, t.params)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// init registers built-in variants.
func init() {
	RegisterVariant(VariantLinear, false, func(TrainConfig) Trainer { return linearTrainer{} })
	RegisterVariant(VariantRandomForest, false, func(c TrainConfig) Trainer {
		p := DefaultForestParams()
		if c.Trees > 0 {
			p.Trees = c.Trees
		}
		if c.Seed != 0 {
			p.Seed = c.Seed
		}
		p.Workers = c.Workers
		return forestTrainer{params: p}
	})
	RegisterVariant(VariantBoosted, true, func(c TrainConfig) Trainer {
		p := DefaultBoostParams()
		if c.Trees > 0 {
			p.Rounds = c.Trees
		}
		return boostTrainer{params: p}
	})
}
