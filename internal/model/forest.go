package model

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams configures a random forest. Workers <= 0 uses GOMAXPROCS.
type ForestParams struct {
	Trees   int        `json:"trees"`
	Seed    int64      `json:"seed"`
	Workers int        `json:"-"`
	Tree    TreeParams `json:"tree"`
}

// DefaultForestParams returns 100 trees seeded with 42, depth 16 and leaves of
// at least five rows.
func DefaultForestParams() ForestParams {
	return ForestParams{
		Trees: DefaultEstimators,
		Seed:  DefaultSeed,
		Tree:  TreeParams{MaxDepth: 16, MinSamplesSplit: 10, MinSamplesLeaf: 5},
	}
}

type forest struct {
	Trees       []*DecisionTree `json:"trees"`
	Importances []float64       `json:"importances"`
}

// RandomForestRegressor averages MSE trees grown on bootstrap samples.
type RandomForestRegressor struct {
	forest
	Params ForestParams `json:"params"`
}

// RandomForestClassifier averages leaf probabilities of Gini trees.
type RandomForestClassifier struct {
	forest
	Params ForestParams `json:"params"`
}

// FitRandomForestRegressor trains a regression forest.
func FitRandomForestRegressor(ctx context.Context, x [][]float64, y []float64, params ForestParams) (*RandomForestRegressor, error) {
	params.Tree.Criterion = MSE
	f, err := fitForest(ctx, x, y, params)
	if err != nil {
		return nil, err
	}
	return &RandomForestRegressor{forest: *f, Params: params}, nil
}

// FitRandomForestClassifier trains a classification forest on 0/1 labels.
func FitRandomForestClassifier(ctx context.Context, x [][]float64, y []float64, params ForestParams) (*RandomForestClassifier, error) {
	params.Tree.Criterion = Gini
	f, err := fitForest(ctx, x, y, params)
	if err != nil {
		return nil, err
	}
	return &RandomForestClassifier{forest: *f, Params: params}, nil
}

func fitForest(ctx context.Context, x [][]float64, y []float64, params ForestParams) (*forest, error) {
	p, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	if params.Trees <= 0 {
		params.Trees = DefaultEstimators
	}
	if params.Tree.MaxFeatures == 0 && params.Tree.Criterion == Gini {
		params.Tree.MaxFeatures = int(math.Max(1, math.Round(math.Sqrt(float64(p)))))
	}
	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Seeds are drawn up front so the result does not depend on scheduling.
	master := rand.New(rand.NewSource(params.Seed))
	seeds := make([]int64, params.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*DecisionTree, params.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			idx := make([]int, len(x))
			for k := range idx {
				idx[k] = rng.Intn(len(x))
			}
			t, err := growTree(x, y, idx, params.Tree, rng)
			if err != nil {
				return err
			}
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	imp := make([]float64, p)
	for _, t := range trees {
		for j, v := range t.Importances {
			imp[j] += v
		}
	}
	return &forest{Trees: trees, Importances: normalize(imp)}, nil
}

func (f *forest) mean(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var s float64
	for _, t := range f.Trees {
		s += t.PredictProba(x)
	}
	return s / float64(len(f.Trees))
}

// FeatureImportances returns the normalised mean of per-tree importances.
func (f *forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.Importances...)
}

// Predict returns the mean tree prediction.
func (m *RandomForestRegressor) Predict(x []float64) float64 { return m.mean(x) }

// PredictProba returns the mean leaf probability across trees.
func (m *RandomForestClassifier) PredictProba(x []float64) float64 { return m.mean(x) }

// Predict returns 1 when the mean probability exceeds 0.5.
func (m *RandomForestClassifier) Predict(x []float64) float64 {
	if m.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}
