package model

import (
	"context"
	"math"
)

// BoostParams configures gradient boosting.
type BoostParams struct {
	Rounds       int        `json:"rounds"`
	LearningRate float64    `json:"learning_rate"`
	Tree         TreeParams `json:"tree"`
}

// DefaultBoostParams returns 100 rounds of depth-4 trees at rate 0.1.
func DefaultBoostParams() BoostParams {
	return BoostParams{
		Rounds:       DefaultEstimators,
		LearningRate: 0.1,
		Tree:         TreeParams{MaxDepth: 4, MinSamplesLeaf: 5},
	}
}

func (p BoostParams) withDefaults() BoostParams {
	d := DefaultBoostParams()
	if p.Rounds <= 0 {
		p.Rounds = d.Rounds
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.Tree.MaxDepth == 0 {
		p.Tree.MaxDepth = d.Tree.MaxDepth
	}
	p.Tree.Criterion = MSE
	return p
}

type ensemble struct {
	Init         float64         `json:"init"`
	LearningRate float64         `json:"learning_rate"`
	Trees        []*DecisionTree `json:"trees"`
	Importances  []float64       `json:"importances"`
}

func (e *ensemble) raw(x []float64) float64 {
	s := e.Init
	for _, t := range e.Trees {
		s += e.LearningRate * t.Nodes[t.leaf(x)].Value
	}
	return s
}

// FeatureImportances returns normalised split gain summed over rounds.
func (e *ensemble) FeatureImportances() []float64 {
	return append([]float64(nil), e.Importances...)
}

// BoostedRegressor is gradient boosting on squared loss.
type BoostedRegressor struct {
	ensemble
}

// BoostedClassifier is gradient boosting on logistic loss. Raw scores are
// log-odds.
type BoostedClassifier struct {
	ensemble
}

// FitBoostedRegressor fits residuals of the running prediction each round.
func FitBoostedRegressor(ctx context.Context, x [][]float64, y []float64, params BoostParams) (*BoostedRegressor, error) {
	p, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	params = params.withDefaults()
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	m := &BoostedRegressor{ensemble{Init: mean, LearningRate: params.LearningRate}}
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = mean
	}
	gain := make([]float64, p)
	resid := make([]float64, len(y))
	for r := 0; r < params.Rounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range y {
			resid[i] = y[i] - pred[i]
		}
		t, err := FitDecisionTree(x, resid, params.Tree, nil)
		if err != nil {
			return nil, err
		}
		addGain(gain, t)
		for i, row := range x {
			pred[i] += params.LearningRate * t.Nodes[t.leaf(row)].Value
		}
		m.Trees = append(m.Trees, t)
	}
	m.Importances = normalize(gain)
	return m, nil
}

// FitBoostedClassifier starts from the prior log-odds and refits each tree's
// leaves with a single Newton step.
func FitBoostedClassifier(ctx context.Context, x [][]float64, y []float64, params BoostParams) (*BoostedClassifier, error) {
	p, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	var pos float64
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, labelError(v, i)
		}
		pos += v
	}
	params = params.withDefaults()
	prior := math.Min(math.Max(pos/float64(len(y)), 1e-6), 1-1e-6)
	init := math.Log(prior / (1 - prior))

	m := &BoostedClassifier{ensemble{Init: init, LearningRate: params.LearningRate}}
	score := make([]float64, len(y))
	for i := range score {
		score[i] = init
	}
	gain := make([]float64, p)
	resid := make([]float64, len(y))
	prob := make([]float64, len(y))
	leafOf := make([]int, len(y))
	for r := 0; r < params.Rounds; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range y {
			prob[i] = sigmoid(score[i])
			resid[i] = y[i] - prob[i]
		}
		t, err := FitDecisionTree(x, resid, params.Tree, nil)
		if err != nil {
			return nil, err
		}
		num := make(map[int]float64)
		den := make(map[int]float64)
		for i, row := range x {
			l := t.leaf(row)
			leafOf[i] = l
			num[l] += resid[i]
			den[l] += prob[i] * (1 - prob[i])
		}
		for l, n := range num {
			v := 0.0
			if den[l] > 1e-12 {
				v = n / den[l]
			}
			t.Nodes[l].Value = v
		}
		addGain(gain, t)
		for i := range score {
			score[i] += params.LearningRate * t.Nodes[leafOf[i]].Value
		}
		m.Trees = append(m.Trees, t)
	}
	m.Importances = normalize(gain)
	return m, nil
}

func addGain(total []float64, t *DecisionTree) {
	for j, v := range t.Importances {
		total[j] += v
	}
}

// Predict returns the boosted estimate.
func (m *BoostedRegressor) Predict(x []float64) float64 { return m.raw(x) }

// PredictProba returns the sigmoid of the boosted log-odds.
func (m *BoostedClassifier) PredictProba(x []float64) float64 { return sigmoid(m.raw(x)) }

// Predict returns 1 when the probability exceeds 0.5.
func (m *BoostedClassifier) Predict(x []float64) float64 {
	if m.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}
