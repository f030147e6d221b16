package model

import (
	"math/rand"
	"sort"
)

// Criterion selects the split impurity.
type Criterion string

const (
	MSE  Criterion = "mse"
	Gini Criterion = "gini"
)

// TreeParams bounds tree growth. Zero MaxDepth means unlimited; zero
// MaxFeatures considers every feature at each split.
type TreeParams struct {
	Criterion       Criterion `json:"criterion"`
	MaxDepth        int       `json:"max_depth"`
	MinSamplesSplit int       `json:"min_samples_split"`
	MinSamplesLeaf  int       `json:"min_samples_leaf"`
	MaxFeatures     int       `json:"max_features"`
}

func (p TreeParams) withDefaults() TreeParams {
	if p.Criterion == "" {
		p.Criterion = MSE
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	return p
}

// Node is one flattened tree node. Leaves carry the mean target, which for
// Gini trees is the positive-class fraction.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf,omitempty"`
}

// DecisionTree is a CART tree. Rows go left when x[Feature] <= Threshold.
type DecisionTree struct {
	Criterion   Criterion `json:"criterion"`
	NFeatures   int       `json:"n_features"`
	Nodes       []Node    `json:"nodes"`
	Importances []float64 `json:"importances"`
}

// FitDecisionTree grows a tree on all rows. rng may be nil when MaxFeatures
// does not subsample.
func FitDecisionTree(x [][]float64, y []float64, params TreeParams, rng *rand.Rand) (*DecisionTree, error) {
	if _, err := checkShape(x, y); err != nil {
		return nil, err
	}
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	return growTree(x, y, idx, params, rng)
}

func growTree(x [][]float64, y []float64, idx []int, params TreeParams, rng *rand.Rand) (*DecisionTree, error) {
	params = params.withDefaults()
	if params.Criterion == Gini {
		for _, i := range idx {
			if y[i] != 0 && y[i] != 1 {
				return nil, labelError(y[i], i)
			}
		}
	}
	p := len(x[0])
	b := &treeBuilder{x: x, y: y, params: params, rng: rng, p: p, gain: make([]float64, p)}
	b.tree = &DecisionTree{Criterion: params.Criterion, NFeatures: p}
	b.build(idx, 0)
	b.tree.Importances = normalize(b.gain)
	return b.tree, nil
}

type treeBuilder struct {
	x      [][]float64
	y      []float64
	params TreeParams
	rng    *rand.Rand
	p      int
	tree   *DecisionTree
	gain   []float64
}

type split struct {
	ok        bool
	feature   int
	threshold float64
	gain      float64
}

func (b *treeBuilder) sums(idx []int) (s, ss float64) {
	for _, i := range idx {
		v := b.y[i]
		s += v
		ss += v * v
	}
	return
}

// sse is n times the node impurity; for 0/1 labels it is proportional to Gini.
func sse(n, s, ss float64) float64 {
	if n == 0 {
		return 0
	}
	return ss - s*s/n
}

func (b *treeBuilder) build(idx []int, depth int) int {
	s, ss := b.sums(idx)
	n := float64(len(idx))
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Leaf: true, Value: s / n})

	parent := sse(n, s, ss)
	if (b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) || len(idx) < b.params.MinSamplesSplit || parent <= 1e-12 {
		return id
	}
	best := b.bestSplit(idx, parent)
	if !best.ok {
		return id
	}
	var left, right []int
	for _, i := range idx {
		if b.x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.gain[best.feature] += best.gain
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.tree.Nodes[id] = Node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r, Value: s / n}
	return id
}

func (b *treeBuilder) candidates() []int {
	k := b.params.MaxFeatures
	if k <= 0 || k >= b.p || b.rng == nil {
		all := make([]int, b.p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(b.p)[:k]
}

func (b *treeBuilder) bestSplit(idx []int, parent float64) split {
	var best split
	order := make([]int, len(idx))
	minLeaf := b.params.MinSamplesLeaf
	totS, totSS := b.sums(idx)
	for _, f := range b.candidates() {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.x[order[a]][f] < b.x[order[c]][f] })
		var ls, lss float64
		for k := 0; k < len(order)-1; k++ {
			v := b.y[order[k]]
			ls += v
			lss += v * v
			xk, xn := b.x[order[k]][f], b.x[order[k+1]][f]
			if xk == xn {
				continue
			}
			nl := k + 1
			nr := len(order) - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			g := parent - sse(float64(nl), ls, lss) - sse(float64(nr), totS-ls, totSS-lss)
			if g > best.gain+1e-12 {
				best = split{ok: true, feature: f, threshold: xk + (xn-xk)/2, gain: g}
			}
		}
	}
	return best
}

// leaf returns the index of the leaf x falls into.
func (t *DecisionTree) leaf(x []float64) int {
	i := 0
	for !t.Nodes[i].Leaf {
		nd := t.Nodes[i]
		if nd.Feature < len(x) && x[nd.Feature] <= nd.Threshold {
			i = nd.Left
		} else {
			i = nd.Right
		}
	}
	return i
}

// Predict returns the leaf value for MSE trees and the majority class for Gini trees.
func (t *DecisionTree) Predict(x []float64) float64 {
	v := t.Nodes[t.leaf(x)].Value
	if t.Criterion == Gini {
		if v > 0.5 {
			return 1
		}
		return 0
	}
	return v
}

// PredictProba returns the positive-class fraction of the leaf.
func (t *DecisionTree) PredictProba(x []float64) float64 {
	return t.Nodes[t.leaf(x)].Value
}

// FeatureImportances returns normalised impurity decrease per feature.
func (t *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), t.Importances...)
}
