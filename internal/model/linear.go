package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression is ordinary least squares with an intercept.
type LinearRegression struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
}

// FitLinearRegression solves the least-squares problem with a thin SVD, which
// yields the minimum-norm solution when columns are collinear.
func FitLinearRegression(x [][]float64, y []float64) (*LinearRegression, error) {
	p, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	n := len(x)
	a := mat.NewDense(n, p+1, nil)
	for i, row := range x {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("linear regression: SVD did not converge")
	}
	rank := svd.Rank(1e-12)
	if rank == 0 {
		return &LinearRegression{Coef: make([]float64, p)}, nil
	}
	var beta mat.VecDense
	svd.SolveVecTo(&beta, mat.NewVecDense(n, append([]float64(nil), y...)), rank)
	m := &LinearRegression{Intercept: beta.AtVec(0), Coef: make([]float64, p)}
	for j := range m.Coef {
		m.Coef[j] = beta.AtVec(j + 1)
	}
	return m, nil
}

// Predict returns intercept + coef·x.
func (m *LinearRegression) Predict(x []float64) float64 {
	out := m.Intercept
	for j, c := range m.Coef {
		if j < len(x) {
			out += c * x[j]
		}
	}
	return out
}

// LogisticRegression is an L2-regularised binary classifier fitted by Newton's
// method on standardised features.
type LogisticRegression struct {
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
	Mean      []float64 `json:"mean"`
	Scale     []float64 `json:"scale"`
	Lambda    float64   `json:"lambda"`
}

// FitLogisticRegression fits P(y=1|x) with penalty lambda on the coefficients
// (not the intercept). Labels must be 0 or 1.
func FitLogisticRegression(x [][]float64, y []float64, lambda float64) (*LogisticRegression, error) {
	p, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, labelError(v, i)
		}
	}
	if lambda <= 0 {
		lambda = 1
	}
	m := &LogisticRegression{Coef: make([]float64, p), Mean: make([]float64, p), Scale: make([]float64, p), Lambda: lambda}
	n := float64(len(x))
	for j := 0; j < p; j++ {
		var s, ss float64
		for _, row := range x {
			s += row[j]
		}
		m.Mean[j] = s / n
		for _, row := range x {
			d := row[j] - m.Mean[j]
			ss += d * d
		}
		m.Scale[j] = math.Sqrt(ss / n)
		if m.Scale[j] == 0 {
			m.Scale[j] = 1
		}
	}
	z := make([][]float64, len(x))
	for i, row := range x {
		z[i] = m.standardize(row)
	}

	w := make([]float64, p+1) // w[0] is the intercept
	for iter := 0; iter < 100; iter++ {
		h := mat.NewSymDense(p+1, nil)
		g := mat.NewVecDense(p+1, nil)
		for i, row := range z {
			mu := sigmoid(dotBias(w, row))
			r := mu - y[i]
			s := math.Max(mu*(1-mu), 1e-10)
			for a := 0; a <= p; a++ {
				xa := feature(row, a)
				g.SetVec(a, g.AtVec(a)+r*xa)
				for b := a; b <= p; b++ {
					h.SetSym(a, b, h.At(a, b)+s*xa*feature(row, b))
				}
			}
		}
		for a := 1; a <= p; a++ {
			g.SetVec(a, g.AtVec(a)+lambda*w[a])
			h.SetSym(a, a, h.At(a, a)+lambda)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(h); !ok {
			return nil, fmt.Errorf("logistic regression: hessian not positive definite at iteration %d", iter)
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, g); err != nil {
			return nil, fmt.Errorf("logistic regression: %w", err)
		}
		var maxStep float64
		for a := range w {
			w[a] -= step.AtVec(a)
			maxStep = math.Max(maxStep, math.Abs(step.AtVec(a)))
		}
		if maxStep < 1e-8 {
			break
		}
	}
	m.Intercept = w[0]
	copy(m.Coef, w[1:])
	return m, nil
}

func (m *LogisticRegression) standardize(x []float64) []float64 {
	out := make([]float64, len(m.Mean))
	for j := range out {
		if j < len(x) {
			out[j] = (x[j] - m.Mean[j]) / m.Scale[j]
		}
	}
	return out
}

// PredictProba returns P(y=1|x).
func (m *LogisticRegression) PredictProba(x []float64) float64 {
	z := m.standardize(x)
	s := m.Intercept
	for j, c := range m.Coef {
		s += c * z[j]
	}
	return sigmoid(s)
}

// Predict returns 1 when the probability exceeds 0.5.
func (m *LogisticRegression) Predict(x []float64) float64 {
	if m.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}

func dotBias(w, row []float64) float64 {
	s := w[0]
	for j, v := range row {
		s += w[j+1] * v
	}
	return s
}

func feature(row []float64, a int) float64 {
	if a == 0 {
		return 1
	}
	return row[a-1]
}
