package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// RegressionMetrics summarises regression predictions.
type RegressionMetrics struct {
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// ClassificationMetrics summarises binary predictions for the positive class.
type ClassificationMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// EvaluateRegression returns RMSE and the coefficient of determination.
func EvaluateRegression(yTrue, yPred []float64) (RegressionMetrics, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return RegressionMetrics{}, fmt.Errorf("%w: %d targets, %d predictions", ErrBadShape, len(yTrue), len(yPred))
	}
	var sse float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sse += d * d
	}
	m := RegressionMetrics{RMSE: math.Sqrt(sse / float64(len(yTrue)))}
	m.R2 = stat.RSquaredFrom(yPred, yTrue, nil)
	if math.IsNaN(m.R2) || math.IsInf(m.R2, 0) {
		m.R2 = 0
	}
	return m, nil
}

// EvaluateClassification computes accuracy, precision, recall and F1 with
// label 1 as positive. Zero denominators yield 0.
func EvaluateClassification(yTrue, yPred []float64) (ClassificationMetrics, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return ClassificationMetrics{}, fmt.Errorf("%w: %d targets, %d predictions", ErrBadShape, len(yTrue), len(yPred))
	}
	var tp, fp, fn, correct float64
	for i := range yTrue {
		t, p := yTrue[i] == 1, yPred[i] == 1
		switch {
		case t && p:
			tp++
		case !t && p:
			fp++
		case t && !p:
			fn++
		}
		if t == p {
			correct++
		}
	}
	m := ClassificationMetrics{
		Accuracy:  correct / float64(len(yTrue)),
		Precision: safeDiv(tp, tp+fp),
		Recall:    safeDiv(tp, tp+fn),
	}
	m.F1 = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
	return m, nil
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
