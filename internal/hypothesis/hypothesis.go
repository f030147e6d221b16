// Package hypothesis runs the portfolio significance tests (chi-squared,
// Welch's t-test and one-way ANOVA) over a dataset.Table.
package hypothesis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the significance level used when none is configured.
const DefaultAlpha = 0.05

// Derived column names.
const (
	ClaimFlagColumn = "has_claim"
	MarginColumn    = "margin"
)

// ErrInvalidInput reports arguments or data a test cannot be run on.
var ErrInvalidInput = errors.New("invalid test input")

// Result is the uniform output of every test.
type Result struct {
	Test       string  `json:"test"`
	Statistic  float64 `json:"statistic"`
	PValue     float64 `json:"p_value"`
	DoF        float64 `json:"dof"`
	Alpha      float64 `json:"alpha"`
	RejectNull bool    `json:"reject_null"`
}

func newResult(test string, statistic, p, dof, alpha float64) Result {
	return Result{Test: test, Statistic: statistic, PValue: p, DoF: dof, Alpha: alpha, RejectNull: p < alpha}
}

func (r Result) String() string {
	verdict := "fail to reject H0"
	if r.RejectNull {
		verdict = "reject H0"
	}
	return fmt.Sprintf("%s: statistic=%.4f p=%.4g dof=%.4g alpha=%.2f -> %s", r.Test, r.Statistic, r.PValue, r.DoF, r.Alpha, verdict)
}

// AddClaimFlag returns a copy of t with has_claim = 1 when TotalClaims > 0, else 0.
func AddClaimFlag(t *dataset.Table) (*dataset.Table, error) {
	claims, err := t.Floats("TotalClaims")
	if err != nil {
		return nil, err
	}
	flag := make([]float64, len(claims))
	for i, c := range claims {
		if c > 0 {
			flag[i] = 1
		}
	}
	out := t.Drop()
	if err := out.Set(dataset.NewNumericColumn(ClaimFlagColumn, flag)); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMargin returns a copy of t with margin = TotalPremium - TotalClaims.
func AddMargin(t *dataset.Table) (*dataset.Table, error) {
	prem, err := t.Floats("TotalPremium")
	if err != nil {
		return nil, err
	}
	claims, err := t.Floats("TotalClaims")
	if err != nil {
		return nil, err
	}
	margin := make([]float64, len(prem))
	for i := range prem {
		margin[i] = prem[i] - claims[i]
	}
	out := t.Drop()
	if err := out.Set(dataset.NewNumericColumn(MarginColumn, margin)); err != nil {
		return nil, err
	}
	return out, nil
}

func checkAlpha(alpha float64) error {
	if !(alpha > 0 && alpha < 1) {
		return fmt.Errorf("%w: alpha %v outside (0, 1)", ErrInvalidInput, alpha)
	}
	return nil
}

func columns(t *dataset.Table, names ...string) ([]*dataset.Column, error) {
	if err := t.Require(names...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	out := make([]*dataset.Column, len(names))
	for i, n := range names {
		out[i], _ = t.Column(n)
	}
	return out, nil
}

// ChiSquared tests independence of group and outcome on their contingency
// table. Rows with a null group or outcome are ignored. A 2x2 table gets
// Yates' continuity correction.
func ChiSquared(t *dataset.Table, group, outcome string, alpha float64) (Result, error) {
	if err := checkAlpha(alpha); err != nil {
		return Result{}, err
	}
	cols, err := columns(t, group, outcome)
	if err != nil {
		return Result{}, err
	}
	g, o := cols[0], cols[1]
	counts := map[[2]string]float64{}
	rowSet, colSet := map[string]struct{}{}, map[string]struct{}{}
	for i := 0; i < t.Rows(); i++ {
		if g.IsNull(i) || o.IsNull(i) {
			continue
		}
		r, c := g.String(i), o.String(i)
		counts[[2]string{r, c}]++
		rowSet[r] = struct{}{}
		colSet[c] = struct{}{}
	}
	rows, cs := sortedKeys(rowSet), sortedKeys(colSet)
	if len(rows) < 2 || len(cs) < 2 {
		return Result{}, fmt.Errorf("%w: contingency table needs at least two groups and two outcomes, got %dx%d", ErrInvalidInput, len(rows), len(cs))
	}
	rowTot := make([]float64, len(rows))
	colTot := make([]float64, len(cs))
	var total float64
	for i, r := range rows {
		for j, c := range cs {
			n := counts[[2]string{r, c}]
			rowTot[i] += n
			colTot[j] += n
			total += n
		}
	}
	dof := float64((len(rows) - 1) * (len(cs) - 1))
	var chi2 float64
	for i, r := range rows {
		for j, c := range cs {
			obs := counts[[2]string{r, c}]
			exp := rowTot[i] * colTot[j] / total
			diff := math.Abs(obs - exp)
			if dof == 1 {
				diff = math.Max(0, diff-math.Min(0.5, diff))
			}
			chi2 += diff * diff / exp
		}
	}
	p := distuv.ChiSquared{K: dof}.Survival(chi2)
	return newResult("chi-squared", chi2, p, dof, alpha), nil
}

// WelchTTest compares the mean of value between the rows where group equals a
// and where it equals b, without assuming equal variances. The p-value is two-sided.
func WelchTTest(t *dataset.Table, group, value, a, b string, alpha float64) (Result, error) {
	if err := checkAlpha(alpha); err != nil {
		return Result{}, err
	}
	if a == b {
		return Result{}, fmt.Errorf("%w: groups must differ", ErrInvalidInput)
	}
	samples, err := split(t, group, value)
	if err != nil {
		return Result{}, err
	}
	xa, xb := samples[a], samples[b]
	if len(xa) < 2 || len(xb) < 2 {
		return Result{}, fmt.Errorf("%w: t-test needs two values per group (%s=%d, %s=%d)", ErrInvalidInput, a, len(xa), b, len(xb))
	}
	ma, va := stat.MeanVariance(xa, nil)
	mb, vb := stat.MeanVariance(xb, nil)
	sa, sb := va/float64(len(xa)), vb/float64(len(xb))
	se := math.Sqrt(sa + sb)
	if se == 0 {
		return Result{}, fmt.Errorf("%w: both samples have zero variance", ErrInvalidInput)
	}
	tstat := (ma - mb) / se
	df := (sa + sb) * (sa + sb) / (sa*sa/float64(len(xa)-1) + sb*sb/float64(len(xb)-1))
	p := 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(tstat))
	return newResult("welch t-test", tstat, math.Min(1, p), df, alpha), nil
}

// ANOVA runs a one-way F test of equal means across every distinct group value.
func ANOVA(t *dataset.Table, group, value string, alpha float64) (Result, error) {
	if err := checkAlpha(alpha); err != nil {
		return Result{}, err
	}
	samples, err := split(t, group, value)
	if err != nil {
		return Result{}, err
	}
	var groups [][]float64
	var n int
	var grand float64
	for _, k := range sortedKeys(samples) {
		xs := samples[k]
		if len(xs) == 0 {
			continue
		}
		groups = append(groups, xs)
		n += len(xs)
		grand += sum(xs)
	}
	k := len(groups)
	if k < 2 {
		return Result{}, fmt.Errorf("%w: anova needs at least two non-empty groups, got %d", ErrInvalidInput, k)
	}
	if n-k < 1 {
		return Result{}, fmt.Errorf("%w: anova needs more observations than groups", ErrInvalidInput)
	}
	grand /= float64(n)
	var ssb, ssw float64
	for _, xs := range groups {
		m := stat.Mean(xs, nil)
		ssb += float64(len(xs)) * (m - grand) * (m - grand)
		for _, x := range xs {
			ssw += (x - m) * (x - m)
		}
	}
	if ssw == 0 {
		return Result{}, fmt.Errorf("%w: zero within-group variance", ErrInvalidInput)
	}
	d1, d2 := float64(k-1), float64(n-k)
	f := (ssb / d1) / (ssw / d2)
	p := 1 - distuv.F{D1: d1, D2: d2}.CDF(f)
	return newResult("one-way anova", f, p, d1, alpha), nil
}

// split groups the non-null values of value by the string form of group.
func split(t *dataset.Table, group, value string) (map[string][]float64, error) {
	cols, err := columns(t, group, value)
	if err != nil {
		return nil, err
	}
	g, v := cols[0], cols[1]
	out := map[string][]float64{}
	for i := 0; i < t.Rows(); i++ {
		if g.IsNull(i) {
			continue
		}
		x := v.Float(i)
		if math.IsNaN(x) {
			continue
		}
		out[g.String(i)] = append(out[g.String(i)], x)
	}
	return out, nil
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
