package eda

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"gonum.org/v1/gonum/stat"
)

// DefaultQuantiles are the upper quantiles reported when none are given.
var DefaultQuantiles = []float64{0.75, 0.90, 0.95, 0.99}

// ErrNoValues is returned when a column has no non-null values to summarise.
var ErrNoValues = errors.New("no non-null values")

// QuantileRow holds the requested quantiles of one column.
type QuantileRow struct {
	Column string
	Labels []string
	Values []float64
}

// Get returns the value for a label such as "q90".
func (r QuantileRow) Get(label string) (float64, bool) {
	for i, l := range r.Labels {
		if l == label {
			return r.Values[i], true
		}
	}
	return 0, false
}

// QuantileLabel renders 0.9 as "q90".
func QuantileLabel(q float64) string {
	return fmt.Sprintf("q%d", int(q*100))
}

// HighQuantiles computes quantiles per column with linear interpolation between
// order statistics. Nulls are skipped; an all-null column yields NaN.
func HighQuantiles(t *dataset.Table, cols []string, qs []float64) ([]QuantileRow, error) {
	if err := t.Require(cols...); err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		qs = DefaultQuantiles
	}
	out := make([]QuantileRow, 0, len(cols))
	for _, name := range cols {
		c, _ := t.Column(name)
		vals := sortedValues(c)
		row := QuantileRow{Column: name, Labels: make([]string, len(qs)), Values: make([]float64, len(qs))}
		for i, q := range qs {
			row.Labels[i] = QuantileLabel(q)
			if len(vals) == 0 {
				row.Values[i] = math.NaN()
				continue
			}
			row.Values[i] = quantile(vals, q)
		}
		out = append(out, row)
	}
	return out, nil
}

// IQRBounds returns (Q1 - 1.5*IQR, Q3 + 1.5*IQR) over the non-null values.
func IQRBounds(t *dataset.Table, col string) (lower, upper float64, err error) {
	c, ok := t.Column(col)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", dataset.ErrMissingColumn, col)
	}
	vals := sortedValues(c)
	if len(vals) == 0 {
		return 0, 0, fmt.Errorf("iqr %s: %w", col, ErrNoValues)
	}
	q1 := quantile(vals, 0.25)
	q3 := quantile(vals, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr, nil
}

// Summary is a describe-style row for one numeric column.
type Summary struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"25%"`
	Q50    float64 `json:"50%"`
	Q75    float64 `json:"75%"`
	Max    float64 `json:"max"`
}

// Describe summarises numeric columns: count, mean, sample std, min, quartiles, max.
func Describe(t *dataset.Table, cols []string) ([]Summary, error) {
	if err := t.Require(cols...); err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(cols))
	for _, name := range cols {
		c, _ := t.Column(name)
		vals := sortedValues(c)
		s := Summary{Column: name, Count: len(vals)}
		if len(vals) == 0 {
			nan := math.NaN()
			s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
			out = append(out, s)
			continue
		}
		s.Mean = stat.Mean(vals, nil)
		s.Std = math.NaN()
		if len(vals) > 1 {
			s.Std = stat.StdDev(vals, nil)
		}
		s.Min, s.Max = vals[0], vals[len(vals)-1]
		s.Q25 = quantile(vals, 0.25)
		s.Q50 = quantile(vals, 0.5)
		s.Q75 = quantile(vals, 0.75)
		out = append(out, s)
	}
	return out, nil
}

func sortedValues(c *dataset.Column) []float64 {
	vals := c.NonNullFloats()
	sort.Float64s(vals)
	return vals
}

// quantile interpolates linearly at position q*(n-1) of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}
