package eda

import (
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ChartOptions controls chart rendering. The output format follows the file
// extension of the destination (.png, .svg, .pdf, ...).
type ChartOptions struct {
	Bins     int
	LogScale bool
	TopN     int
	Width    vg.Length
	Height   vg.Length
}

func (o ChartOptions) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 6 * vg.Inch
	}
	if h <= 0 {
		h = 4 * vg.Inch
	}
	return w, h
}

// Histogram saves a histogram of a numeric column. With LogScale the values
// plotted are log10 of the strictly positive values.
func Histogram(t *dataset.Table, col, path string, opt ChartOptions) error {
	vals, label, err := plotValues(t, col, opt.LogScale)
	if err != nil {
		return err
	}
	bins := opt.Bins
	if bins <= 0 {
		bins = 50
	}
	p := plot.New()
	p.Title.Text = col
	p.X.Label.Text = label
	p.Y.Label.Text = "Count"
	h, err := plotter.NewHist(plotter.Values(vals), bins)
	if err != nil {
		return fmt.Errorf("histogram %s: %w", col, err)
	}
	p.Add(h)
	w, ht := opt.size()
	if err := p.Save(w, ht, path); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	return nil
}

// BoxPlot saves a box plot of a numeric column.
func BoxPlot(t *dataset.Table, col, path string, opt ChartOptions) error {
	vals, label, err := plotValues(t, col, opt.LogScale)
	if err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = "Boxplot of " + col
	p.Y.Label.Text = label
	box, err := plotter.NewBoxPlot(vg.Points(40), 0, plotter.Values(vals))
	if err != nil {
		return fmt.Errorf("boxplot %s: %w", col, err)
	}
	p.Add(box)
	p.NominalX(col)
	w, h := opt.size()
	if opt.Width <= 0 {
		w = 3 * vg.Inch
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	return nil
}

// CategoryCountRow is one bar of a category count chart.
type CategoryCountRow struct {
	Value string
	Count int
}

// CountCategories counts values (nulls as NullKey) sorted by count descending,
// optionally keeping the top n.
func CountCategories(t *dataset.Table, col string, topN int) ([]CategoryCountRow, error) {
	c, ok := t.Column(col)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dataset.ErrMissingColumn, col)
	}
	counts := map[string]int{}
	for i := 0; i < c.Len(); i++ {
		v := NullKey
		if !c.IsNull(i) {
			v = c.String(i)
		}
		counts[v]++
	}
	out := make([]CategoryCountRow, 0, len(counts))
	for v, n := range counts {
		out = append(out, CategoryCountRow{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// CategoryCounts saves a bar chart of value counts for a column.
func CategoryCounts(t *dataset.Table, col, path string, opt ChartOptions) error {
	rows, err := CountCategories(t, col, opt.TopN)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("category counts %s: %w", col, ErrNoValues)
	}
	vals := make(plotter.Values, len(rows))
	names := make([]string, len(rows))
	for i, r := range rows {
		vals[i] = float64(r.Count)
		names[i] = r.Value
	}
	p := plot.New()
	p.Title.Text = "Count by " + col
	p.Y.Label.Text = "Count"
	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return fmt.Errorf("bar chart %s: %w", col, err)
	}
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	w, h := opt.size()
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	return nil
}

func plotValues(t *dataset.Table, col string, logScale bool) ([]float64, string, error) {
	c, ok := t.Column(col)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", dataset.ErrMissingColumn, col)
	}
	vals := c.NonNullFloats()
	label := col
	if logScale {
		pos := vals[:0]
		for _, v := range vals {
			if v > 0 {
				pos = append(pos, math.Log10(v))
			}
		}
		vals = pos
		label = "log10(" + col + ")"
	}
	if len(vals) == 0 {
		return nil, "", fmt.Errorf("plot %s: %w", col, ErrNoValues)
	}
	return vals, label, nil
}
