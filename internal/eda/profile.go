package eda

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"gonum.org/v1/gonum/stat"
)

// ProfileOptions controls Profile.
type ProfileOptions struct {
	// SampleRows is how many leading rows to echo in the report.
	SampleRows int
	// GroupBy computes per-group numeric summaries for the given columns.
	GroupBy []string
	// Correlations computes pairwise Pearson correlations among numeric columns.
	Correlations bool
	// Outliers counts values with robust |z| above OutlierThreshold (default 3.5).
	Outliers         bool
	OutlierThreshold float64
	// TopValues caps the categorical value counts per column (default 8).
	TopValues int
}

// DefaultProfileOptions returns the options used by `riskloom eda summary`.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{SampleRows: 5, Correlations: true, Outliers: true, OutlierThreshold: 3.5, TopValues: 8}
}

// Report is a descriptive profile of a table.
type Report struct {
	Name      string
	Rows      int
	Cols      []ColumnSummary
	Samples   [][]string
	Warnings  []string
	Groups    []GroupResult
	Corr      *CorrMatrix
	LossRatio *float64
}

// ColumnSummary captures the inferred kind and statistics of a column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric|datetime|categorical|text
	NonNull int
	Missing int
	Unique  int

	Min  float64
	Max  float64
	Mean float64
	Std  float64

	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64

	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult aggregates numeric columns for one group key.
type GroupResult struct {
	Key     string
	Size    int
	Metrics map[string]NumSummary
}

type NumSummary struct {
	Count          int
	Min, Max, Mean float64
}

// CorrMatrix is a symmetric Pearson correlation matrix.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64
}

// Profile summarises every column of t. Correlations use pairwise-complete rows.
func Profile(name string, t *dataset.Table, opt ProfileOptions) (*Report, error) {
	if opt.OutlierThreshold <= 0 {
		opt.OutlierThreshold = 3.5
	}
	if opt.TopValues <= 0 {
		opt.TopValues = 8
	}
	if err := t.Require(opt.GroupBy...); err != nil {
		return nil, err
	}
	rep := &Report{Name: name, Rows: t.Rows()}

	for i := 0; i < t.Rows() && i < opt.SampleRows; i++ {
		row := make([]string, len(t.Columns()))
		for j, c := range t.Columns() {
			row[j] = c.String(i)
		}
		rep.Samples = append(rep.Samples, row)
	}

	var numeric []*dataset.Column
	for _, c := range t.Columns() {
		s := summarizeColumn(c, opt)
		if s.Kind == "numeric" {
			numeric = append(numeric, c)
		}
		rep.Cols = append(rep.Cols, s)
	}

	if len(opt.GroupBy) > 0 {
		rep.Groups = groupSummaries(t, opt.GroupBy, numeric)
	}
	if opt.Correlations && len(numeric) >= 2 {
		rep.Corr = correlations(numeric)
	}
	if t.Has(PremiumColumn) && t.Has(ClaimsColumn) {
		if lr, err := LossRatioOverall(t); err == nil {
			rep.LossRatio = &lr
		}
	}
	if len(numeric) == 0 && t.Rows() > 0 {
		rep.Warnings = append(rep.Warnings, "no numeric columns detected")
	}
	return rep, nil
}

func summarizeColumn(c *dataset.Column, opt ProfileOptions) ColumnSummary {
	s := ColumnSummary{Name: c.Name, Missing: c.NullCount()}
	s.NonNull = c.Len() - s.Missing
	if c.Kind == dataset.KindNumeric {
		s.Kind = "numeric"
		vals := c.NonNullFloats()
		if len(vals) == 0 {
			return s
		}
		s.Min, s.Max = vals[0], vals[0]
		uniq := map[float64]struct{}{}
		for _, v := range vals {
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
			uniq[v] = struct{}{}
		}
		s.Unique = len(uniq)
		s.Mean = stat.Mean(vals, nil)
		if len(vals) > 1 {
			s.Std = stat.StdDev(vals, nil)
		}
		if opt.Outliers && len(vals) >= 8 {
			s.OutlierThreshold = opt.OutlierThreshold
			median, mad := medianMAD(vals)
			if mad > 0 {
				for _, v := range vals {
					az := math.Abs(0.6745 * (v - median) / mad)
					if az > opt.OutlierThreshold {
						s.OutliersCount++
					}
					s.OutliersMaxAbsZ = math.Max(s.OutliersMaxAbsZ, az)
				}
			}
		}
		return s
	}

	cats := map[string]int{}
	dates := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		v := c.Strs[i]
		if _, ok := parseTimeMaybe(v); ok {
			dates++
		}
		cats[v]++
		if len(s.ExampleTexts) < 3 {
			s.ExampleTexts = append(s.ExampleTexts, v)
		}
	}
	s.Unique = len(cats)
	switch {
	case s.NonNull > 0 && dates == s.NonNull:
		s.Kind = "datetime"
		s.ExampleTexts = nil
	case s.NonNull > 0 && (len(cats) <= 50 || len(cats)*2 <= s.NonNull):
		s.Kind = "categorical"
		s.ExampleTexts = nil
		tops := make([]CategoryCount, 0, len(cats))
		for k, v := range cats {
			tops = append(tops, CategoryCount{Value: k, Count: v})
		}
		sort.Slice(tops, func(i, j int) bool {
			if tops[i].Count == tops[j].Count {
				return tops[i].Value < tops[j].Value
			}
			return tops[i].Count > tops[j].Count
		})
		if len(tops) > opt.TopValues {
			tops = tops[:opt.TopValues]
		}
		s.TopValues = tops
	default:
		s.Kind = "text"
	}
	return s
}

func groupSummaries(t *dataset.Table, by []string, numeric []*dataset.Column) []GroupResult {
	keyCols := make([]*dataset.Column, len(by))
	for j, n := range by {
		keyCols[j], _ = t.Column(n)
	}
	groups := map[string]*GroupResult{}
	for i := 0; i < t.Rows(); i++ {
		parts := make([]string, len(keyCols))
		for j, c := range keyCols {
			v := NullKey
			if !c.IsNull(i) {
				v = c.String(i)
			}
			parts[j] = fmt.Sprintf("%s=%s", c.Name, safeVal(v))
		}
		key := strings.Join(parts, " | ")
		g := groups[key]
		if g == nil {
			g = &GroupResult{Key: key, Metrics: map[string]NumSummary{}}
			groups[key] = g
		}
		g.Size++
		for _, c := range numeric {
			x := c.Nums[i]
			if math.IsNaN(x) {
				continue
			}
			m, ok := g.Metrics[c.Name]
			if !ok {
				m = NumSummary{Min: x, Max: x}
			}
			m.Count++
			m.Min = math.Min(m.Min, x)
			m.Max = math.Max(m.Max, x)
			m.Mean += (x - m.Mean) / float64(m.Count)
			g.Metrics[c.Name] = m
		}
	}
	out := make([]GroupResult, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size == out[j].Size {
			return out[i].Key < out[j].Key
		}
		return out[i].Size > out[j].Size
	})
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

func correlations(numeric []*dataset.Column) *CorrMatrix {
	n := len(numeric)
	m := &CorrMatrix{Columns: make([]string, n), Values: make([][]float64, n)}
	for i, c := range numeric {
		m.Columns[i] = c.Name
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r := pairwisePearson(numeric[a].Nums, numeric[b].Nums)
			m.Values[a][b], m.Values[b][a] = r, r
		}
	}
	return m
}

// pairwisePearson correlates rows where both values are present; degenerate input yields 0.
func pairwisePearson(x, y []float64) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return 0
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// Markdown renders the report as plain sectioned text.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET PROFILE]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	fmt.Fprintf(&b, "Columns: %d\n", len(r.Cols))
	if r.LossRatio != nil {
		fmt.Fprintf(&b, "Overall loss ratio: %.4f\n", *r.LossRatio)
	}
	b.WriteString("\n[SCHEMA]\n")
	for _, c := range r.Cols {
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		switch c.Kind {
		case "numeric":
			if c.NonNull > 0 {
				fmt.Fprintf(&b, ": min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
			}
			if c.OutlierThreshold > 0 {
				fmt.Fprintf(&b, "; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold)
				if c.OutliersMaxAbsZ > 0 {
					fmt.Fprintf(&b, " (max |z|≈%.2f)", c.OutliersMaxAbsZ)
				}
			}
		case "categorical":
			if len(c.TopValues) > 0 {
				b.WriteString(": top ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
				}
				if c.Unique > len(c.TopValues) {
					fmt.Fprintf(&b, "; unique=%d", c.Unique)
				}
			}
		case "text":
			if len(c.ExampleTexts) > 0 {
				b.WriteString(": e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(r.Groups) > 0 {
		b.WriteString("\n[GROUP-BY SUMMARY]\n")
		for _, g := range r.Groups {
			fmt.Fprintf(&b, "- %s (n=%d)\n", g.Key, g.Size)
			keys := make([]string, 0, len(g.Metrics))
			for k := range g.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if len(keys) > 6 {
				keys = keys[:6]
			}
			for _, k := range keys {
				m := g.Metrics[k]
				fmt.Fprintf(&b, "  • %s: mean %.4g (min %.4g, max %.4g)\n", k, m.Mean, m.Min, m.Max)
			}
		}
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, pr{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, p := range pairs {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[SAMPLE ROWS]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n|")
		for range r.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
