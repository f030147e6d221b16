// Package eda holds exploratory helpers over a dataset.Table: missingness,
// quantiles and outlier bounds, loss ratios, descriptive profiling and charts.
package eda

import (
	"sort"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
)

// MissingRow reports null counts for one column.
type MissingRow struct {
	Column       string  `json:"column"`
	MissingCount int     `json:"missing_count"`
	MissingPct   float64 `json:"missing_pct"`
}

// Missingness returns per-column null counts and percentages (0-100), sorted by
// percentage descending. An empty table yields an empty slice.
func Missingness(t *dataset.Table) []MissingRow {
	if t.Rows() == 0 {
		return []MissingRow{}
	}
	out := make([]MissingRow, 0, len(t.Columns()))
	total := float64(t.Rows())
	for _, c := range t.Columns() {
		n := c.NullCount()
		out = append(out, MissingRow{Column: c.Name, MissingCount: n, MissingPct: float64(n) / total * 100})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MissingPct == out[j].MissingPct {
			return out[i].Column < out[j].Column
		}
		return out[i].MissingPct > out[j].MissingPct
	})
	return out
}
