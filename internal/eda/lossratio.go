package eda

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
)

// Column names used by the loss-ratio helpers.
const (
	PremiumColumn = "TotalPremium"
	ClaimsColumn  = "TotalClaims"
	MonthColumn   = "TransactionMonth"
	PostalColumn  = "PostalCode"
)

// NullKey labels the group of rows whose key column is null.
const NullKey = "<NA>"

// LossRatio divides claims by premium, returning 0 for a zero premium.
func LossRatio(claims, premium float64) float64 {
	if premium == 0 {
		return 0
	}
	return claims / premium
}

// LossRatioOverall returns sum(TotalClaims) / sum(TotalPremium) over the table.
func LossRatioOverall(t *dataset.Table) (float64, error) {
	prem, claims, err := premiumClaims(t)
	if err != nil {
		return 0, err
	}
	var p, c float64
	for i := 0; i < t.Rows(); i++ {
		p += nz(prem.Float(i))
		c += nz(claims.Float(i))
	}
	return LossRatio(c, p), nil
}

// GroupLossRatio is one group's premium and claim totals.
type GroupLossRatio struct {
	Keys         []string `json:"keys"`
	TotalPremium float64  `json:"total_premium"`
	TotalClaims  float64  `json:"total_claims"`
	LossRatio    float64  `json:"loss_ratio"`
}

// LossRatioByGroup aggregates totals by one or more columns. Null keys form
// their own group labelled NullKey and sort after every other value.
func LossRatioByGroup(t *dataset.Table, groupCols []string) ([]GroupLossRatio, error) {
	if len(groupCols) == 0 {
		return nil, fmt.Errorf("loss ratio by group: no group columns")
	}
	prem, claims, err := premiumClaims(t)
	if err != nil {
		return nil, err
	}
	if err := t.Require(groupCols...); err != nil {
		return nil, err
	}
	keyCols := make([]*dataset.Column, len(groupCols))
	for j, n := range groupCols {
		keyCols[j], _ = t.Column(n)
	}
	groups := map[string]*GroupLossRatio{}
	var order []*GroupLossRatio
	for i := 0; i < t.Rows(); i++ {
		keys := make([]string, len(keyCols))
		for j, c := range keyCols {
			if c.IsNull(i) {
				keys[j] = NullKey
			} else {
				keys[j] = c.String(i)
			}
		}
		id := strings.Join(keys, "\x00")
		g := groups[id]
		if g == nil {
			g = &GroupLossRatio{Keys: keys}
			groups[id] = g
			order = append(order, g)
		}
		g.TotalPremium += nz(prem.Float(i))
		g.TotalClaims += nz(claims.Float(i))
	}
	out := make([]GroupLossRatio, len(order))
	for i, g := range order {
		g.LossRatio = LossRatio(g.TotalClaims, g.TotalPremium)
		out[i] = *g
	}
	sort.Slice(out, func(a, b int) bool {
		for j := range out[a].Keys {
			if c := compareKeys(out[a].Keys[j], out[b].Keys[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out, nil
}

// MonthlyLossRatio is one calendar month of totals.
type MonthlyLossRatio struct {
	Month        time.Time `json:"month"`
	TotalPremium float64   `json:"total_premium"`
	TotalClaims  float64   `json:"total_claims"`
	LossRatio    float64   `json:"loss_ratio"`
}

// MonthlyLossRatios resamples the table by TransactionMonth truncated to the
// first of the month. Rows with a null date are skipped; an unparseable date is an error.
func MonthlyLossRatios(t *dataset.Table) ([]MonthlyLossRatio, error) {
	if err := t.Require(MonthColumn); err != nil {
		return nil, err
	}
	prem, claims, err := premiumClaims(t)
	if err != nil {
		return nil, err
	}
	months, err := monthKeys(t)
	if err != nil {
		return nil, err
	}
	byMonth := map[time.Time]*MonthlyLossRatio{}
	for i, m := range months {
		if m.IsZero() {
			continue
		}
		r := byMonth[m]
		if r == nil {
			r = &MonthlyLossRatio{Month: m}
			byMonth[m] = r
		}
		r.TotalPremium += nz(prem.Float(i))
		r.TotalClaims += nz(claims.Float(i))
	}
	out := make([]MonthlyLossRatio, 0, len(byMonth))
	for _, r := range byMonth {
		r.LossRatio = LossRatio(r.TotalClaims, r.TotalPremium)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

// PostalMonth is one PostalCode x month cell of totals.
type PostalMonth struct {
	PostalCode   string    `json:"postal_code"`
	Month        time.Time `json:"month"`
	TotalPremium float64   `json:"total_premium"`
	TotalClaims  float64   `json:"total_claims"`
	LossRatio    float64   `json:"loss_ratio"`
}

// MonthlyTotalsByPostal aggregates premium and claims per PostalCode and month.
// Rows with a null postal code or date are skipped.
func MonthlyTotalsByPostal(t *dataset.Table) ([]PostalMonth, error) {
	if err := t.Require(PostalColumn, MonthColumn); err != nil {
		return nil, err
	}
	prem, claims, err := premiumClaims(t)
	if err != nil {
		return nil, err
	}
	months, err := monthKeys(t)
	if err != nil {
		return nil, err
	}
	postal, _ := t.Column(PostalColumn)
	type key struct {
		code  string
		month time.Time
	}
	cells := map[key]*PostalMonth{}
	for i, m := range months {
		if m.IsZero() || postal.IsNull(i) {
			continue
		}
		k := key{postal.String(i), m}
		r := cells[k]
		if r == nil {
			r = &PostalMonth{PostalCode: k.code, Month: m}
			cells[k] = r
		}
		r.TotalPremium += nz(prem.Float(i))
		r.TotalClaims += nz(claims.Float(i))
	}
	out := make([]PostalMonth, 0, len(cells))
	for _, r := range cells {
		r.LossRatio = LossRatio(r.TotalClaims, r.TotalPremium)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := compareKeys(out[i].PostalCode, out[j].PostalCode); c != 0 {
			return c < 0
		}
		return out[i].Month.Before(out[j].Month)
	})
	return out, nil
}

// PostalAverage holds mean monthly figures for one postal code.
type PostalAverage struct {
	PostalCode          string  `json:"postal_code"`
	Months              int     `json:"months"`
	AvgMonthlyPremium   float64 `json:"avg_monthly_premium"`
	AvgMonthlyClaims    float64 `json:"avg_monthly_claims"`
	AvgMonthlyLossRatio float64 `json:"avg_monthly_loss_ratio"`
}

// PostalAverages averages the output of MonthlyTotalsByPostal per postal code.
func PostalAverages(rows []PostalMonth) []PostalAverage {
	idx := map[string]int{}
	var out []PostalAverage
	for _, r := range rows {
		i, ok := idx[r.PostalCode]
		if !ok {
			i = len(out)
			idx[r.PostalCode] = i
			out = append(out, PostalAverage{PostalCode: r.PostalCode})
		}
		a := &out[i]
		a.Months++
		a.AvgMonthlyPremium += r.TotalPremium
		a.AvgMonthlyClaims += r.TotalClaims
		a.AvgMonthlyLossRatio += r.LossRatio
	}
	for i := range out {
		n := float64(out[i].Months)
		out[i].AvgMonthlyPremium /= n
		out[i].AvgMonthlyClaims /= n
		out[i].AvgMonthlyLossRatio /= n
	}
	sort.Slice(out, func(i, j int) bool { return compareKeys(out[i].PostalCode, out[j].PostalCode) < 0 })
	return out
}

// ParseMonth parses a transaction date and truncates it to the first of its month.
func ParseMonth(s string) (time.Time, error) {
	ts, ok := parseTimeMaybe(strings.TrimSpace(s))
	if !ok {
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
		"2006-01",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// monthKeys parses the month column; null cells yield the zero time.
func monthKeys(t *dataset.Table) ([]time.Time, error) {
	c, _ := t.Column(MonthColumn)
	out := make([]time.Time, t.Rows())
	for i := range out {
		if c.IsNull(i) {
			continue
		}
		m, err := ParseMonth(c.String(i))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", MonthColumn, i+1, err)
		}
		out[i] = m
	}
	return out, nil
}

func premiumClaims(t *dataset.Table) (prem, claims *dataset.Column, err error) {
	if err := t.Require(PremiumColumn, ClaimsColumn); err != nil {
		return nil, nil, err
	}
	prem, _ = t.Column(PremiumColumn)
	claims, _ = t.Column(ClaimsColumn)
	return prem, claims, nil
}

// nz maps NaN to 0 so sums skip nulls.
func nz(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// compareKeys orders numerically when both keys parse, NullKey last, otherwise lexically.
func compareKeys(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == NullKey:
		return 1
	case b == NullKey:
		return -1
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil && fa != fb {
		if fa < fb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
