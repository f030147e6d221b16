package eda

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
)

func mustTable(t *testing.T, src string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.ReadDelimited(strings.NewReader(src), '|')
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	return tbl
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMissingnessAllPresentAndAllMissing(t *testing.T) {
	tbl := mustTable(t, "A|B|C\n1||x\n2||\n3||y\n4||z\n")
	rows := Missingness(tbl)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Column != "B" || rows[0].MissingPct != 100 || rows[0].MissingCount != 4 {
		t.Fatalf("first row = %+v, want B at 100%%", rows[0])
	}
	if rows[1].Column != "C" || rows[1].MissingPct != 25 {
		t.Fatalf("second row = %+v, want C at 25%%", rows[1])
	}
	if rows[2].Column != "A" || rows[2].MissingPct != 0 {
		t.Fatalf("last row = %+v, want A at 0%%", rows[2])
	}
}

func TestMissingnessEmptyTable(t *testing.T) {
	tbl := mustTable(t, "A|B\n")
	rows := Missingness(tbl)
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", rows)
	}
}

func TestHighQuantilesLinearInterpolation(t *testing.T) {
	tbl := mustTable(t, "x\n1\n2\n3\n4\n5\n")
	rows, err := HighQuantiles(tbl, []string{"x"}, []float64{0.75, 0.9})
	if err != nil {
		t.Fatalf("quantiles: %v", err)
	}
	if rows[0].Column != "x" {
		t.Fatalf("column = %s", rows[0].Column)
	}
	if v, _ := rows[0].Get("q75"); v != 4 {
		t.Fatalf("q75 = %v, want 4", v)
	}
	if v, _ := rows[0].Get("q90"); !approx(v, 4.6) {
		t.Fatalf("q90 = %v, want 4.6", v)
	}
}

func TestHighQuantilesDefaultsAndMissingColumn(t *testing.T) {
	tbl := mustTable(t, "x\n1\n2\n")
	rows, err := HighQuantiles(tbl, []string{"x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"q75", "q90", "q95", "q99"}
	for i, l := range want {
		if rows[0].Labels[i] != l {
			t.Fatalf("label %d = %s, want %s", i, rows[0].Labels[i], l)
		}
	}
	if _, err := HighQuantiles(tbl, []string{"nope"}, nil); !errors.Is(err, dataset.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestIQRBoundsFlagsOutlier(t *testing.T) {
	tbl := mustTable(t, "x\n1\n2\n3\nNA\n4\n100\n")
	lo, hi, err := IQRBounds(tbl, "x")
	if err != nil {
		t.Fatal(err)
	}
	// Q1=2, Q3=4, IQR=2
	if lo != -1 || hi != 7 {
		t.Fatalf("bounds = (%v, %v), want (-1, 7)", lo, hi)
	}
	if _, _, err := IQRBounds(mustTable(t, "x\nNA\n"), "x"); !errors.Is(err, ErrNoValues) {
		t.Fatalf("expected ErrNoValues, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	tbl := mustTable(t, "x\n1\n2\n3\n4\n")
	rows, err := Describe(tbl, []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	s := rows[0]
	if s.Count != 4 || s.Mean != 2.5 || s.Min != 1 || s.Max != 4 || s.Q50 != 2.5 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !approx(s.Std, math.Sqrt(5.0/3.0)) {
		t.Fatalf("std = %v", s.Std)
	}
}

const claims = "Province|PostalCode|TransactionMonth|TotalPremium|TotalClaims\n" +
	"A|1000|2015-01-01 00:00:00|100|50\n" +
	"A|1000|2015-02-01 00:00:00|300|0\n" +
	"B|2000|2015-01-15 00:00:00|600|300\n" +
	"|2000|2015-02-01 00:00:00|0|0\n"

func TestLossRatioOverall(t *testing.T) {
	lr, err := LossRatioOverall(mustTable(t, claims))
	if err != nil {
		t.Fatal(err)
	}
	if !approx(lr, 0.35) {
		t.Fatalf("loss ratio = %v, want 0.35", lr)
	}
}

func TestLossRatioZeroPremiumIsZero(t *testing.T) {
	lr, err := LossRatioOverall(mustTable(t, "TotalPremium|TotalClaims\n0|10\n0|0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if lr != 0 {
		t.Fatalf("loss ratio = %v, want exactly 0", lr)
	}
}

func TestLossRatioMissingColumns(t *testing.T) {
	_, err := LossRatioOverall(mustTable(t, "TotalPremium\n1\n"))
	if !errors.Is(err, dataset.ErrMissingColumn) || !strings.Contains(err.Error(), "TotalClaims") {
		t.Fatalf("expected missing TotalClaims, got %v", err)
	}
}

func TestLossRatioByGroupKeepsNullGroup(t *testing.T) {
	rows, err := LossRatioByGroup(mustTable(t, claims), []string{"Province"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("groups = %d, want 3", len(rows))
	}
	if rows[0].Keys[0] != "A" || rows[0].TotalPremium != 400 || rows[0].TotalClaims != 50 || rows[0].LossRatio != 0.125 {
		t.Fatalf("group A = %+v", rows[0])
	}
	if rows[1].Keys[0] != "B" || rows[1].LossRatio != 0.5 {
		t.Fatalf("group B = %+v", rows[1])
	}
	if rows[2].Keys[0] != NullKey || rows[2].LossRatio != 0 {
		t.Fatalf("null group = %+v", rows[2])
	}
}

func TestMonthlyLossRatios(t *testing.T) {
	tbl := mustTable(t, "TransactionMonth|TotalPremium|TotalClaims\n2015-01-01|100|0\n2015-01-15|100|100\n2015-02-01|200|200\n")
	rows, err := MonthlyLossRatios(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("months = %d, want 2", len(rows))
	}
	jan := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	if !rows[0].Month.Equal(jan) || rows[0].TotalPremium != 200 || rows[0].LossRatio != 0.5 {
		t.Fatalf("january = %+v", rows[0])
	}
	if rows[1].LossRatio != 1 {
		t.Fatalf("february = %+v", rows[1])
	}
}

func TestMonthlyLossRatiosRequiresMonth(t *testing.T) {
	_, err := MonthlyLossRatios(mustTable(t, "TotalPremium|TotalClaims\n1|1\n"))
	if !errors.Is(err, dataset.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	_, err = MonthlyLossRatios(mustTable(t, "TransactionMonth|TotalPremium|TotalClaims\nlater|1|1\n"))
	if err == nil || !strings.Contains(err.Error(), "unparseable") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestPostalTotalsAndAverages(t *testing.T) {
	cells, err := MonthlyTotalsByPostal(mustTable(t, claims))
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 4 {
		t.Fatalf("cells = %d, want 4", len(cells))
	}
	avgs := PostalAverages(cells)
	if len(avgs) != 2 || avgs[0].PostalCode != "1000" || avgs[1].PostalCode != "2000" {
		t.Fatalf("averages = %+v", avgs)
	}
	if avgs[0].AvgMonthlyPremium != 200 || avgs[0].AvgMonthlyClaims != 25 {
		t.Fatalf("1000 averages = %+v", avgs[0])
	}
	// months: 0.5 and 0 -> mean 0.25
	if avgs[1].AvgMonthlyLossRatio != 0.25 {
		t.Fatalf("2000 loss ratio = %v", avgs[1].AvgMonthlyLossRatio)
	}
}

func TestProfileAndMarkdown(t *testing.T) {
	var b strings.Builder
	b.WriteString("Gender|SumInsured|TotalPremium|TotalClaims|TransactionMonth\n")
	vals := []string{"10", "11", "12", "10", "11", "12", "10", "11", "500"}
	for i, v := range vals {
		g := "Male"
		if i%3 == 0 {
			g = "Female"
		}
		b.WriteString(g + "|" + v + "|" + v + "|1|2015-01-01\n")
	}
	opt := DefaultProfileOptions()
	opt.GroupBy = []string{"Gender"}
	rep, err := Profile("claims.txt", mustTable(t, b.String()), opt)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	kinds := map[string]string{}
	for _, c := range rep.Cols {
		kinds[c.Name] = c.Kind
	}
	if kinds["Gender"] != "categorical" || kinds["SumInsured"] != "numeric" || kinds["TransactionMonth"] != "datetime" {
		t.Fatalf("kinds = %v", kinds)
	}
	if rep.Cols[1].OutliersCount != 1 {
		t.Fatalf("outliers = %d, want 1", rep.Cols[1].OutliersCount)
	}
	if rep.Corr == nil || !approx(rep.Corr.Values[0][1], 1) {
		t.Fatalf("expected perfect correlation between SumInsured and TotalPremium")
	}
	if len(rep.Groups) != 2 || rep.Groups[0].Key != "Gender=Male" {
		t.Fatalf("groups = %+v", rep.Groups)
	}
	md := rep.Markdown()
	for _, want := range []string{"[DATASET PROFILE]", "File: claims.txt", "Rows: 9", "Gender: categorical", "[CORRELATIONS]", "[GROUP-BY SUMMARY]", "[SAMPLE ROWS]"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestChartsRender(t *testing.T) {
	tbl := mustTable(t, "Gender|SumInsured\nMale|1000\nFemale|50000\nMale|200000\nMale|0\n")
	dir := t.TempDir()
	hist := filepath.Join(dir, "hist.png")
	if err := Histogram(tbl, "SumInsured", hist, ChartOptions{Bins: 5, LogScale: true}); err != nil {
		t.Fatalf("histogram: %v", err)
	}
	box := filepath.Join(dir, "box.svg")
	if err := BoxPlot(tbl, "SumInsured", box, ChartOptions{}); err != nil {
		t.Fatalf("boxplot: %v", err)
	}
	bars := filepath.Join(dir, "bars.png")
	if err := CategoryCounts(tbl, "Gender", bars, ChartOptions{TopN: 1}); err != nil {
		t.Fatalf("bars: %v", err)
	}
	for _, p := range []string{hist, box, bars} {
		if fi, err := os.Stat(p); err != nil || fi.Size() == 0 {
			t.Fatalf("chart %s not written: %v", p, err)
		}
	}
	counts, _ := CountCategories(tbl, "Gender", 1)
	if len(counts) != 1 || counts[0].Value != "Male" || counts[0].Count != 3 {
		t.Fatalf("counts = %+v", counts)
	}
}
