package hypothesis

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
)

func table(t *testing.T, src string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.ReadDelimited(strings.NewReader(src), '|')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return tbl
}

// rows repeats "group|outcome" lines n times each.
func rows(header string, counts map[string]int) string {
	var b strings.Builder
	b.WriteString(header + "\n")
	for line, n := range counts {
		for i := 0; i < n; i++ {
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

const sample = "Province|Gender|TotalPremium|TotalClaims\n" +
	"A|Male|100|0\n" +
	"A|Female|200|50\n" +
	"B|Male|150|0\n" +
	"B|Female|250|100\n"

func TestAddClaimFlagAndMargin(t *testing.T) {
	tbl := table(t, sample)
	flagged, err := AddClaimFlag(tbl)
	if err != nil {
		t.Fatal(err)
	}
	flags, _ := flagged.Floats(ClaimFlagColumn)
	for i, want := range []float64{0, 1, 0, 1} {
		if flags[i] != want {
			t.Fatalf("has_claim[%d] = %v, want %v", i, flags[i], want)
		}
	}
	if tbl.Has(ClaimFlagColumn) {
		t.Fatalf("input table was modified")
	}
	withMargin, err := AddMargin(tbl)
	if err != nil {
		t.Fatal(err)
	}
	margin, _ := withMargin.Floats(MarginColumn)
	for i, want := range []float64{100, 150, 150, 150} {
		if margin[i] != want {
			t.Fatalf("margin[%d] = %v, want %v", i, margin[i], want)
		}
	}
}

func TestChiSquaredYatesOnTwoByTwo(t *testing.T) {
	tbl := table(t, rows("Province|has_claim", map[string]int{
		"A|0": 10, "A|1": 20, "B|0": 20, "B|1": 10,
	}))
	res, err := ChiSquared(tbl, "Province", "has_claim", DefaultAlpha)
	if err != nil {
		t.Fatal(err)
	}
	if !near(res.Statistic, 5.4, 1e-9) || res.DoF != 1 {
		t.Fatalf("statistic = %v dof = %v, want 5.4 / 1", res.Statistic, res.DoF)
	}
	if !near(res.PValue, 0.0201368, 1e-6) || !res.RejectNull {
		t.Fatalf("p = %v reject = %v", res.PValue, res.RejectNull)
	}
}

func TestChiSquaredWithoutCorrection(t *testing.T) {
	tbl := table(t, rows("Province|has_claim", map[string]int{
		"A|0": 10, "A|1": 20, "B|0": 20, "B|1": 10, "C|0": 15, "C|1": 15,
	}))
	res, err := ChiSquared(tbl, "Province", "has_claim", 0.01)
	if err != nil {
		t.Fatal(err)
	}
	want := 100.0 / 15.0
	if !near(res.Statistic, want, 1e-9) || res.DoF != 2 {
		t.Fatalf("statistic = %v dof = %v", res.Statistic, res.DoF)
	}
	if !near(res.PValue, math.Exp(-want/2), 1e-9) || res.RejectNull {
		t.Fatalf("p = %v reject = %v", res.PValue, res.RejectNull)
	}
}

func TestWelchTTest(t *testing.T) {
	tbl := table(t, "g|v\na|1\na|2\na|3\na|4\na|5\nb|2\nb|4\nb|6\nb|8\nb|10\nb|NA\n")
	res, err := WelchTTest(tbl, "g", "v", "a", "b", DefaultAlpha)
	if err != nil {
		t.Fatal(err)
	}
	if !near(res.Statistic, -3/math.Sqrt(2.5), 1e-9) {
		t.Fatalf("t = %v", res.Statistic)
	}
	if !near(res.DoF, 6.25/1.0625, 1e-9) {
		t.Fatalf("df = %v", res.DoF)
	}
	if !near(res.PValue, 0.10753, 1e-4) || res.RejectNull {
		t.Fatalf("p = %v reject = %v", res.PValue, res.RejectNull)
	}
}

func TestANOVA(t *testing.T) {
	tbl := table(t, "g|v\nA|1\nA|2\nA|3\nB|4\nB|5\nB|6\nC|7\nC|8\nC|9\n|100\n")
	res, err := ANOVA(tbl, "g", "v", DefaultAlpha)
	if err != nil {
		t.Fatal(err)
	}
	if !near(res.Statistic, 27, 1e-9) {
		t.Fatalf("F = %v, want 27", res.Statistic)
	}
	// F(2, 6) survival at 27 is (1 + 2*27/6)^-3.
	if !near(res.PValue, 0.001, 1e-9) || !res.RejectNull {
		t.Fatalf("p = %v reject = %v", res.PValue, res.RejectNull)
	}
}

func TestInvalidInputs(t *testing.T) {
	tbl := table(t, sample)
	flagged, _ := AddClaimFlag(tbl)
	single := table(t, "g|v\nA|1\nA|2\nA|3\n")

	cases := []struct {
		name string
		run  func() error
	}{
		{"alpha zero", func() error { _, err := ChiSquared(flagged, "Province", ClaimFlagColumn, 0); return err }},
		{"alpha one", func() error { _, err := ANOVA(single, "g", "v", 1); return err }},
		{"missing column", func() error { _, err := ChiSquared(flagged, "Region", ClaimFlagColumn, 0.05); return err }},
		{"single group chi2", func() error { _, err := ChiSquared(single, "g", "v", 0.05); return err }},
		{"single group anova", func() error { _, err := ANOVA(single, "g", "v", 0.05); return err }},
		{"short t-test sample", func() error { _, err := WelchTTest(single, "g", "v", "A", "B", 0.05); return err }},
		{"same groups", func() error { _, err := WelchTTest(single, "g", "v", "A", "A", 0.05); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestMissingColumnMatchesDatasetError(t *testing.T) {
	_, err := ANOVA(table(t, sample), "Region", "TotalPremium", 0.05)
	if !errors.Is(err, dataset.ErrMissingColumn) || !strings.Contains(err.Error(), "Region") {
		t.Fatalf("expected missing Region, got %v", err)
	}
}
