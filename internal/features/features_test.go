package features

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
)

func read(t *testing.T, src string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.ReadDelimited(strings.NewReader(src), '|')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return tbl
}

func TestSelectFeaturesToleratesAbsentColumns(t *testing.T) {
	tbl := read(t, "PolicyID|Gender|CrossBorder\n1|Male|\n")
	got := SelectFeatures(tbl).Names()
	if !reflect.DeepEqual(got, []string{"Gender"}) {
		t.Fatalf("columns = %v", got)
	}
}

func TestHandleMissingValues(t *testing.T) {
	tbl := read(t, "Num|Cat|Empty\n1|b|\n|a|\n3|b|\n10||\n")
	out := HandleMissingValues(tbl)
	num, _ := out.Floats("Num")
	if num[1] != 3 {
		t.Fatalf("median fill = %v, want 3", num[1])
	}
	cat, _ := out.Column("Cat")
	if cat.String(3) != "b" || cat.NullCount() != 0 {
		t.Fatalf("mode fill = %q", cat.String(3))
	}
	empty, _ := out.Column("Empty")
	if empty.String(0) != "Unknown" || empty.NullCount() != 0 {
		t.Fatalf("all-null fill = %q", empty.String(0))
	}
	if orig, _ := tbl.Column("Num"); orig.NullCount() != 1 {
		t.Fatalf("input was modified")
	}
}

func TestModeTieTakesSmallestLabel(t *testing.T) {
	out := HandleMissingValues(read(t, "Cat|n\nz|1\na|2\n|3\n"))
	c, _ := out.Column("Cat")
	if c.String(2) != "a" {
		t.Fatalf("tie fill = %q, want a", c.String(2))
	}
}

func TestCreateFeatures(t *testing.T) {
	out, err := CreateFeatures(read(t, "RegistrationYear|TotalPremium|SumInsured\n2010|100|1000\n2015|50|0\n"))
	if err != nil {
		t.Fatal(err)
	}
	age, _ := out.Floats(VehicleAgeColumn)
	rate, _ := out.Floats(PremiumRateColumn)
	if age[0] != 5 || age[1] != 0 {
		t.Fatalf("vehicle_age = %v", age)
	}
	if rate[0] != 0.1 || rate[1] != 0 {
		t.Fatalf("premium_per_sum_insured = %v", rate)
	}
	only, _ := CreateFeatures(read(t, "Gender\nMale\n"))
	if only.Has(VehicleAgeColumn) || only.Has(PremiumRateColumn) {
		t.Fatalf("features created without sources")
	}
}

func TestEncodeCategoricalsAndRecordRoundTrip(t *testing.T) {
	tbl := read(t, "Gender|IsVATRegistered|Province|Target|SumInsured\nMale|True|Gauteng|x|1\nFemale|False|Limpopo|y|2\nMale|False|Gauteng|x|3\n")
	out, enc := EncodeCategoricals(tbl, []string{"Target"})
	if _, ok := enc["Target"]; ok {
		t.Fatalf("excluded column was encoded")
	}
	if !reflect.DeepEqual(enc.Columns(), []string{"Gender", "IsVATRegistered", "Province"}) {
		t.Fatalf("encoded columns = %v", enc.Columns())
	}
	g, _ := out.Floats("Gender")
	if !reflect.DeepEqual(g, []float64{1, 0, 1}) {
		t.Fatalf("gender codes = %v", g)
	}
	if c, _ := out.Column("Target"); c.Kind != dataset.KindText {
		t.Fatalf("excluded column changed kind")
	}

	cols := []string{"Gender", "IsVATRegistered", "Province", "SumInsured", "vehicle_age"}
	vec := EncodeRecord(Record{"Gender": "Female", "IsVATRegistered": true, "Province": "Limpopo", "SumInsured": 150000}, enc, cols)
	want := []float64{0, 1, 1, 150000, 0}
	if !reflect.DeepEqual(vec, want) {
		t.Fatalf("vector = %v, want %v", vec, want)
	}
	for i, cls := range enc["Province"].Classes {
		if got := enc["Province"].Code(cls); got != float64(i) {
			t.Fatalf("round trip %s = %v", cls, got)
		}
	}
}

func TestEncodeRecordUnseenCategoryIsZero(t *testing.T) {
	enc := Encoders{"Province": FitLabelEncoder([]string{"Gauteng", "Limpopo"})}
	vec := EncodeRecord(Record{"Province": "Atlantis"}, enc, []string{"Province"})
	if vec[0] != 0 {
		t.Fatalf("unseen code = %v, want 0", vec[0])
	}
	if _, seen := enc["Province"].Transform("Atlantis"); seen {
		t.Fatalf("Atlantis reported as seen")
	}
}

func TestEncodersJSONRestoresIndex(t *testing.T) {
	enc := Encoders{"CoverType": FitLabelEncoder([]string{"Third Party", "Comprehensive"})}
	b, err := json.Marshal(enc)
	if err != nil {
		t.Fatal(err)
	}
	var back Encoders
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back["CoverType"].Code("Third Party") != 1 {
		t.Fatalf("restored encoder codes differ: %s", b)
	}
}

func claimsTable(t *testing.T, n int) *dataset.Table {
	t.Helper()
	var b strings.Builder
	b.WriteString("PolicyID|Gender|RegistrationYear|SumInsured|TotalPremium|TotalClaims\n")
	for i := 0; i < n; i++ {
		g := "Male"
		if i%2 == 0 {
			g = "Female"
		}
		claims := 0
		if i%4 == 0 {
			claims = 1000 + i
		}
		fmt.Fprintf(&b, "%d|%s|%d|%d|%d|%d\n", i, g, 2000+i%10, 10000*(i+1), 100+i, claims)
	}
	return read(t, b.String())
}

func TestPrepareSeverityData(t *testing.T) {
	prepared, _, err := Pipeline(claimsTable(t, 40))
	if err != nil {
		t.Fatal(err)
	}
	s, err := PrepareSeverityData(prepared, DefaultSplitOptions())
	if err != nil {
		t.Fatal(err)
	}
	// 10 claimed rows: ceil(0.2*10)=2 test rows.
	if len(s.XTest) != 2 || len(s.XTrain) != 8 || len(s.YTrain) != 8 {
		t.Fatalf("split sizes train=%d test=%d", len(s.XTrain), len(s.XTest))
	}
	for _, y := range append(s.YTrain, s.YTest...) {
		if y <= 0 {
			t.Fatalf("severity target %v not positive", y)
		}
	}
	for _, f := range s.Features {
		switch f {
		case ClaimsColumn, PremiumColumn, ClaimFlagColumn, MarginColumn, "PolicyID":
			t.Fatalf("leaked column %s in features %v", f, s.Features)
		}
	}
}

func TestPrepareClassificationDataDeterministic(t *testing.T) {
	prepared, _, err := Pipeline(claimsTable(t, 25))
	if err != nil {
		t.Fatal(err)
	}
	a, err := PrepareClassificationData(prepared, DefaultSplitOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := PrepareClassificationData(prepared, DefaultSplitOptions())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("split is not deterministic for a fixed seed")
	}
	if len(a.XTest) != 5 || len(a.XTrain) != 20 {
		t.Fatalf("split sizes train=%d test=%d", len(a.XTrain), len(a.XTest))
	}
	if prepared.Has(ClaimFlagColumn) {
		t.Fatalf("input table gained has_claim")
	}
	for _, y := range a.YTrain {
		if y != 0 && y != 1 {
			t.Fatalf("label %v not binary", y)
		}
	}
}

func TestPrepareRejectsTextFeaturesAndTinyData(t *testing.T) {
	tbl := read(t, "Gender|TotalClaims\nMale|1\nFemale|2\nMale|3\n")
	if _, err := PrepareSeverityData(tbl, DefaultSplitOptions()); err == nil || !strings.Contains(err.Error(), "Gender") {
		t.Fatalf("expected non-numeric feature error, got %v", err)
	}
	one := read(t, "x|TotalClaims\n1|5\n2|0\n")
	if _, err := PrepareSeverityData(one, DefaultSplitOptions()); err == nil {
		t.Fatalf("expected error for a single claimed row")
	}
}
