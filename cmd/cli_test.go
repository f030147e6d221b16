package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/riskloom-cli/internal/artifacts"
	"github.com/KaramelBytes/riskloom-cli/internal/dashboard"
	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"github.com/KaramelBytes/riskloom-cli/internal/eda"
	"github.com/KaramelBytes/riskloom-cli/internal/hypothesis"
	"github.com/KaramelBytes/riskloom-cli/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so state does not leak
// between invocations of the shared command tree.
func resetFlags(c *cobra.Command) {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(fl *pflag.Flag) {
			if sv, ok := fl.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = fl.Value.Set(fl.DefValue)
			}
			fl.Changed = false
		})
	}
	reset(c.Flags())
	reset(c.PersistentFlags())
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	closeLog()
	return out.String(), err
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

// workspace points the config at fresh data, models and logs directories.
func workspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, k := range []string{"DEBUG", "DASHBOARD_ADDR", "BOOSTING_ENABLED", "RANDOM_SEED", "TEST_SIZE",
		"ARTIFACT_BACKEND", "MINIO_ENDPOINT", "MINIO_BUCKET", "MINIO_SECURE"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATA_DIR", filepath.Join(root, "data"))
	t.Setenv("MODELS_DIR", filepath.Join(root, "models"))
	t.Setenv("LOGS_DIR", filepath.Join(root, "logs"))
	t.Setenv("FOREST_TREES", "5")
	return root
}

// writeDataset writes n synthetic policies as the raw pipe-delimited dataset.
func writeDataset(t *testing.T, root string, n int) string {
	t.Helper()
	provinces := []string{"Gauteng", "Western Cape", "KwaZulu-Natal"}
	postal := []string{"2000", "8000", "4001"}
	var b strings.Builder
	b.WriteString("UnderwrittenCoverID|PolicyID|TransactionMonth|IsVATRegistered|Gender|Province|PostalCode|" +
		"VehicleType|RegistrationYear|SumInsured|CalculatedPremiumPerTerm|CoverType|TotalPremium|TotalClaims\n")
	for i := 0; i < n; i++ {
		gender := "Male"
		if i%2 == 1 {
			gender = "Female"
		}
		vat := "False"
		if i%7 == 0 {
			vat = "True"
		}
		claims := 0
		if i%5 == 0 {
			claims = 2000 + 10*i
		}
		premium := 100 + i%50
		fmt.Fprintf(&b, "%d|%d|2015-%02d-01|%s|%s|%s|%s|Passenger Vehicle|%d|%d|%d|Comprehensive|%d|%d\n",
			1000+i, 500+i/2, 1+i%6, vat, gender, provinces[i%3], postal[i%3],
			2000+i%15, 50000+1000*(i%40), premium, premium, claims)
	}
	dir := filepath.Join(root, "data", "raw")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir raw: %v", err)
	}
	p := filepath.Join(dir, dataset.DefaultFilename)
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return p
}

func TestConvertWritesProcessedFiles(t *testing.T) {
	root := workspace(t)
	writeDataset(t, root, 12)

	out := runCmd(t, "convert")
	csvPath := filepath.Join(root, "data", "processed", "MachineLearningRating_v3.csv")
	if !strings.Contains(out, "✓ Wrote "+csvPath) {
		t.Fatalf("unexpected output: %s", out)
	}
	b, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.HasPrefix(string(b), "UnderwrittenCoverID,PolicyID,TransactionMonth,") {
		t.Fatalf("header not comma-delimited: %.80s", b)
	}

	runCmd(t, "convert", "--xlsx")
	if _, err := os.Stat(filepath.Join(root, "data", "processed", "MachineLearningRating_v3.xlsx")); err != nil {
		t.Fatalf("missing xlsx: %v", err)
	}
}

func TestConvertMissingDatasetNamesPath(t *testing.T) {
	root := workspace(t)
	_, err := execute(t, "convert")
	if err == nil {
		t.Fatalf("expected error for missing raw dataset")
	}
	if !errors.Is(err, dataset.ErrNotFound) {
		t.Fatalf("error %v is not dataset.ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), filepath.Join(root, "data", "raw", dataset.DefaultFilename)) {
		t.Fatalf("error does not name the path: %v", err)
	}
}

func TestEDASummaryWritesWithCollisionSuffix(t *testing.T) {
	root := workspace(t)
	csv := "Province,TotalPremium,TotalClaims\nGauteng,100,0\nLimpopo,200,50\nGauteng,300,10\n"
	for _, d := range []string{"d1", "d2"} {
		dir := filepath.Join(root, d)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "metrics.csv"), []byte(csv), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	outDir := filepath.Join(root, "summaries")
	out := runCmd(t, "eda", "summary", filepath.Join(root, "d*", "metrics.csv"), "-o", outDir)
	if !strings.Contains(out, "[1/2] Processing metrics.csv") || !strings.Contains(out, "[2/2] Processing metrics.csv") {
		t.Fatalf("missing progress lines: %s", out)
	}
	for _, name := range []string{"metrics.summary.md", "metrics__2.summary.md"} {
		b, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if !strings.Contains(string(b), "[DATASET PROFILE]") {
			t.Fatalf("%s is not a profile:\n%s", name, b)
		}
	}

	if _, err := execute(t, "eda", "summary", filepath.Join(root, "nope", "*.csv")); err == nil {
		t.Fatalf("expected error when no files match")
	}
}

func TestEDACommandsOnRawDataset(t *testing.T) {
	root := workspace(t)
	writeDataset(t, root, 60)

	var groups []eda.GroupLossRatio
	if err := json.Unmarshal([]byte(runCmd(t, "eda", "loss-ratio", "--by", "Province", "--json")), &groups); err != nil {
		t.Fatalf("decode loss ratios: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("groups = %+v", groups)
	}

	if out := runCmd(t, "eda", "loss-ratio"); !strings.HasPrefix(out, "Overall loss ratio: ") {
		t.Fatalf("overall: %s", out)
	}
	if out := runCmd(t, "eda", "trends"); !strings.Contains(out, "2015-01") || !strings.Contains(out, "2015-06") {
		t.Fatalf("trends: %s", out)
	}
	if out := runCmd(t, "eda", "postal"); !strings.Contains(out, "8000") {
		t.Fatalf("postal: %s", out)
	}
	if out := runCmd(t, "eda", "missing"); !strings.Contains(out, "TotalClaims") {
		t.Fatalf("missing: %s", out)
	}
	if out := runCmd(t, "eda", "quantiles", "--columns", "TotalClaims", "--q", "0.5,0.9"); !strings.Contains(out, "TotalClaims: q50=") {
		t.Fatalf("quantiles: %s", out)
	}
	if out := runCmd(t, "eda", "iqr", "TotalPremium"); !strings.Contains(out, "TotalPremium: lower=") {
		t.Fatalf("iqr: %s", out)
	}
	if out := runCmd(t, "eda", "describe", "--columns", "SumInsured"); !strings.Contains(out, "SumInsured") {
		t.Fatalf("describe: %s", out)
	}

	chart := filepath.Join(root, "charts", "premium.png")
	runCmd(t, "eda", "plot", "--kind", "hist", "-c", "TotalPremium", "-o", chart)
	if st, err := os.Stat(chart); err != nil || st.Size() == 0 {
		t.Fatalf("chart not written: %v", err)
	}
	if _, err := execute(t, "eda", "plot", "--kind", "pie", "-c", "Province"); err == nil {
		t.Fatalf("expected error for unsupported chart kind")
	}
}

func TestHypothesisCommands(t *testing.T) {
	root := workspace(t)
	writeDataset(t, root, 90)

	for _, args := range [][]string{
		{"hypothesis", "chi2", "--json"},
		{"hypothesis", "ttest", "--json"},
		{"hypothesis", "anova", "--json"},
		{"hypothesis", "ttest", "--group", "Province", "--a", "Gauteng", "--b", "Western Cape", "--json"},
	} {
		var res hypothesis.Result
		if err := json.Unmarshal([]byte(runCmd(t, args...)), &res); err != nil {
			t.Fatalf("%v: decode: %v", args, err)
		}
		if res.PValue < 0 || res.PValue > 1 || res.Alpha != hypothesis.DefaultAlpha {
			t.Fatalf("%v: result %+v", args, res)
		}
	}

	_, err := execute(t, "hypothesis", "anova", "--group", "Nope")
	if !errors.Is(err, hypothesis.ErrInvalidInput) {
		t.Fatalf("unknown column error = %v", err)
	}
}

func TestTrainThenAssess(t *testing.T) {
	root := workspace(t)
	writeDataset(t, root, 200)

	out := runCmd(t, "train", "--workers", "2")
	if !strings.Contains(out, "Severity model (random_forest_regressor)") || !strings.Contains(out, "✓ Saved models to") {
		t.Fatalf("train output: %s", out)
	}
	modelsDir := filepath.Join(root, "models")
	for _, name := range append(artifacts.RequiredNames, artifacts.ManifestName) {
		if _, err := os.Stat(filepath.Join(modelsDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}
	b, err := os.ReadFile(filepath.Join(modelsDir, artifacts.ManifestName))
	if err != nil {
		t.Fatal(err)
	}
	var m artifacts.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.Variant != model.VariantRandomForest || m.TrainRows != 160 || m.TestRows != 40 {
		t.Fatalf("manifest = %+v", m)
	}
	if _, err := os.Stat(filepath.Join(root, "logs", LogFileName)); err != nil {
		t.Fatalf("log file not written: %v", err)
	}

	var res dashboard.Result
	if err := json.Unmarshal([]byte(runCmd(t, "assess", "--premium", "750", "--json")), &res); err != nil {
		t.Fatalf("decode assessment: %v", err)
	}
	a := res.Assessment
	if res.ModelRunID != m.RunID {
		t.Fatalf("run id = %q, want %q", res.ModelRunID, m.RunID)
	}
	if a.CurrentPremium != 750 || a.ClaimProbability < 0 || a.ClaimProbability > 1 || a.ExpectedSeverity < 0 {
		t.Fatalf("assessment = %+v", a)
	}
	if out := runCmd(t, "assess"); !strings.Contains(out, "Risk tier:") {
		t.Fatalf("assess text: %s", out)
	}
	if _, err := execute(t, "assess", "--gender", "Other"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestTrainVariants(t *testing.T) {
	workspace(t)
	if out := runCmd(t, "train", "--list-variants"); strings.Contains(out, model.VariantBoosted) || !strings.Contains(out, model.VariantLinear) {
		t.Fatalf("variants: %s", out)
	}
	if _, err := execute(t, "train", "--variant", model.VariantBoosted); !errors.Is(err, model.ErrVariantDisabled) {
		t.Fatalf("boosted without flag: %v", err)
	}
	if _, err := execute(t, "train", "--variant", "svm"); !errors.Is(err, model.ErrUnknownVariant) {
		t.Fatalf("unknown variant: %v", err)
	}
	t.Setenv("BOOSTING_ENABLED", "true")
	if out := runCmd(t, "train", "--list-variants"); !strings.Contains(out, model.VariantBoosted) {
		t.Fatalf("variants with boosting: %s", out)
	}
}

func TestAssessWithoutModelsShowsRemediation(t *testing.T) {
	workspace(t)
	_, err := execute(t, "assess")
	if err == nil {
		t.Fatalf("expected error without models")
	}
	if !errors.Is(err, dashboard.ErrModelsUnavailable) || !strings.Contains(err.Error(), "riskloom train") {
		t.Fatalf("error = %v", err)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	root := workspace(t)
	t.Setenv("FOREST_TREES", "")
	cfgPath := filepath.Join(root, "conf", "riskloom.yaml")

	runCmd(t, "--config", cfgPath, "config", "set", "forest_trees", "7")
	runCmd(t, "--config", cfgPath, "config", "set", "minio_secret_key", "supersecretvalue")
	out := runCmd(t, "--config", cfgPath, "config", "show")
	if !strings.Contains(out, "forest_trees: 7") {
		t.Fatalf("show: %s", out)
	}
	if strings.Contains(out, "supersecretvalue") {
		t.Fatalf("secret leaked: %s", out)
	}
	if _, err := execute(t, "--config", cfgPath, "config", "set", "test_size", "2"); err == nil {
		t.Fatalf("expected validation error for test_size")
	}
	if _, err := execute(t, "--config", cfgPath, "config", "set", "api_key", "x"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestMaskAndDisplayAddr(t *testing.T) {
	if got := mask("abcdefghij"); got != "abc****hij" {
		t.Fatalf("mask = %q", got)
	}
	if got := mask("abc"); got != "******" {
		t.Fatalf("short mask = %q", got)
	}
	if got := displayAddr(":8501"); got != "localhost:8501" {
		t.Fatalf("displayAddr = %q", got)
	}
	if got := displayAddr("0.0.0.0:80"); got != "0.0.0.0:80" {
		t.Fatalf("displayAddr = %q", got)
	}
}
