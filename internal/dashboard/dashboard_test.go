package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/KaramelBytes/riskloom-cli/internal/artifacts"
	"github.com/KaramelBytes/riskloom-cli/internal/config"
	"github.com/KaramelBytes/riskloom-cli/internal/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSeverity struct{ v float64 }

func (m fixedSeverity) Predict([]float64) float64 { return m.v }

type fixedProbability struct {
	p    float64
	last []float64
}

func (m *fixedProbability) PredictProba(x []float64) float64 {
	m.last = append([]float64(nil), x...)
	return m.p
}

func (m *fixedProbability) Predict(x []float64) float64 {
	if m.PredictProba(x) > 0.5 {
		return 1
	}
	return 0
}

type panicking struct{}

func (panicking) PredictProba([]float64) float64 { panic("corrupt model") }
func (panicking) Predict([]float64) float64      { panic("corrupt model") }

func testConfig() *config.Global {
	return &config.Global{DataDir: "/srv/data", ModelsDir: "/srv/models", DashboardAddr: ":0"}
}

func readyApp(t *testing.T, prob *fixedProbability) *App {
	t.Helper()
	cols := []string{"Gender", "Province", "SumInsured", "vehicle_age"}
	app, err := New(Options{
		Config: testConfig(),
		Bundle: &artifacts.Bundle{
			Severity:    fixedSeverity{v: 8000},
			Probability: prob,
			Encoders: features.Encoders{
				"Gender":   features.FitLabelEncoder([]string{"Female", "Male"}),
				"Province": features.FitLabelEncoder([]string{"Gauteng", "Limpopo"}),
			},
			SeverityColumns:       cols,
			ClassificationColumns: cols,
			Manifest:              &artifacts.Manifest{RunID: "run-1", Variant: "random_forest"},
		},
	})
	require.NoError(t, err)
	return app
}

func degradedApp(t *testing.T) *App {
	t.Helper()
	app, err := New(Options{
		Config:  testConfig(),
		LoadErr: &artifacts.MissingError{Location: "/srv/models", Names: []string{artifacts.EncodersName}},
	})
	require.NoError(t, err)
	return app
}

func postJSON(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/assess", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postForm(h http.Handler, vals url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/assess", strings.NewReader(vals.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func validForm() url.Values {
	return url.Values{
		"gender":            {"Male"},
		"province":          {"Gauteng"},
		"vehicle_type":      {"Passenger Vehicle"},
		"registration_year": {"2010"},
		"sum_insured":       {"150000"},
		"current_premium":   {"500"},
		"cover_type":        {"Comprehensive"},
	}
}

func TestInputRecordDerivesFeatures(t *testing.T) {
	in := DefaultInput()
	in.IsVATRegistered = true
	rec := in.Record()
	assert.Equal(t, 5, rec[features.VehicleAgeColumn])
	assert.InDelta(t, 500.0/150000, rec[features.PremiumRateColumn], 1e-12)
	assert.Equal(t, 500.0, rec["CalculatedPremiumPerTerm"])
	assert.Equal(t, "True", features.Label(rec["IsVATRegistered"]))

	in.SumInsured = 0
	assert.Equal(t, 0.0, in.Record()[features.PremiumRateColumn])
}

func TestAssessAPIDiscount(t *testing.T) {
	prob := &fixedProbability{p: 0.05}
	app := readyApp(t, prob)
	in := DefaultInput()
	in.CurrentPremium = 1000
	in.Province = "Atlantis"

	rec := postJSON(t, app.Router(), in)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "discount", string(res.Assessment.SuggestionType))
	assert.InDelta(t, 800, res.Assessment.SuggestedPremium, 1e-9)
	assert.InDelta(t, 500, res.Assessment.RiskPremium, 1e-9)
	assert.Equal(t, "Low", string(res.Assessment.RiskTier))
	assert.Equal(t, "Favorable risk profile.", res.Narrative.Headline)
	assert.Equal(t, "run-1", res.ModelRunID)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, 5.0, res.Input[features.VehicleAgeColumn])

	// Male=1, unseen province=0, then raw numbers in column order.
	assert.Equal(t, []float64{1, 0, 150000, 5}, prob.last)
}

func TestAssessAPIValidation(t *testing.T) {
	app := readyApp(t, &fixedProbability{p: 0.2})
	in := DefaultInput()
	in.Gender = "Other"
	in.RegistrationYear = 1980
	in.CurrentPremium = 20000
	in.CoverType = ""

	rec := postJSON(t, app.Router(), in)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	fields := map[string]string{}
	for _, f := range body.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "must be one of Male Female", fields["gender"])
	assert.Equal(t, "must be at least 1990", fields["registration_year"])
	assert.Equal(t, "must be at most 10000", fields["current_premium"])
	assert.Equal(t, "is required", fields["cover_type"])

	bad := httptest.NewRequest(http.MethodPost, "/api/assess", strings.NewReader("{not json"))
	out := httptest.NewRecorder()
	app.Router().ServeHTTP(out, bad)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestDegradedMode(t *testing.T) {
	app := degradedApp(t)
	h := app.Router()
	assert.False(t, app.Ready())

	health := get(h, "/healthz")
	require.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"degraded"`)

	index := get(h, "/")
	assert.Equal(t, http.StatusOK, index.Code)
	assert.Contains(t, index.Body.String(), "Models not loaded")
	assert.Contains(t, index.Body.String(), "riskloom train")

	rec := postJSON(t, h, DefaultInput())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Remediation, 4)
	assert.Contains(t, body.Error, artifacts.EncodersName)

	form := postForm(h, validForm())
	assert.Equal(t, http.StatusServiceUnavailable, form.Code)
}

func TestAssessForm(t *testing.T) {
	app := readyApp(t, &fixedProbability{p: 0.05})
	h := app.Router()

	rec := postForm(h, validForm())
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Favorable risk profile.")
	assert.Contains(t, body, "broadly aligned")
	assert.Contains(t, body, "(aligned)")

	vals := validForm()
	vals.Set("sum_insured", "lots")
	bad := postForm(h, vals)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Contains(t, bad.Body.String(), "must be a number")
}

func TestPanicIsReportedNotFatal(t *testing.T) {
	app, err := New(Options{
		Config: testConfig(),
		Bundle: &artifacts.Bundle{Severity: fixedSeverity{v: 1}, Probability: panicking{}},
	})
	require.NoError(t, err)
	h := app.Router()

	rec := postJSON(t, h, DefaultInput())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error during prediction: corrupt model")

	form := postForm(h, validForm())
	assert.Equal(t, http.StatusInternalServerError, form.Code)
	assert.Contains(t, form.Body.String(), "corrupt model")

	assert.Equal(t, http.StatusOK, get(h, "/healthz").Code)
}

func TestMetricsCountAssessments(t *testing.T) {
	app := readyApp(t, &fixedProbability{p: 0.4})
	h := app.Router()
	in := DefaultInput()
	in.CurrentPremium = 200
	require.Equal(t, http.StatusOK, postJSON(t, h, in).Code)
	in.Gender = ""
	require.Equal(t, http.StatusBadRequest, postJSON(t, h, in).Code)

	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	b, _ := io.ReadAll(rec.Body)
	text := string(b)
	assert.Contains(t, text, `riskloom_assessments_total{risk_tier="High",suggestion_type="increase"} 1`)
	assert.Contains(t, text, "riskloom_assessment_errors_total 1")
	assert.Contains(t, text, "riskloom_assessment_duration_seconds_count 1")
}
