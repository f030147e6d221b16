// Package dashboard serves single-policy risk assessments over HTTP.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/KaramelBytes/riskloom-cli/internal/artifacts"
	"github.com/KaramelBytes/riskloom-cli/internal/config"
	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"github.com/KaramelBytes/riskloom-cli/internal/features"
	"github.com/KaramelBytes/riskloom-cli/internal/pricing"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrModelsUnavailable is returned by Assess when no bundle is loaded.
var ErrModelsUnavailable = errors.New("models not loaded")

// Options configures New.
type Options struct {
	Config *config.Global
	Logger *slog.Logger
	// Bundle is nil when loading failed; LoadErr then says why.
	Bundle  *artifacts.Bundle
	LoadErr error
}

// App is the application context shared by all requests. Its fields are
// read-only after New.
type App struct {
	cfg      *config.Global
	logger   *slog.Logger
	validate *validator.Validate
	registry *prometheus.Registry
	metrics  *metrics
	bundle   *artifacts.Bundle
	loadErr  error
	tmpl     *template.Template
}

// Result is one completed assessment.
type Result struct {
	RequestID  string             `json:"request_id"`
	ModelRunID string             `json:"model_run_id,omitempty"`
	Assessment pricing.Assessment `json:"assessment"`
	Narrative  pricing.Narrative  `json:"narrative"`
	Input      features.Record    `json:"input"`
}

// New builds the application context.
func New(opt Options) (*App, error) {
	if opt.Config == nil {
		return nil, errors.New("dashboard: config is required")
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"money": pricing.Rand,
		"pct":   func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	reg := prometheus.NewRegistry()
	a := &App{
		cfg:      opt.Config,
		logger:   logger.With(slog.String("component", "dashboard")),
		validate: newValidator(),
		registry: reg,
		metrics:  newMetrics(reg),
		bundle:   opt.Bundle,
		loadErr:  opt.LoadErr,
		tmpl:     tmpl,
	}
	if a.bundle == nil && a.loadErr == nil {
		a.loadErr = ErrModelsUnavailable
	}
	return a, nil
}

// Load reads the bundle from store and builds the App. A failed load yields a
// degraded App rather than an error.
func Load(ctx context.Context, store artifacts.Store, cfg *config.Global, logger *slog.Logger) (*App, error) {
	b, err := artifacts.Load(ctx, store)
	if err != nil && logger != nil {
		logger.Warn("models not loaded; predictions disabled", slog.String("error", err.Error()))
	}
	return New(Options{Config: cfg, Logger: logger, Bundle: b, LoadErr: err})
}

// Ready reports whether predictions are available.
func (a *App) Ready() bool { return a.bundle != nil }

// Remediation lists the steps that produce a model bundle.
func (a *App) Remediation() []string {
	return []string{
		fmt.Sprintf("Place the raw dataset at %s", dataset.NewLoader(a.cfg.DataDir).RawPath(dataset.DefaultFilename)),
		"Run `riskloom train` to train the models",
		fmt.Sprintf("Training saves the models into %s", a.cfg.ModelsDir),
		"Restart `riskloom serve`",
	}
}

// Assess validates the input, runs both models and prices the policy.
func (a *App) Assess(ctx context.Context, in Input) (*Result, error) {
	if !a.Ready() {
		return nil, fmt.Errorf("%w: %v", ErrModelsUnavailable, a.loadErr)
	}
	if err := validateInput(a.validate, in); err != nil {
		return nil, err
	}
	start := time.Now()
	rec := in.Record()
	b := a.bundle

	prob := b.Probability.PredictProba(features.EncodeRecord(rec, b.Encoders, b.ClassificationColumns))
	sev := math.Max(0, b.Severity.Predict(features.EncodeRecord(rec, b.Encoders, b.SeverityColumns)))
	asmt, err := pricing.Assess(prob, sev, in.CurrentPremium)
	if err != nil {
		return nil, fmt.Errorf("price policy: %w", err)
	}
	res := &Result{
		RequestID:  uuid.NewString(),
		Assessment: asmt,
		Narrative:  pricing.Describe(asmt),
		Input:      rec,
	}
	if b.Manifest != nil {
		res.ModelRunID = b.Manifest.RunID
	}
	a.metrics.duration.Observe(time.Since(start).Seconds())
	a.metrics.assessments.WithLabelValues(string(asmt.SuggestionType), string(asmt.RiskTier)).Inc()
	a.logger.InfoContext(ctx, "assessment",
		slog.String("request_id", res.RequestID),
		slog.Float64("claim_probability", prob),
		slog.Float64("expected_severity", sev),
		slog.String("risk_tier", string(asmt.RiskTier)),
		slog.String("suggestion_type", string(asmt.SuggestionType)),
	)
	return res, nil
}
