package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// page is the template model for index.html.
type page struct {
	Input       Input
	Result      *Result
	Error       string
	Fields      []FieldError
	Degraded    bool
	LoadError   string
	Remediation []string
}

type apiError struct {
	Error       string       `json:"error"`
	Fields      []FieldError `json:"fields,omitempty"`
	Remediation []string     `json:"remediation,omitempty"`
}

// Router returns the HTTP handler.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.recoverer)

	r.Get("/", a.handleIndex)
	r.Post("/assess", a.handleAssessForm)
	r.Post("/api/assess", a.handleAssessAPI)
	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return r
}

func (a *App) basePage(in Input) page {
	p := page{Input: in, Degraded: !a.Ready()}
	if p.Degraded {
		p.LoadError = a.loadErr.Error()
		p.Remediation = a.Remediation()
	}
	return p
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, r, http.StatusOK, a.basePage(DefaultInput()))
}

func (a *App) handleAssessForm(w http.ResponseWriter, r *http.Request) {
	in, err := parseForm(r)
	p := a.basePage(in)
	if err == nil {
		if p.Degraded {
			a.renderPage(w, r, http.StatusServiceUnavailable, p)
			return
		}
		p.Result, err = a.Assess(r.Context(), in)
	}
	if err != nil {
		status := a.fail(r, err)
		var verr *ValidationError
		if errors.As(err, &verr) {
			p.Fields = verr.Fields
		} else {
			p.Error = "Error during prediction: " + err.Error()
		}
		a.renderPage(w, r, status, p)
		return
	}
	a.renderPage(w, r, http.StatusOK, p)
}

func (a *App) handleAssessAPI(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := render.DecodeJSON(r.Body, &in); err != nil {
		a.metrics.errors.Inc()
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, apiError{Error: "invalid JSON body: " + err.Error()})
		return
	}
	res, err := a.Assess(r.Context(), in)
	if err != nil {
		body := apiError{Error: err.Error()}
		var verr *ValidationError
		if errors.As(err, &verr) {
			body.Fields = verr.Fields
		}
		if errors.Is(err, ErrModelsUnavailable) {
			body.Remediation = a.Remediation()
		}
		render.Status(r, a.fail(r, err))
		render.JSON(w, r, body)
		return
	}
	render.JSON(w, r, res)
}

// fail records a failed assessment and maps it to a status code.
func (a *App) fail(r *http.Request, err error) int {
	a.metrics.errors.Inc()
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrModelsUnavailable):
		return http.StatusServiceUnavailable
	}
	a.logger.ErrorContext(r.Context(), "assessment failed",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()))
	return http.StatusInternalServerError
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if !a.Ready() {
		body["status"] = "degraded"
		body["error"] = a.loadErr.Error()
	} else if m := a.bundle.Manifest; m != nil {
		body["model_run_id"] = m.RunID
		body["variant"] = m.Variant
	}
	render.JSON(w, r, body)
}

func (a *App) renderPage(w http.ResponseWriter, r *http.Request, status int, p page) {
	var buf bytes.Buffer
	if err := a.tmpl.ExecuteTemplate(&buf, "index.html", p); err != nil {
		a.logger.ErrorContext(r.Context(), "render page", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// recoverer turns a panic inside a request into a user-visible error.
func (a *App) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				if rec != nil {
					panic(rec)
				}
				return
			}
			a.metrics.errors.Inc()
			a.logger.ErrorContext(r.Context(), "panic in request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			msg := fmt.Sprintf("Error during prediction: %v", rec)
			if strings.HasPrefix(r.URL.Path, "/api/") {
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, apiError{Error: msg})
				return
			}
			p := a.basePage(DefaultInput())
			p.Error = msg
			a.renderPage(w, r, http.StatusInternalServerError, p)
		}()
		next.ServeHTTP(w, r)
	})
}
