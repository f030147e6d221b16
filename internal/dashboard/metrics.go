package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	assessments *prometheus.CounterVec
	errors      prometheus.Counter
	duration    prometheus.Histogram
}

func newMetrics(reg *prometheus.Registry) *metrics {
	m := &metrics{
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskloom_assessments_total",
			Help: "Completed risk assessments by suggestion type and risk tier.",
		}, []string{"suggestion_type", "risk_tier"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskloom_assessment_errors_total",
			Help: "Assessment requests that failed validation, inference or pricing.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskloom_assessment_duration_seconds",
			Help:    "Time spent computing one assessment.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	reg.MustRegister(m.assessments, m.errors, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}
