// Package metrics exposes Prometheus collectors for HTTP traffic and for
// the research pipeline's own stage timings, regeneration behavior, and
// citation yield.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service registers.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	RunsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	SectionAttempts    prometheus.Histogram
	RegenerationsTotal *prometheus.CounterVec
	CitationsPerRun    prometheus.Histogram
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttddr_http_requests_total",
				Help: "Total HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttddr_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ttddr_http_active_requests",
				Help: "Number of in-flight HTTP requests.",
			},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttddr_research_runs_total",
				Help: "Total research pipeline runs by outcome.",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ttddr_pipeline_stage_duration_seconds",
				Help:    "Duration of a pipeline stage in seconds.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		SectionAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ttddr_section_generation_attempts",
				Help:    "Number of generation attempts needed per section before acceptance.",
				Buckets: []float64{1, 2, 3},
			},
		),
		RegenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ttddr_section_regenerations_total",
				Help: "Total section regenerations triggered by failed quality validation.",
			},
			[]string{"reason"},
		),
		CitationsPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ttddr_citations_per_run",
				Help:    "Number of distinct citations gathered per research run.",
				Buckets: []float64{1, 5, 10, 20, 50, 100},
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.RunsTotal,
		m.StageDuration,
		m.SectionAttempts,
		m.RegenerationsTotal,
		m.CitationsPerRun,
	)
	return m
}

// Middleware records request count, latency, and in-flight gauge for every
// HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.ActiveRequests.Inc()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.ActiveRequests.Dec()
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.status)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// Handler returns the /metrics scrape endpoint for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordRun records the terminal outcome of one research pipeline run.
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordStage records how long a named pipeline stage took.
func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSectionOutcome records how many attempts a section needed and, if
// it regenerated at least once, why.
func (m *Metrics) RecordSectionOutcome(attempts int, regenerated bool, reason string) {
	if m == nil {
		return
	}
	m.SectionAttempts.Observe(float64(attempts))
	if regenerated {
		m.RegenerationsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordCitations records how many distinct citations one run produced.
func (m *Metrics) RecordCitations(count int) {
	if m == nil {
		return
	}
	m.CitationsPerRun.Observe(float64(count))
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}
