// Package observability collects Prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics gathers Prometheus metrics for the application.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	postingsTotal    *prometheus.CounterVec
	reversalsTotal   prometheus.Counter
	transitionsTotal *prometheus.CounterVec
}

// NewMetrics initialises the registry and core metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_journal_postings_total",
		Help: "Journal entries posted by source module.",
	}, []string{"source_module"})
	reversals := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_journal_reversals_total",
		Help: "Journal entries reversed.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_document_transitions_total",
		Help: "Document workflow transitions by family and action.",
	}, []string{"family", "action"})
	registry.MustRegister(requests, duration, postings, reversals, transitions)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		postingsTotal:    postings,
		reversalsTotal:   reversals,
		transitionsTotal: transitions,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// CountPosting records one posted journal entry.
func (m *Metrics) CountPosting(sourceModule string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(sourceModule).Inc()
}

// CountReversal records one reversed journal entry.
func (m *Metrics) CountReversal() {
	if m == nil {
		return
	}
	m.reversalsTotal.Inc()
}

// CountTransition records one document workflow transition.
func (m *Metrics) CountTransition(family, action string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(family, action).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
