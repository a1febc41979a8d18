package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and worker.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	numberingFallback *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	transitions       *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_numbering_fallbacks_total",
		Help: "Document numbers issued from the timestamp fallback after sequential retries ran out.",
	}, []string{"document"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_notifications_total",
		Help: "Document notifications by kind and enqueue result.",
	}, []string{"kind", "result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_document_transitions_total",
		Help: "Committed document status transitions.",
	}, []string{"document", "status"})
	registry.MustRegister(requests, duration, fallback, notifications, transitions)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		numberingFallback: fallback,
		notifications:     notifications,
		transitions:       transitions,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics.
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

// NumberingFallback counts a timestamp-derived document number.
func (m *Metrics) NumberingFallback(document string) {
	if m == nil {
		return
	}
	m.numberingFallback.WithLabelValues(document).Inc()
}

// Notification counts an enqueue attempt.
func (m *Metrics) Notification(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "enqueued"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// Transition counts a committed status change.
func (m *Metrics) Transition(document, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(document, status).Inc()
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
