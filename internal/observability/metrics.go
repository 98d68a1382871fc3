package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	transfersCompleted prometheus.Counter
	transfersFailed    *prometheus.CounterVec
	lazyMigrations     prometheus.Counter
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veranda_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veranda_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transfersCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veranda_transfers_completed_total",
		Help: "Stock transfers executed to completion.",
	})
	transfersFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veranda_transfers_failed_total",
		Help: "Stock transfer failures partitioned by reason.",
	}, []string{"reason"})
	lazyMigrations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veranda_ledger_lazy_migrations_total",
		Help: "Legacy quantities adopted into the ledger on first read.",
	})
	registry.MustRegister(requests, duration, transfersCompleted, transfersFailed, lazyMigrations)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		transfersCompleted: transfersCompleted,
		transfersFailed:    transfersFailed,
		lazyMigrations:     lazyMigrations,
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

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// TransferCompleted implements the transfer engine recorder.
func (m *Metrics) TransferCompleted() {
	if m == nil {
		return
	}
	m.transfersCompleted.Inc()
}

// TransferFailed implements the transfer engine recorder.
func (m *Metrics) TransferFailed(reason string) {
	if m == nil {
		return
	}
	m.transfersFailed.WithLabelValues(reason).Inc()
}

// LazyMigration implements the ledger resolver recorder.
func (m *Metrics) LazyMigration() {
	if m == nil {
		return
	}
	m.lazyMigrations.Inc()
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
