package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	ResourceOperationsTotal *prometheus.CounterVec
	CompensationsTotal      *prometheus.CounterVec

	// Sync engine metrics
	SyncIterationsTotal  *prometheus.CounterVec
	SyncChangesTotal     prometheus.Counter
	SyncSkippedTotal     *prometheus.CounterVec
	SyncReconcileSeconds *prometheus.HistogramVec
	SyncLagSeconds       prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mosaic_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ResourceOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_resource_operations_total",
				Help: "Total number of resource lifecycle operations",
			},
			[]string{"kind", "operation", "status"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_compensations_total",
				Help: "Total number of compensating rollbacks after a failed tuple write",
			},
			[]string{"kind", "operation"},
		),

		SyncIterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_sync_iterations_total",
				Help: "Total number of permission sync iterations",
			},
			[]string{"status"},
		),
		SyncChangesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mosaic_sync_changes_total",
				Help: "Total number of change feed entries consumed",
			},
		),
		SyncSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mosaic_sync_skipped_total",
				Help: "Total number of change feed entries skipped",
			},
			[]string{"reason"},
		),
		SyncReconcileSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mosaic_sync_reconcile_duration_seconds",
				Help:    "Duration of one reconciliation target",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"target"},
		),
		SyncLagSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mosaic_sync_lag_seconds",
				Help: "Age of the sync checkpoint at the start of the last iteration",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mosaic_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mosaic_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ResourceOperationsTotal,
		m.CompensationsTotal,
		m.SyncIterationsTotal,
		m.SyncChangesTotal,
		m.SyncSkippedTotal,
		m.SyncReconcileSeconds,
		m.SyncLagSeconds,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// MetricsHandler returns the handler serving the registry in Prometheus
// exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
