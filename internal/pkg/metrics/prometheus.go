package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permwatch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "permwatch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "permwatch",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Change detection metrics
	detectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permwatch",
			Subsystem: "detection",
			Name:      "runs_total",
			Help:      "Total number of per-site detection runs",
		},
		[]string{"status"},
	)

	detectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "permwatch",
			Subsystem: "detection",
			Name:      "run_duration_seconds",
			Help:      "Duration of a per-site detection run in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
	)

	changesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permwatch",
			Subsystem: "detection",
			Name:      "changes_total",
			Help:      "Total number of permission changes detected",
		},
		[]string{"change_type"},
	)

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permwatch",
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Total number of notification delivery attempts",
		},
		[]string{"result"},
	)

	notificationQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "permwatch",
			Subsystem: "notification",
			Name:      "queue_depth",
			Help:      "Number of queued notifications by status",
		},
		[]string{"status"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "permwatch",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(duration)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDetectionRun records the outcome of a per-site detection run
func RecordDetectionRun(status string, duration time.Duration) {
	detectionRunsTotal.WithLabelValues(status).Inc()
	detectionDuration.Observe(duration.Seconds())
}

// RecordChangeDetected increments the change counter for a change type
func RecordChangeDetected(changeType string, count int) {
	changesDetectedTotal.WithLabelValues(changeType).Add(float64(count))
}

// RecordNotificationDelivery records a delivery attempt result (sent,
// retried, failed)
func RecordNotificationDelivery(result string) {
	notificationsTotal.WithLabelValues(result).Inc()
}

// SetQueueDepth sets the gauge for queued notifications by status
func SetQueueDepth(status string, count float64) {
	notificationQueueDepth.WithLabelValues(status).Set(count)
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
