// Package metrics provides Prometheus instrumentation for the position engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GroupResolutionsTotal counts full position group resolutions.
	GroupResolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "position_engine_group_resolutions_total",
		Help: "Total number of position group resolutions",
	})

	// GroupResolutionDuration tracks how long a full resolution takes.
	GroupResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "position_engine_group_resolution_duration_seconds",
		Help:    "Position group resolution duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveGroups tracks the number of position groups after the last resolution.
	ActiveGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "position_engine_active_groups",
		Help: "Number of position groups after the last resolution",
	})

	// OrderChecksTotal counts buying power checks, partitioned by outcome.
	OrderChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "position_engine_order_checks_total",
		Help: "Total buying power checks for contemplated orders",
	}, []string{"outcome"})

	// QuantitySearchesTotal counts maximum-quantity searches by outcome.
	QuantitySearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "position_engine_quantity_searches_total",
		Help: "Total maximum order quantity searches",
	}, []string{"outcome"})

	// ExposureLimitRejections counts orders rejected by the exposure limiter.
	ExposureLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "position_engine_exposure_limit_rejections_total",
		Help: "Orders rejected by exposure limiter",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "position_engine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "position_engine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "position_engine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
