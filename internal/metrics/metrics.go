// Package metrics provides Prometheus instrumentation for the portfolio engine.
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
	// RefreshCycles counts completed price refresh cycles by outcome.
	RefreshCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_refresh_cycles_total",
		Help: "Completed price refresh cycles",
	}, []string{"outcome"})

	// QuoteFetches counts upstream quote lookups by result.
	QuoteFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_quote_fetches_total",
		Help: "Upstream quote lookups",
	}, []string{"result"})

	// TrackedSymbols tracks the number of symbols with a persisted quote row.
	TrackedSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "folio_tracked_symbols",
		Help: "Number of symbols with a persisted quote row",
	})

	// Recomputes counts ledger recomputation passes by outcome.
	Recomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_recomputes_total",
		Help: "Ledger recomputation passes",
	}, []string{"outcome"})

	// RecomputeDuration tracks recomputation latency per pass.
	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "folio_recompute_duration_seconds",
		Help:    "Ledger recomputation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "folio_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// StreamEventsDropped counts events shed by the broadcast hub.
	StreamEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_stream_events_dropped_total",
		Help: "Change events shed by the broadcast hub",
	}, []string{"type"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_http_request_duration_seconds",
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

		// Use the raw path for the label; cardinality is bounded by the
		// small route surface.
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
