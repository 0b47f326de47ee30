// Package metrics provides Prometheus instrumentation for the wager engine.
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
	// EventsCreated counts events registered with the engine.
	EventsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_events_created_total",
		Help: "Total number of events created",
	})

	// EventsSettled counts completed settlements.
	EventsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_events_settled_total",
		Help: "Total number of events settled",
	})

	// StakesPlaced counts accepted stakes.
	StakesPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_stakes_total",
		Help: "Total number of stakes placed",
	})

	// StakeVolume tracks cumulative escrowed stake volume.
	StakeVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_stake_volume_total",
		Help: "Cumulative stake volume escrowed",
	})

	// PayoutVolume tracks cumulative ledger credits from settlements.
	PayoutVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_payout_volume_total",
		Help: "Cumulative settlement credits to ledger balances",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wager_http_request_duration_seconds",
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
