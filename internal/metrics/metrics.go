// Package metrics provides Prometheus instrumentation for the ledger.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts ledger operations by name and outcome kind
	// ("ok" or the error kind).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adledger_operations_total",
		Help: "Ledger operations by operation and result",
	}, []string{"op", "result"})

	// OperationLatency tracks how long serialized mutations take, including
	// the store commit.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adledger_operation_latency_seconds",
		Help:    "Ledger mutation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// TotalBalance is the aggregate value held by the ledger.
	TotalBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adledger_total_balance",
		Help: "Aggregate value held (base units)",
	})

	// RegisteredParticipants is the size of the registry.
	RegisteredParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adledger_registered_participants",
		Help: "Number of registered participants",
	})

	// BidsTotal is the number of bids ever recorded.
	BidsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adledger_bids",
		Help: "Number of bids recorded",
	})

	// EscrowVolume counts value escrowed by bids.
	EscrowVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adledger_escrow_volume_total",
		Help: "Cumulative value escrowed by bids (base units)",
	})

	// WithdrawnVolume counts value paid out by withdrawals.
	WithdrawnVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adledger_withdrawn_volume_total",
		Help: "Cumulative value withdrawn (base units)",
	})

	// CompensationFailures counts treasury transfers that could not be
	// reversed after a failed commit. Any increase needs manual reconciliation.
	CompensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adledger_compensation_failures_total",
		Help: "Treasury transfers left unreversed after a failed commit",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// EventsDropped counts events a sink could not deliver.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adledger_events_dropped_total",
		Help: "Ledger events dropped by a sink",
	}, []string{"sink"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adledger_http_request_duration_seconds",
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

		// Route pattern keeps label cardinality bounded (no addresses or ids).
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
