// Package metrics provides Prometheus instrumentation for the simulation
// engine and its host process.
package metrics

import (
	"bufio"
	"errors"
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
	// CommandsTotal counts player commands, partitioned by command and
	// result ("ok" or a rejection reason).
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilbaron_commands_total",
		Help: "Total number of player commands processed",
	}, []string{"command", "result"})

	// CommandLatency tracks command execution latency.
	CommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oilbaron_command_latency_seconds",
		Help:    "Command execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// OilExtracted counts effective oil credited to inventories.
	OilExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oilbaron_oil_extracted_total",
		Help: "Effective oil credited to player inventories",
	})

	// OilSold counts oil units sold to companies, by company.
	OilSold = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilbaron_oil_sold_total",
		Help: "Oil units sold to companies",
	}, []string{"company"})

	// Revenue counts currency earned from oil sales.
	Revenue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oilbaron_revenue_total",
		Help: "Currency earned from oil sales",
	})

	// TicksTotal counts scheduler task runs by task name.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilbaron_ticks_total",
		Help: "Scheduler task runs",
	}, []string{"task"})

	// SavesTotal counts save attempts by result.
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilbaron_saves_total",
		Help: "Save attempts",
	}, []string{"result"})

	// LoadsTotal counts save loads by result (ok, missing, rejected, error).
	LoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilbaron_loads_total",
		Help: "Save loads",
	}, []string{"result"})

	// InvariantClamps counts state values repaired on detection.
	InvariantClamps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilbaron_invariant_clamps_total",
		Help: "State invariant violations clamped",
	}, []string{"kind"})

	// ActiveSessions tracks loaded player sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oilbaron_active_sessions",
		Help: "Number of loaded player sessions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oilbaron_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oilbaron_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oilbaron_http_request_duration_seconds",
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

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
