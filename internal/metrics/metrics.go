// Package metrics provides Prometheus instrumentation for the ledger engine.
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
	// TradesCreated counts trades created, partitioned by initial outcome
	// (PENDING, WIN, LOSE).
	TradesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trades_created_total",
		Help: "Total number of trades created",
	}, []string{"outcome"})

	// TradeSettlements counts PENDING→terminal transitions by final status.
	TradeSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trade_settlements_total",
		Help: "Total number of trade settlements",
	}, []string{"status"})

	// OrdersOpened counts arbitrage orders opened.
	OrdersOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_arbitrage_orders_opened_total",
		Help: "Total number of arbitrage orders opened",
	})

	// OrdersTerminated counts order terminations by final status.
	OrdersTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_arbitrage_orders_terminated_total",
		Help: "Total number of arbitrage orders terminated",
	}, []string{"status"})

	// AccrualCycles counts accrual batch cycles by result (ok, empty, error).
	AccrualCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_accrual_cycles_total",
		Help: "Total number of accrual batch cycles",
	}, []string{"result"})

	// AccrualRowsSettled counts accrual transactions settled to SUCCESS.
	AccrualRowsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_accrual_rows_settled_total",
		Help: "Total number of accrual transactions settled",
	})

	// AccrualCycleDuration tracks how long one claim/settle/credit cycle takes.
	AccrualCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_accrual_cycle_duration_seconds",
		Help:    "Accrual cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Transfers counts completed peer transfers.
	Transfers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Total number of completed peer transfers",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
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
