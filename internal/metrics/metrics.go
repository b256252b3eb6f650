// Package metrics provides Prometheus instrumentation for the kernel:
// tick outcomes, signal state transitions, risk rejections, gateway and
// store adapter health, and event-bus delivery. Free-form strings
// (close reasons, gate names, adapter errors) are normalized onto a
// bounded vocabulary before they become label values so a misbehaving
// adapter cannot blow up the time-series count.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
const (
	// Close reasons (bounded set)
	CloseReasonTakeProfit  = "take_profit"
	CloseReasonStopLoss    = "stop_loss"
	CloseReasonTimeExpired = "time_expired"
	CloseReasonCancelled   = "cancelled"
	CloseReasonManual      = "manual"
	CloseReasonOther       = "other"

	// Adapter error categories (bounded set)
	AdapterErrorTimeout   = "timeout"
	AdapterErrorInvariant = "invariant_violation"
	AdapterErrorLookahead = "lookahead"
	AdapterErrorRateLimit = "rate_limit"
	AdapterErrorNetwork   = "network"
	AdapterErrorOther     = "other"
)

// NormalizeCloseReason maps a close reason onto the bounded set.
func NormalizeCloseReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case CloseReasonTakeProfit:
		return CloseReasonTakeProfit
	case CloseReasonStopLoss:
		return CloseReasonStopLoss
	case CloseReasonTimeExpired:
		return CloseReasonTimeExpired
	case CloseReasonCancelled:
		return CloseReasonCancelled
	case CloseReasonManual:
		return CloseReasonManual
	default:
		return CloseReasonOther
	}
}

// NormalizeRiskGate bounds the risk name/gate label: names are
// operator-chosen but finite, so anything overly long or with unexpected
// characters collapses into "other".
func NormalizeRiskGate(gate string) string {
	g := strings.ToLower(strings.TrimSpace(gate))
	if g == "" || len(g) > 48 {
		return CloseReasonOther
	}
	for _, r := range g {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' && r != '.' {
			return CloseReasonOther
		}
	}
	return g
}

// NormalizeAdapterError maps an adapter error onto the bounded category set.
func NormalizeAdapterError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return AdapterErrorTimeout
	case strings.Contains(msg, "invariant"):
		return AdapterErrorInvariant
	case strings.Contains(msg, "lookahead"):
		return AdapterErrorLookahead
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return AdapterErrorRateLimit
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "dial"):
		return AdapterErrorNetwork
	default:
		return AdapterErrorOther
	}
}

// Tick and lifecycle collectors.
var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_ticks_total",
		Help: "Lifecycle ticks processed, by mode and result state",
	}, []string{"mode", "result"})

	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernel_tick_duration_ms",
		Help:    "Wall-clock duration of one lifecycle tick in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"mode"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_signal_transitions_total",
		Help: "Signal state transitions, by from and to state",
	}, []string{"from", "to"})

	signalsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_signals_closed_total",
		Help: "Closed signals, by close reason",
	}, []string{"reason"})

	signalPnLPercent = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kernel_signal_pnl_percent",
		Help:    "Net PnL percent of closed signals",
		Buckets: []float64{-10, -5, -2, -1, -0.5, 0, 0.5, 1, 2, 5, 10},
	})
)

// Risk collectors.
var (
	riskRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_risk_rejections_total",
		Help: "Risk validator rejections, by risk name and gate",
	}, []string{"risk", "gate"})

	riskEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_risk_evaluations_total",
		Help: "Risk validator evaluations, by outcome",
	}, []string{"outcome"})
)

// Gateway collectors.
var (
	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_gateway_requests_total",
		Help: "Exchange gateway adapter calls, by exchange and error category",
	}, []string{"exchange", "error"})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernel_gateway_request_duration_ms",
		Help:    "Exchange gateway adapter call duration in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
	}, []string{"exchange"})

	candleCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kernel_candle_cache_hits_total",
		Help: "Candle cache hits",
	})

	candleCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kernel_candle_cache_misses_total",
		Help: "Candle cache misses",
	})

	candleCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_candle_cache_hit_rate",
		Help: "Candle cache hit rate (0-1)",
	})
)

// Store collectors.
var (
	storeWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_store_writes_total",
		Help: "Signal store atomic writes, by backend and result",
	}, []string{"backend", "result"})

	storeWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernel_store_write_duration_ms",
		Help:    "Signal store atomic write duration in milliseconds",
		Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500},
	}, []string{"backend"})

	dbConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_db_connections_active",
		Help: "Active database connections in the postgres store pool",
	})

	dbConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_db_connections_idle",
		Help: "Idle database connections in the postgres store pool",
	})
)

// Driver and bus collectors.
var (
	liveDriversRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_live_drivers_running",
		Help: "Live drivers currently looping",
	})

	openPositions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_open_positions",
		Help: "Non-terminal tracked signals, by state",
	}, []string{"state"})

	backtestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_backtest_runs_total",
		Help: "Completed backtest runs, by result",
	}, []string{"result"})

	backtestProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kernel_backtest_progress_percent",
		Help: "Progress of in-flight backtest runs, by strategy",
	}, []string{"strategy"})

	busPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_bus_events_published_total",
		Help: "Events published on the event bus, by topic",
	}, []string{"topic"})

	busDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_bus_events_dropped_total",
		Help: "Events dropped from bounded subscriber queues, by topic",
	}, []string{"topic"})
)

// HTTP and audit collectors.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_http_requests_total",
		Help: "HTTP requests served by the metrics server, by path and status",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kernel_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500},
	}, []string{"path"})

	auditLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_audit_logs_total",
		Help: "Audit log writes, by event type and result",
	}, []string{"event_type", "result"})

	auditLogFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_audit_log_failures_total",
		Help: "Audit log write failures, by error type",
	}, []string{"error_type", "event_type"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_errors_total",
		Help: "Errors reported by kernel components, by kind and component",
	}, []string{"kind", "component"})
)

// RecordTick records one lifecycle tick outcome.
func RecordTick(mode, result string, durationMs float64) {
	ticksTotal.WithLabelValues(mode, result).Inc()
	tickDuration.WithLabelValues(mode).Observe(durationMs)
}

// RecordTransition records a signal state transition.
func RecordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSignalClose records a terminal close with its reason and net PnL.
func RecordSignalClose(reason string, pnlPercent float64) {
	signalsClosedTotal.WithLabelValues(NormalizeCloseReason(reason)).Inc()
	signalPnLPercent.Observe(pnlPercent)
}

// RecordRiskRejection records a risk validator rejection.
func RecordRiskRejection(riskName, gate string) {
	riskRejectionsTotal.WithLabelValues(NormalizeRiskGate(riskName), NormalizeRiskGate(gate)).Inc()
	riskEvaluationsTotal.WithLabelValues("rejected").Inc()
}

// RecordRiskAllowed records a risk validator pass.
func RecordRiskAllowed() {
	riskEvaluationsTotal.WithLabelValues("allowed").Inc()
}

// RecordGatewayRequest records one adapter call through the gateway.
func RecordGatewayRequest(exchange string, durationMs float64, err error) {
	gatewayRequestsTotal.WithLabelValues(exchange, NormalizeAdapterError(err)).Inc()
	gatewayRequestDuration.WithLabelValues(exchange).Observe(durationMs)
}

var cacheStats struct {
	mu     sync.Mutex
	hits   float64
	misses float64
}

// RecordCacheHit records a candle cache hit.
func RecordCacheHit() {
	candleCacheHits.Inc()
	cacheStats.mu.Lock()
	cacheStats.hits++
	updateCacheHitRateLocked()
	cacheStats.mu.Unlock()
}

// RecordCacheMiss records a candle cache miss.
func RecordCacheMiss() {
	candleCacheMisses.Inc()
	cacheStats.mu.Lock()
	cacheStats.misses++
	updateCacheHitRateLocked()
	cacheStats.mu.Unlock()
}

func updateCacheHitRateLocked() {
	total := cacheStats.hits + cacheStats.misses
	if total > 0 {
		candleCacheHitRate.Set(cacheStats.hits / total)
	}
}

// ResetCacheStats zeroes the hit-rate window (used by tests).
func ResetCacheStats() {
	cacheStats.mu.Lock()
	cacheStats.hits = 0
	cacheStats.misses = 0
	candleCacheHitRate.Set(0)
	cacheStats.mu.Unlock()
}

// RecordStoreWrite records one signal store write.
func RecordStoreWrite(backend string, durationMs float64, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	storeWritesTotal.WithLabelValues(backend, result).Inc()
	storeWriteDuration.WithLabelValues(backend).Observe(durationMs)
}

// UpdateDatabaseConnections updates the postgres store pool gauges.
func UpdateDatabaseConnections(active, idle int32) {
	dbConnectionsActive.Set(float64(active))
	dbConnectionsIdle.Set(float64(idle))
}

// LiveDriverStarted increments the running live driver gauge.
func LiveDriverStarted() {
	liveDriversRunning.Inc()
}

// LiveDriverStopped decrements the running live driver gauge.
func LiveDriverStopped() {
	liveDriversRunning.Dec()
}

// UpdateOpenPositions sets the non-terminal signal gauge for one state.
func UpdateOpenPositions(state string, count int) {
	openPositions.WithLabelValues(state).Set(float64(count))
}

// RecordBacktestRun records a completed backtest run.
func RecordBacktestRun(err error) {
	result := "completed"
	if err != nil {
		result = "failed"
	}
	backtestRunsTotal.WithLabelValues(result).Inc()
}

// SetBacktestProgress sets the progress gauge for one strategy's run.
func SetBacktestProgress(strategy string, percent float64) {
	backtestProgress.WithLabelValues(strategy).Set(percent)
}

// RecordBusPublish records one event published on a topic.
func RecordBusPublish(topic string) {
	busPublishedTotal.WithLabelValues(topic).Inc()
}

// RecordBusDrop records one event dropped from a bounded subscriber queue.
func RecordBusDrop(topic string) {
	busDroppedTotal.WithLabelValues(topic).Inc()
}

// RecordHTTPRequest records one request served by the metrics server.
func RecordHTTPRequest(method, path, status string, durationMs float64) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(path).Observe(durationMs)
}

// RecordAuditLog records one audit log write.
func RecordAuditLog(eventType string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	auditLogsTotal.WithLabelValues(eventType, result).Inc()
}

// RecordAuditLogFailure records a failed audit log persistence attempt.
func RecordAuditLogFailure(errorType, eventType string) {
	auditLogFailuresTotal.WithLabelValues(errorType, eventType).Inc()
}

// RecordError records an error surfaced to the error topic.
func RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}
