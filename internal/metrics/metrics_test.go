package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCloseReason(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{"take profit", "take_profit", CloseReasonTakeProfit},
		{"stop loss", "stop_loss", CloseReasonStopLoss},
		{"time expired", "time_expired", CloseReasonTimeExpired},
		{"cancelled", "cancelled", CloseReasonCancelled},
		{"manual", "manual", CloseReasonManual},
		{"mixed case", "Take_Profit", CloseReasonTakeProfit},
		{"padded", "  stop_loss  ", CloseReasonStopLoss},
		{"unknown", "liquidated", CloseReasonOther},
		{"empty", "", CloseReasonOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCloseReason(tt.reason))
		})
	}
}

func TestNormalizeRiskGate(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name string
		gate string
		want string
	}{
		{"plain name", "max-1-position", "max-1-position"},
		{"underscores", "daily_loss_cap", "daily_loss_cap"},
		{"uppercase collapses", "MaxPositions", "maxpositions"},
		{"empty", "", "other"},
		{"spaces inside", "max positions", "other"},
		{"unexpected characters", `gate"};drop`, "other"},
		{"too long", string(long), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRiskGate(tt.gate))
		})
	}
}

func TestNormalizeAdapterError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"deadline", errors.New("context deadline exceeded"), AdapterErrorTimeout},
		{"explicit timeout", errors.New("request timeout after 30s"), AdapterErrorTimeout},
		{"invariant", errors.New("adapter invariant violation: first candle mismatch"), AdapterErrorInvariant},
		{"lookahead", errors.New("gateway: lookahead requested"), AdapterErrorLookahead},
		{"rate limited", errors.New("HTTP 429 too many requests: rate limit"), AdapterErrorRateLimit},
		{"network", errors.New("dial tcp: connection refused"), AdapterErrorNetwork},
		{"unknown", errors.New("something odd"), AdapterErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAdapterError(tt.err))
		})
	}
}

func TestRecordTick(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordTick("backtest", "idle", 0.4)
		RecordTick("backtest", "closed", 12)
		RecordTick("live", "active", 103)
	})
}

func TestRecordTransition(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordTransition("scheduled", "opened")
		RecordTransition("opened", "active")
		RecordTransition("active", "closed")
	})
}

func TestRecordSignalClose(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSignalClose("take_profit", 2.18)
		RecordSignalClose("stop_loss", -1.2)
		RecordSignalClose("weird reason", 0)
	})
}

func TestRecordRiskOutcomes(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordRiskRejection("max-1-position", "position-cap")
		RecordRiskRejection("", "")
		RecordRiskAllowed()
	})
}

func TestRecordGatewayRequest(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordGatewayRequest("binance", 42, nil)
		RecordGatewayRequest("binance", 31000, errors.New("timeout"))
	})
}

func TestCacheHitRate(t *testing.T) {
	ResetCacheStats()
	RecordCacheHit()
	RecordCacheHit()
	RecordCacheMiss()

	cacheStats.mu.Lock()
	hits, misses := cacheStats.hits, cacheStats.misses
	cacheStats.mu.Unlock()

	assert.Equal(t, float64(2), hits)
	assert.Equal(t, float64(1), misses)
}

func TestRecordStoreWrite(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordStoreWrite("filesystem", 0.8, nil)
		RecordStoreWrite("postgres", 4.2, errors.New("write failed"))
	})
}

func TestLiveDriverGauge(t *testing.T) {
	assert.NotPanics(t, func() {
		LiveDriverStarted()
		LiveDriverStarted()
		LiveDriverStopped()
		LiveDriverStopped()
	})
}

func TestBacktestMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordBacktestRun(nil)
		RecordBacktestRun(errors.New("aborted"))
		SetBacktestProgress("mean-reversion", 42.5)
		SetBacktestProgress("mean-reversion", 100)
	})
}

func TestBusMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordBusPublish("signal")
		RecordBusDrop("signal-live")
	})
}

func TestAuditMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordAuditLog("SIGNAL_OPENED", true)
		RecordAuditLog("SIGNAL_OPENED", false)
		RecordAuditLogFailure("marshal_error", "SIGNAL_OPENED")
	})
}

func TestRecordError(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError("adapter", "gateway")
		RecordError("runtime", "lifecycle")
	})
}
