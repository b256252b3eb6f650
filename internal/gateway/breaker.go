package gateway

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/ordinalkernel/tradekernel/internal/candle"
)

var breakerMetrics = struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
}{
	state: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_adapter_circuit_state",
		Help: "Exchange adapter circuit breaker state (0=closed,1=half_open,2=open)",
	}, []string{"adapter"}),
	requests: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_adapter_requests_total",
		Help: "Exchange adapter calls through the circuit breaker, by result",
	}, []string{"adapter", "result"}),
}

// BreakerAdapter wraps an Adapter with a gobreaker circuit breaker:
// repeated timeouts trip the breaker so a flapping exchange stops being
// hammered every tick.
type BreakerAdapter struct {
	Adapter
	cb *gobreaker.CircuitBreaker
}

// NewBreakerAdapter wraps adapter with a named circuit breaker.
func NewBreakerAdapter(name string, adapter Adapter) *BreakerAdapter {
	settings := gobreaker.Settings{
		Name:        "gateway." + name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerMetrics.state.WithLabelValues(name).Set(float64(to))
		},
	}
	return &BreakerAdapter{
		Adapter: adapter,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.Adapter.GetCandles(ctx, symbol, interval, since, limit)
	})
	label := "success"
	if err != nil {
		label = "failure"
		breakerMetrics.requests.WithLabelValues(b.cb.Name(), label).Inc()
		return nil, err
	}
	breakerMetrics.requests.WithLabelValues(b.cb.Name(), label).Inc()
	return result.([]candle.Candle), nil
}
