package control

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/lifecycle"
	"github.com/ordinalkernel/tradekernel/internal/risk"
	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

var frameStart = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

type flatAdapter struct {
	price float64
}

func (a flatAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error) {
	step, err := candle.Step(interval)
	if err != nil {
		return nil, err
	}
	out := make([]candle.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, candle.Candle{
			Timestamp: since.Add(time.Duration(i) * step),
			Open:      a.price, High: a.price, Low: a.price, Close: a.price, Volume: 1,
		})
	}
	return out, nil
}

func (a flatAdapter) FormatPrice(symbol string, x float64) string    { return "p" }
func (a flatAdapter) FormatQuantity(symbol string, q float64) string { return "q" }

func kernelConfig() config.KernelConfig {
	return config.KernelConfig{
		SlippagePercent: 0.1, FeePercent: 0.1, TickTTLMs: 10,
		VWAPCandleCount: 5, MaxSignalMinutes: 360,
		PartialTPLevels: []float64{30, 60, 90}, PartialSLLevels: []float64{40, 80},
		BreakevenTrigger: 30, AdapterTimeout: time.Second,
	}
}

func newSurface(t *testing.T) (*Surface, *eventbus.Bus) {
	t.Helper()
	adapter, err := store.NewFSAdapter(t.TempDir())
	require.NoError(t, err)
	st := store.New(adapter)

	bus := eventbus.New(zerolog.New(io.Discard))
	validator := risk.NewValidator()
	validator.Register(risk.Risk{Name: "pass-all"})

	surface := New(strategy.NewRegistry(), validator, st, bus, kernelConfig(), zerolog.New(io.Discard))
	surface.RegisterExchange("test-exchange", gateway.New("test-exchange", flatAdapter{price: 42000}, 5, time.Second))
	return surface, bus
}

func idleStrategy(name string) strategy.Registration {
	return strategy.Registration{
		Name: name, Interval: candle.Interval1m, RiskName: "pass-all",
		GetSignal: func(kernelctx.TemporalContext) (*signal.Draft, error) { return nil, nil },
	}
}

func TestRegisterStrategy_RejectsDuplicates(t *testing.T) {
	surface, _ := newSurface(t)

	require.NoError(t, surface.RegisterStrategy(idleStrategy("s1")))
	err := surface.RegisterStrategy(idleStrategy("s1"))
	require.Error(t, err)
	assert.True(t, config.IsKind(err, config.KindConfig))
}

func TestRunBacktest_RejectsUnregisteredNames(t *testing.T) {
	surface, _ := newSurface(t)
	require.NoError(t, surface.RegisterStrategy(idleStrategy("s1")))
	surface.RegisterFrame(signal.Frame{Name: "f", Interval: candle.Interval1m, StartDate: frameStart, EndDate: frameStart.Add(time.Minute)})

	tests := []struct {
		name                            string
		strategyName, exchange, frameNm string
	}{
		{"unknown strategy", "missing", "test-exchange", "f"},
		{"unknown exchange", "s1", "missing", "f"},
		{"unknown frame", "s1", "test-exchange", "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := surface.RunBacktest(context.Background(), "BTCUSDT", tt.strategyName, tt.exchange, tt.frameNm)
			require.Error(t, err)
			assert.True(t, config.IsKind(err, config.KindConfig))
		})
	}
}

func TestRunBacktest_StreamsToCompletion(t *testing.T) {
	surface, bus := newSurface(t)

	done := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.TopicDoneBacktest, func(ev eventbus.Event) error {
		done <- ev
		return nil
	})

	require.NoError(t, surface.RegisterStrategy(idleStrategy("s1")))
	surface.RegisterFrame(signal.Frame{Name: "f", Interval: candle.Interval1m, StartDate: frameStart, EndDate: frameStart.Add(10 * time.Minute)})

	results, err := surface.RunBacktest(context.Background(), "BTCUSDT", "s1", "test-exchange", "f")
	require.NoError(t, err)

	var collected []lifecycle.TickResult
	for r := range results {
		collected = append(collected, r)
	}
	assert.Empty(t, collected) // idle strategy never produces a terminal result

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("done-backtest was not published")
	}
}

func TestBackgroundBacktest_CompletionViaDoneEvent(t *testing.T) {
	surface, bus := newSurface(t)

	done := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.TopicDoneBacktest, func(ev eventbus.Event) error {
		done <- ev
		return nil
	})

	require.NoError(t, surface.RegisterStrategy(idleStrategy("s1")))
	surface.RegisterFrame(signal.Frame{Name: "f", Interval: candle.Interval1m, StartDate: frameStart, EndDate: frameStart.Add(5 * time.Minute)})

	require.NoError(t, surface.BackgroundBacktest(context.Background(), "BTCUSDT", "s1", "test-exchange", "f"))

	select {
	case ev := <-done:
		assert.Equal(t, "s1", ev.StrategyName)
	case <-time.After(2 * time.Second):
		t.Fatal("done-backtest was not published")
	}
}

func TestRunLive_AndStop(t *testing.T) {
	surface, bus := newSurface(t)

	done := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.TopicDoneLive, func(ev eventbus.Event) error {
		done <- ev
		return nil
	})

	require.NoError(t, surface.RegisterStrategy(idleStrategy("s1")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results, err := surface.RunLive(ctx, "BTCUSDT", "s1", "test-exchange")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, surface.Stop("BTCUSDT", "s1"))

	for range results {
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("done-live was not published")
	}
}

func TestStop_UnknownRunErrors(t *testing.T) {
	surface, _ := newSurface(t)
	assert.Error(t, surface.Stop("BTCUSDT", "never-started"))
}

func TestCancel_OnlyScheduledSignals(t *testing.T) {
	surface, _ := newSurface(t)

	// a strategy that wants in below the market, so the signal schedules
	reg := strategy.Registration{
		Name: "scheduler", Interval: candle.Interval1m, RiskName: "pass-all",
		GetSignal: func(kernelctx.TemporalContext) (*signal.Draft, error) {
			return &signal.Draft{
				Position: signal.Long, PriceOpen: 41000,
				PriceTakeProfit: 43000, PriceStopLoss: 40000, MinuteEstimatedTime: 60,
			}, nil
		},
	}
	require.NoError(t, surface.RegisterStrategy(reg))

	engine, err := surface.engineFor("test-exchange")
	require.NoError(t, err)
	tc := kernelctx.New("BTCUSDT", frameStart, kernelctx.ModeLive)
	result, err := engine.Tick(context.Background(), tc, reg, signal.PortfolioView{})
	require.NoError(t, err)
	require.Equal(t, lifecycle.ResultScheduled, result.State)

	cancelled, err := surface.Cancel(context.Background(), "BTCUSDT", "scheduler", "test-exchange", "cx-9")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ResultCancelled, cancelled.State)
	assert.Equal(t, "cx-9", cancelled.Tracked.CancellationID)
}

func TestSharedRiskMembership_PortfolioAcrossStrategies(t *testing.T) {
	surface, _ := newSurface(t)

	a := idleStrategy("strat-a")
	a.RiskName = "shared"
	b := idleStrategy("strat-b")
	b.RiskName = "shared"
	surface.Risk.Register(risk.Risk{Name: "shared"})
	require.NoError(t, surface.RegisterStrategy(a))
	require.NoError(t, surface.RegisterStrategy(b))

	// strat-a holds an open signal; strat-b's portfolio view must see it
	tracked := signal.Tracked{
		ID: "sig-a", Strategy: "strat-a", Symbol: "BTCUSDT",
		State: signal.StateActive, Position: signal.Long,
		PriceOpen: 42000, PriceOpenActual: 42000,
		PriceTakeProfit: 43000, PriceStopLoss: 41000,
		MinuteEstimatedTime: 60, OpenedAt: frameStart,
	}
	require.NoError(t, surface.Store.WriteAtomic(context.Background(), tracked))

	view := surface.portfolioFunc(b)("BTCUSDT")
	assert.Equal(t, 1, view.ActiveCount("BTCUSDT"))
}
