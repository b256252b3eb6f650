// Package load exercises the kernel's concurrency model: many
// independent (strategy, symbol) runs in parallel over shared
// infrastructure, ordering under sustained publish pressure, and
// store safety under concurrent writers.
package load

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ordinalkernel/tradekernel/internal/backtest"
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

var start = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

type flatAdapter struct{ price float64 }

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

// Each of N parallel backtest runs completes, and each publishes its
// done event exactly once.
func TestParallelBacktests_OneDoneEventEach(t *testing.T) {
	const runs = 8

	adapter, err := store.NewFSAdapter(t.TempDir())
	require.NoError(t, err)
	st := store.New(adapter)
	bus := eventbus.New(zerolog.New(io.Discard))
	gw := gateway.New("load-exchange", flatAdapter{price: 42000}, 5, time.Second)
	validator := risk.NewValidator()
	validator.Register(risk.Risk{Name: "pass-all"})
	engine := lifecycle.New(st, gw, validator, bus, kernelConfig(), zerolog.New(io.Discard))

	var mu sync.Mutex
	doneByStrategy := map[string]int{}
	bus.Subscribe(eventbus.TopicDoneBacktest, func(ev eventbus.Event) error {
		mu.Lock()
		doneByStrategy[ev.StrategyName]++
		mu.Unlock()
		return nil
	})

	frame := signal.Frame{Name: "f", Interval: candle.Interval1m, StartDate: start, EndDate: start.Add(30 * time.Minute)}
	emptyPortfolio := func(string) signal.PortfolioView { return signal.PortfolioView{} }

	var g errgroup.Group
	for i := 0; i < runs; i++ {
		i := i
		name := fmt.Sprintf("load-strat-%d", i)
		reg := strategy.Registration{
			Name: name, Interval: candle.Interval1m, RiskName: "pass-all",
			GetSignal: func(kernelctx.TemporalContext) (*signal.Draft, error) { return nil, nil },
		}
		driver := backtest.New(engine, st, bus, zerolog.New(io.Discard))

		g.Go(func() error {
			for range driver.Run(context.Background(), fmt.Sprintf("SYM%dUSDT", i), reg, frame, emptyPortfolio) {
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		total := 0
		for _, n := range doneByStrategy {
			total += n
		}
		mu.Unlock()
		if total >= runs || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, doneByStrategy, runs)
	for name, n := range doneByStrategy {
		assert.Equal(t, 1, n, "strategy %s published done more than once", name)
	}
}

// Per-subscription FIFO holds under sustained publishing: a single
// publisher's order is never reordered for a subscriber, even with a
// handler that yields.
func TestBusOrdering_UnderSustainedLoad(t *testing.T) {
	const n = 2000

	bus := eventbus.New(zerolog.New(io.Discard))

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	bus.Subscribe(eventbus.TopicProgressBacktest, func(ev eventbus.Event) error {
		mu.Lock()
		got = append(got, ev.Body.(int))
		full := len(got) == n
		mu.Unlock()
		if full {
			close(done)
		}
		return nil
	})

	for i := 0; i < n; i++ {
		bus.Publish(eventbus.Event{Topic: eventbus.TopicProgressBacktest, Timestamp: time.Now(), Body: i})
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("only %d of %d events delivered", len(got), n)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d delivered out of order (got %d)", i, v)
		}
	}
}

// Concurrent writers on distinct slots never corrupt one another, and
// each slot reads back its own last write.
func TestStore_ConcurrentSlotWriters(t *testing.T) {
	const writers = 16
	const writesPerWriter = 50

	adapter, err := store.NewFSAdapter(t.TempDir())
	require.NoError(t, err)
	st := store.New(adapter)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		strategyName := fmt.Sprintf("w-%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				tracked := signal.Tracked{
					ID: fmt.Sprintf("%s-%d", strategyName, i), Strategy: strategyName, Symbol: "BTCUSDT",
					State: signal.StateActive, Position: signal.Long,
					PriceOpen: 42000, PriceOpenActual: 42000,
					PriceTakeProfit: 43000, PriceStopLoss: 41000,
					MinuteEstimatedTime: 60, OpenedAt: start,
				}
				if err := st.WriteAtomic(context.Background(), tracked); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		strategyName := fmt.Sprintf("w-%d", w)
		tracked, ok := st.Read(signal.Key{Strategy: strategyName, Symbol: "BTCUSDT"})
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("%s-%d", strategyName, writesPerWriter-1), tracked.ID)
		assert.Equal(t, strategyName, tracked.Strategy)
	}
}

// The interval throttle holds per slot even when ticks arrive faster
// than the strategy's interval: the strategy is consulted at most once
// per interval window.
func TestThrottle_UnderRapidTicks(t *testing.T) {
	adapter, err := store.NewFSAdapter(t.TempDir())
	require.NoError(t, err)
	st := store.New(adapter)
	bus := eventbus.New(zerolog.New(io.Discard))
	gw := gateway.New("load-exchange", flatAdapter{price: 42000}, 5, time.Second)
	validator := risk.NewValidator()
	validator.Register(risk.Risk{Name: "pass-all"})
	engine := lifecycle.New(st, gw, validator, bus, kernelConfig(), zerolog.New(io.Discard))

	var mu sync.Mutex
	var consultedAt []time.Time
	reg := strategy.Registration{
		Name: "throttle-strat", Interval: candle.Interval5m, RiskName: "pass-all",
		GetSignal: func(tc kernelctx.TemporalContext) (*signal.Draft, error) {
			mu.Lock()
			consultedAt = append(consultedAt, tc.When)
			mu.Unlock()
			return nil, nil
		},
	}

	// 60 ticks, 1 minute apart: a 5m interval allows at most 12 consults
	for i := 0; i < 60; i++ {
		when := start.Add(time.Duration(i) * time.Minute)
		tc := kernelctx.New("BTCUSDT", when, kernelctx.ModeBacktest)
		_, err := engine.Tick(context.Background(), tc, reg, signal.PortfolioView{})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, consultedAt)
	assert.LessOrEqual(t, len(consultedAt), 12)
	for i := 1; i < len(consultedAt); i++ {
		gap := consultedAt[i].Sub(consultedAt[i-1])
		assert.GreaterOrEqual(t, gap, 5*time.Minute,
			"strategy consulted twice within one interval window")
	}
}

// Risk evaluation over a shared portfolio view stays consistent while
// other slots are being written concurrently: the cap is advisory, so
// the only requirement is that evaluation never errors or reads torn
// state.
func TestSharedPortfolio_ConcurrentReadsAndWrites(t *testing.T) {
	adapter, err := store.NewFSAdapter(t.TempDir())
	require.NoError(t, err)
	st := store.New(adapter)

	strategies := make([]string, 8)
	for i := range strategies {
		strategies[i] = fmt.Sprintf("ps-%d", i)
	}

	stop := make(chan struct{})
	var writerWg sync.WaitGroup
	for _, name := range strategies {
		name := name
		writerWg.Add(1)
		go func() {
			defer writerWg.Done()
			i := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				tracked := signal.Tracked{
					ID: fmt.Sprintf("%s-%d", name, i), Strategy: name, Symbol: "BTCUSDT",
					State: signal.StateActive, Position: signal.Long,
					PriceOpen: 42000, PriceOpenActual: 42000,
					PriceTakeProfit: 43000, PriceStopLoss: 41000,
					MinuteEstimatedTime: 60, OpenedAt: start,
				}
				if err := st.WriteAtomic(context.Background(), tracked); err != nil {
					t.Error(err)
					return
				}
				i++
			}
		}()
	}

	for i := 0; i < 200; i++ {
		view := risk.BuildPortfolioView(st, strategies, "BTCUSDT")
		for key, tracked := range view {
			assert.Equal(t, key.Strategy, tracked.Strategy)
			assert.Equal(t, key.SignalID, tracked.ID)
			assert.True(t, tracked.IsNonTerminal())
		}
	}
	close(stop)
	writerWg.Wait()
}
