// Package live implements the live driver: the infinite wall-clock
// loop, singleshot store recovery, cooperative sleep, and graceful
// shutdown.
package live

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/lifecycle"
	"github.com/ordinalkernel/tradekernel/internal/metrics"
	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

// PortfolioFunc mirrors backtest.PortfolioFunc: the Control Surface
// supplies the current cross-strategy portfolio view per tick.
type PortfolioFunc func(symbol string) signal.PortfolioView

// Driver runs one (symbol, strategy) pair against the wall clock until
// stopped.
type Driver struct {
	Engine  *lifecycle.Engine
	Store   *store.Store
	Bus     *eventbus.Bus
	TickTTL time.Duration
	log     zerolog.Logger

	stopping atomic.Bool
}

// New builds a Driver. tickTTL is Config.Kernel.TickTTL().
func New(engine *lifecycle.Engine, st *store.Store, bus *eventbus.Bus, tickTTL time.Duration, log zerolog.Logger) *Driver {
	return &Driver{Engine: engine, Store: st, Bus: bus, TickTTL: tickTTL, log: log}
}

// Stop requests graceful shutdown: the loop keeps running until the
// slot is empty (no signal, or the tick that just ran produced
// closed/cancelled), then exits.
func (d *Driver) Stop() {
	d.stopping.Store(true)
}

// Run performs SignalStore.load() exactly once for this slot, then
// loops against the wall clock, emitting every non-idle TickResult on
// the returned channel. The channel closes when the driver exits,
// either from Stop() settling or a hard failure.
func (d *Driver) Run(ctx context.Context, symbol string, reg strategy.Registration, portfolioOf PortfolioFunc) <-chan lifecycle.TickResult {
	out := make(chan lifecycle.TickResult)
	go d.run(ctx, symbol, reg, portfolioOf, out)
	return out
}

func (d *Driver) run(ctx context.Context, symbol string, reg strategy.Registration, portfolioOf PortfolioFunc, out chan<- lifecycle.TickResult) {
	defer close(out)
	metrics.LiveDriverStarted()
	defer metrics.LiveDriverStopped()
	// done-live fires exactly once per run, regardless of which exit
	// path below is taken; exit mirrors the same moment for subscribers
	// listening on the generic exit topic.
	defer func() {
		now := time.Now().UTC()
		d.Bus.Publish(eventbus.Event{Topic: eventbus.TopicExit, Symbol: symbol, StrategyName: reg.Name, Timestamp: now, Mode: kernelctx.ModeLive})
		d.Bus.Publish(eventbus.Event{Topic: eventbus.TopicDoneLive, Symbol: symbol, StrategyName: reg.Name, Timestamp: now, Mode: kernelctx.ModeLive})
	}()

	key := signal.Key{Strategy: reg.Name, Symbol: symbol}
	if err := d.Store.Load(ctx, key); err != nil {
		d.publishError(symbol, reg.Name, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		when := time.Now().UTC()
		tc := kernelctx.New(symbol, when, kernelctx.ModeLive)
		result, err := d.Engine.Tick(ctx, tc, reg, portfolioOf(symbol))
		if err != nil {
			d.publishError(symbol, reg.Name, err)
			if shouldExitOn(err) {
				return
			}
			// transient: drop this tick, sleep, try again
		} else if result.State != lifecycle.ResultIdle {
			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}

		if d.stopping.Load() {
			tracked, ok := d.Store.Read(key)
			slotEmpty := !ok || tracked.IsTerminal()
			if slotEmpty {
				return
			}
		}

		select {
		case <-time.After(d.TickTTL):
		case <-ctx.Done():
			return
		}
	}
}

// shouldExitOn separates hard failures from transient ones. Adapter
// timeouts, persistence failures and user-land errors drop the tick and
// keep the loop alive; fatal inconsistencies and hard exchange failures
// end the run.
func shouldExitOn(err error) bool {
	if config.IsKind(err, config.KindFatal) {
		return true
	}
	if config.IsKind(err, config.KindAdapter) {
		if errors.Is(err, gateway.ErrAdapterTimeout) {
			return false
		}
		var ke *config.KernelError
		if errors.As(err, &ke) && strings.HasPrefix(ke.Op, "store.") {
			return false
		}
		return true
	}
	return false
}

func (d *Driver) publishError(symbol, strategyName string, err error) {
	d.Bus.Publish(eventbus.Event{
		Topic: eventbus.TopicError, Symbol: symbol, StrategyName: strategyName,
		Timestamp: time.Now().UTC(), Mode: kernelctx.ModeLive, Body: err,
	})
}
