// Package backtest implements the backtest driver: a finite, lazy
// tick-instant sequence over a Frame, with timeframe-skipping after a
// terminal result and a guaranteed-empty slot at completion.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/lifecycle"
	"github.com/ordinalkernel/tradekernel/internal/metrics"
	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

// PortfolioFunc returns the portfolio view a tick should evaluate risk
// against. The Control Surface supplies this (it knows which strategies
// share a risk set); the driver just calls it once per tick.
type PortfolioFunc func(symbol string) signal.PortfolioView

// Driver runs one (symbol, strategy, frame) backtest to completion.
type Driver struct {
	Engine *lifecycle.Engine
	Store  *store.Store
	Bus    *eventbus.Bus
	log    zerolog.Logger
}

// New builds a Driver.
func New(engine *lifecycle.Engine, st *store.Store, bus *eventbus.Bus, log zerolog.Logger) *Driver {
	return &Driver{Engine: engine, Store: st, Bus: bus, log: log}
}

// Run produces the finite sequence of terminal results for symbol under
// reg across frame, emitting progress events every tick and exactly one
// done-backtest event when the sequence is exhausted. The returned
// channel is closed after the run completes (successfully or on error);
// Run never blocks the caller beyond normal channel sends.
func (d *Driver) Run(ctx context.Context, symbol string, reg strategy.Registration, frame signal.Frame, portfolioOf PortfolioFunc) <-chan lifecycle.TickResult {
	out := make(chan lifecycle.TickResult)
	go d.run(ctx, symbol, reg, frame, portfolioOf, out)
	return out
}

func (d *Driver) run(ctx context.Context, symbol string, reg strategy.Registration, frame signal.Frame, portfolioOf PortfolioFunc, out chan<- lifecycle.TickResult) {
	defer close(out)

	key := signal.Key{Strategy: reg.Name, Symbol: symbol}

	// done-backtest fires exactly once per run; an abort carries the
	// error so background() observers see terminal failure, not silence.
	var runErr error
	defer func() {
		metrics.RecordBacktestRun(runErr)
		var body any
		if runErr != nil {
			body = map[string]any{"error": runErr.Error()}
		}
		d.Bus.Publish(eventbus.Event{
			Topic: eventbus.TopicDoneBacktest, Symbol: symbol, StrategyName: reg.Name, FrameName: frame.Name,
			Timestamp: time.Now().UTC(), Mode: kernelctx.ModeBacktest, Body: body,
		})
	}()
	defer d.cleanup(ctx, key)

	step, err := candle.Step(frame.Interval)
	if err != nil {
		runErr = err
		d.publishError(symbol, reg.Name, frame.Name, err)
		return
	}

	total := int(frame.EndDate.Sub(frame.StartDate) / step)
	processed := 0

	for when := frame.StartDate; when.Before(frame.EndDate); when = when.Add(step) {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			d.publishError(symbol, reg.Name, frame.Name, ctx.Err())
			return
		default:
		}

		tc := kernelctx.New(symbol, when, kernelctx.ModeBacktest)
		result, err := d.Engine.Tick(ctx, tc, reg, portfolioOf(symbol))
		processed++
		d.publishProgress(symbol, reg.Name, frame.Name, processed, total)
		if err != nil {
			runErr = err
			d.publishError(symbol, reg.Name, frame.Name, err)
			return
		}

		// Fast path: once a signal is open and nothing observes the
		// advisory events the per-tick walk would fire, resolve its
		// terminal outcome in one candle scan. The closed result is
		// identical to per-tick iteration; on a miss (signal survives
		// to the frame end, or short data) the normal loop resumes.
		if result.State == lifecycle.ResultOpened && d.fastPathEligible(reg) {
			fastResult, done, ferr := d.Engine.FastForward(ctx, tc, reg, step, frame.EndDate)
			if ferr != nil {
				runErr = ferr
				d.publishError(symbol, reg.Name, frame.Name, ferr)
				return
			}
			if done {
				skipped := int(fastResult.Timestamp.Sub(when) / step)
				processed += skipped
				when = when.Add(time.Duration(skipped) * step)
				result = fastResult
				d.publishProgress(symbol, reg.Name, frame.Name, processed, total)
			}
		}

		if result.State != lifecycle.ResultClosed && result.State != lifecycle.ResultCancelled {
			continue
		}

		select {
		case out <- result:
		case <-ctx.Done():
			runErr = ctx.Err()
			return
		}

		// Timeframe skip: don't re-evaluate inside the window just
		// resolved.
		closedAt := result.Tracked.ClosedAt
		if closedAt.IsZero() {
			closedAt = result.Tracked.CancelledAt
		}
		skipUntil := closedAt.Add(step)
		for when.Add(step).Before(skipUntil) {
			when = when.Add(step)
			processed++
		}
		d.notifyTimeframe(reg, symbol, when)
	}
}

// notifyTimeframe tells the strategy its evaluation window jumped
// forward past a resolved signal. Observer panics are isolated the same
// way the engine isolates lifecycle callbacks.
func (d *Driver) notifyTimeframe(reg strategy.Registration, symbol string, when time.Time) {
	if reg.Callbacks.OnTimeframe == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.publishError(symbol, reg.Name, "", fmt.Errorf("user callback onTimeframe panicked: %v", r))
		}
	}()
	reg.Callbacks.OnTimeframe(kernelctx.New(symbol, when, kernelctx.ModeBacktest))
}

// fastPathEligible reports whether skipping per-tick iteration is
// observationally safe: no partial/breakeven subscribers and no
// per-tick strategy callbacks.
func (d *Driver) fastPathEligible(reg strategy.Registration) bool {
	if reg.Callbacks.OnActive != nil || reg.Callbacks.OnTick != nil {
		return false
	}
	if d.Engine.Config.StrictExitMode {
		return false
	}
	return !d.Bus.HasSubscribers(eventbus.TopicPartialProfit) &&
		!d.Bus.HasSubscribers(eventbus.TopicPartialLoss) &&
		!d.Bus.HasSubscribers(eventbus.TopicBreakeven) &&
		!d.Bus.HasSubscribers(eventbus.TopicActivePing)
}

// cleanup guarantees the driver's invariant: at completion the slot
// used by this run holds nothing non-terminal, even if the frame ended
// mid-signal.
func (d *Driver) cleanup(ctx context.Context, key signal.Key) {
	tracked, ok := d.Store.Read(key)
	if !ok || tracked.IsTerminal() {
		return
	}
	if err := d.Store.Clear(ctx, key); err != nil {
		d.log.Warn().Err(err).Str("key", key.String()).Msg("backtest cleanup: failed to clear orphan slot")
	}
}

func (d *Driver) publishProgress(symbol, strategyName, frameName string, processed, total int) {
	percent := 0.0
	if total > 0 {
		percent = float64(processed) / float64(total) * 100
	}
	metrics.SetBacktestProgress(strategyName, percent)
	d.Bus.Publish(eventbus.Event{
		Topic: eventbus.TopicProgressBacktest, Symbol: symbol, StrategyName: strategyName, FrameName: frameName,
		Timestamp: time.Now().UTC(), Mode: kernelctx.ModeBacktest,
		Body: map[string]any{"processed": processed, "total": total, "percent": percent},
	})
}

func (d *Driver) publishError(symbol, strategyName, frameName string, err error) {
	d.Bus.Publish(eventbus.Event{
		Topic: eventbus.TopicError, Symbol: symbol, StrategyName: strategyName, FrameName: frameName,
		Timestamp: time.Now().UTC(), Mode: kernelctx.ModeBacktest,
		Body: fmt.Errorf("backtest: %w", err),
	})
}
