package lifecycle

import (
	"context"
	"time"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

// FastForward resolves an opened or active signal's terminal outcome in
// one candle scan instead of per-tick iteration. It evaluates the same
// instants per-tick iteration would (tc.When+step, +2·step, … < horizon)
// with the same sliding VWAP window and the same check order (expiry,
// then stop loss, then take profit), so the closed result is identical.
//
// Returns (result, true, nil) when a terminal outcome was found,
// (zero, false, nil) when the signal survives to the horizon or the
// candle data ran out — the caller falls back to per-tick iteration in
// that case. Only the Backtest Driver calls this, and only when nothing
// is observing partial/breakeven events, which the fast path skips.
func (e *Engine) FastForward(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, step time.Duration, horizon time.Time) (TickResult, bool, error) {
	key := signal.Key{Strategy: reg.Name, Symbol: tc.Symbol}
	tracked, ok := e.Store.Read(key)
	if !ok || (tracked.State != signal.StateOpened && tracked.State != signal.StateActive) {
		return TickResult{}, false, nil
	}
	if tracked.State == signal.StateOpened {
		tracked.State = signal.StateActive
	}

	n := e.Gateway.VWAPCandleCount

	// One window of 1-minute candles covering the signal's whole
	// possible lifetime: the VWAP look-back before the current tick plus
	// everything forward until expiry or the frame end.
	head, err := e.Gateway.GetCandles(ctx, tc, candle.Interval1m, n)
	if err != nil {
		return TickResult{}, false, err
	}
	deadline := tracked.OpenedAt.Add(time.Duration(tracked.MinuteEstimatedTime) * time.Minute)
	if deadline.After(horizon) {
		deadline = horizon
	}
	forwardLimit := int(deadline.Sub(tc.When)/time.Minute) + 2
	if forwardLimit <= 0 {
		return TickResult{}, false, nil
	}
	tail, err := e.Gateway.GetNextCandles(ctx, tc, candle.Interval1m, forwardLimit, horizon)
	if err != nil {
		return TickResult{}, false, err
	}
	candles := append(head, tail...)

	estimate := time.Duration(tracked.MinuteEstimatedTime) * time.Minute
	for t := tc.When.Add(step); t.Before(horizon); t = t.Add(step) {
		vwap, ok := vwapAt(candles, t, n)
		if !ok {
			return TickResult{}, false, nil
		}

		tcT := kernelctx.New(tc.Symbol, t, tc.Mode)
		if t.Sub(tracked.OpenedAt) >= estimate {
			result, err := e.closeSignal(ctx, tcT, reg, tracked, vwap, signal.ReasonTimeExpired)
			return result, err == nil, err
		}
		tpHit, slHit := e.checkExit(tracked, vwap)
		if slHit {
			result, err := e.closeSignal(ctx, tcT, reg, tracked, vwap, signal.ReasonStopLoss)
			return result, err == nil, err
		}
		if tpHit {
			result, err := e.closeSignal(ctx, tcT, reg, tracked, vwap, signal.ReasonTakeProfit)
			return result, err == nil, err
		}
	}

	return TickResult{}, false, nil
}

// vwapAt computes the VWAP of the last n 1-minute candles closed at or
// before t. Returns false when fewer than n closed candles are
// available at t.
func vwapAt(candles []candle.Candle, t time.Time, n int) (float64, bool) {
	last := -1
	for i, c := range candles {
		if c.Timestamp.Add(time.Minute).After(t) {
			break
		}
		last = i
	}
	if last+1 < n {
		return 0, false
	}
	return gateway.VWAP(candles[last+1-n : last+1]), true
}
