// Package gateway implements the exchange gateway: it wraps a
// user-supplied Adapter, aligns and validates timestamps, computes
// VWAP, and refuses to let a strategy see data past its tick's When.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/metrics"
)

// Adapter is the exchange-registration contract: the only capability a
// strategy author must supply. Gateway is the only caller; strategies
// never see an Adapter directly.
type Adapter interface {
	// GetCandles MUST return limit candles whose first timestamp equals
	// the aligned since (inclusive) and whose spacing equals interval's
	// step. Fewer than limit may be returned if history is short.
	GetCandles(ctx context.Context, symbol string, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error)
	FormatPrice(symbol string, x float64) string
	FormatQuantity(symbol string, q float64) string
}

// OrderBookAdapter is the optional order-book capability an adapter
// may also provide.
type OrderBookAdapter interface {
	GetOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)
}

// OrderBook is a minimal depth snapshot, exposed as-is to strategies that
// want it; the kernel does not interpret it.
type OrderBook struct {
	Bids [][2]float64
	Asks [][2]float64
}

// ErrAdapterInvariantViolation is fatal: an adapter returned a
// first-candle timestamp that does not match the requested aligned
// since.
var ErrAdapterInvariantViolation = fmt.Errorf("gateway: adapter invariant violation")

// ErrLookaheadRequested reports a raw fetch whose end date lies after
// the ambient When.
var ErrLookaheadRequested = fmt.Errorf("gateway: lookahead requested")

// ErrAdapterTimeout reports an adapter call that exceeded its deadline.
var ErrAdapterTimeout = fmt.Errorf("gateway: adapter timeout")

// Gateway wraps one Adapter with the alignment and look-ahead rules.
type Gateway struct {
	Name            string // exchangeName, carried on every event
	Adapter         Adapter
	VWAPCandleCount int
	AdapterTimeout  time.Duration
	log             zerolog.Logger
}

// New builds a Gateway. vwapCandleCount and timeout come from
// Config.Kernel.
func New(name string, adapter Adapter, vwapCandleCount int, timeout time.Duration) *Gateway {
	if vwapCandleCount <= 0 {
		vwapCandleCount = 5
	}
	return &Gateway{
		Name:            name,
		Adapter:         adapter,
		VWAPCandleCount: vwapCandleCount,
		AdapterTimeout:  timeout,
		log:             zerolog.Nop(),
	}
}

// WithLogger attaches a component logger (see internal/config/logger.go).
func (g *Gateway) WithLogger(l zerolog.Logger) *Gateway {
	g.log = l
	return g
}

func (g *Gateway) fetch(ctx context.Context, tc kernelctx.TemporalContext, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error) {
	if err := tc.Validate(); err != nil {
		return nil, config.NewKernelError(config.KindContract, "gateway.fetch", err)
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if g.AdapterTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.AdapterTimeout)
		defer cancel()
	}
	start := time.Now()
	candles, err := g.Adapter.GetCandles(callCtx, tc.Symbol, interval, since, limit)
	metrics.RecordGatewayRequest(g.Name, float64(time.Since(start).Milliseconds()), err)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, config.NewKernelError(config.KindAdapter, "gateway.fetch", fmt.Errorf("%w: %v", ErrAdapterTimeout, err))
		}
		return nil, config.NewKernelError(config.KindAdapter, "gateway.fetch", err)
	}
	if len(candles) > 0 && !candles[0].Timestamp.Equal(since) {
		return nil, config.NewKernelError(config.KindFatal, "gateway.fetch",
			fmt.Errorf("%w: requested since=%s got first=%s", ErrAdapterInvariantViolation, since, candles[0].Timestamp))
	}
	if len(candles) > limit {
		candles = candles[:limit]
	}
	g.log.Debug().Str("symbol", tc.Symbol).Str("interval", string(interval)).
		Time("since", since).Int("limit", limit).Int("got", len(candles)).Msg("gateway fetch")
	return candles, nil
}

// GetCandles returns the limit most recently closed candles at or
// before tc.When: alignedWhen = align(when) down to the interval
// boundary; since = alignedWhen - limit*step; every returned candle
// satisfies timestamp+step <= when.
func (g *Gateway) GetCandles(ctx context.Context, tc kernelctx.TemporalContext, interval candle.Interval, limit int) ([]candle.Candle, error) {
	alignedWhen, err := candle.AlignDown(tc.When, interval)
	if err != nil {
		return nil, err
	}
	step, err := candle.Step(interval)
	if err != nil {
		return nil, err
	}
	since := alignedWhen.Add(-time.Duration(limit) * step)
	candles, err := g.fetch(ctx, tc, interval, since, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range candles {
		ends, err := c.EndsBy(tc.When, interval)
		if err != nil {
			return nil, err
		}
		if !ends {
			return nil, config.NewKernelError(config.KindFatal, "gateway.GetCandles",
				fmt.Errorf("%w: candle %s ends after when %s", ErrAdapterInvariantViolation, c.Timestamp, tc.When))
		}
	}
	return candles, nil
}

// Horizon bounds how far forward GetNextCandles may look: the frame end
// in backtest, wall-clock-now in live.
type Horizon = time.Time

// GetNextCandles returns forward candles starting at alignedWhen, for
// the backtest fast path only. It refuses to return candles whose end
// exceeds horizon.
func (g *Gateway) GetNextCandles(ctx context.Context, tc kernelctx.TemporalContext, interval candle.Interval, limit int, horizon Horizon) ([]candle.Candle, error) {
	alignedWhen, err := candle.AlignDown(tc.When, interval)
	if err != nil {
		return nil, err
	}
	step, err := candle.Step(interval)
	if err != nil {
		return nil, err
	}
	candles, err := g.fetch(ctx, tc, interval, alignedWhen, limit)
	if err != nil {
		return nil, err
	}
	out := candles[:0:0]
	for _, c := range candles {
		if c.Timestamp.Add(step).After(horizon) {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// GetRawCandles is the flexible range fetch: it rejects
// eDate > when, sDate >= eDate, and any combination producing a
// non-positive limit, and derives limit from
// ceil((eDate-sDate)/step) when limit is not provided (limit<=0).
func (g *Gateway) GetRawCandles(ctx context.Context, tc kernelctx.TemporalContext, interval candle.Interval, limit int, sDate, eDate time.Time) ([]candle.Candle, error) {
	if eDate.After(tc.When) {
		return nil, config.NewKernelError(config.KindAdapter, "gateway.GetRawCandles", ErrLookaheadRequested)
	}
	if !sDate.Before(eDate) {
		return nil, config.NewKernelError(config.KindContract, "gateway.GetRawCandles",
			fmt.Errorf("sDate (%s) must be before eDate (%s)", sDate, eDate))
	}
	step, err := candle.Step(interval)
	if err != nil {
		return nil, err
	}
	sAligned, err := candle.AlignDown(sDate, interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		span := eDate.Sub(sAligned)
		limit = int((span + step - 1) / step) // ceil
	}
	if limit <= 0 {
		return nil, config.NewKernelError(config.KindContract, "gateway.GetRawCandles",
			fmt.Errorf("derived limit is non-positive"))
	}
	return g.fetch(ctx, tc, interval, sAligned, limit)
}

// GetAveragePrice is the current VWAP: volume-weighted typical price over
// the last VWAPCandleCount closed 1-minute candles, falling back to the
// simple mean of closes when total volume is zero.
func (g *Gateway) GetAveragePrice(ctx context.Context, tc kernelctx.TemporalContext) (float64, error) {
	candles, err := g.GetCandles(ctx, tc, candle.Interval1m, g.VWAPCandleCount)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, config.NewKernelError(config.KindAdapter, "gateway.GetAveragePrice", fmt.Errorf("no candles available"))
	}
	return VWAP(candles), nil
}

// FormatPrice delegates to the adapter.
func (g *Gateway) FormatPrice(symbol string, x float64) string {
	return g.Adapter.FormatPrice(symbol, x)
}

// FormatQuantity delegates to the adapter.
func (g *Gateway) FormatQuantity(symbol string, q float64) string {
	return g.Adapter.FormatQuantity(symbol, q)
}
