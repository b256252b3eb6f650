// Package kernelctx carries the TemporalContext every tick binds once and
// threads explicitly through the Exchange Gateway, Risk Validator, and
// Lifecycle Engine. It is passed as an ordinary function parameter rather
// than stashed in context.Context, by design: the ambient feel of "the
// current tick's clock" is sugar over explicit plumbing through this small
// struct, not a goroutine-local.
package kernelctx

import (
	"fmt"
	"time"
)

// ErrMissingContext is returned by Gateway methods when called with a
// zero-value TemporalContext, which is always a programmer error: every
// data access must bind When explicitly.
var ErrMissingContext = fmt.Errorf("kernelctx: missing temporal context")

// Mode distinguishes a backtest run from a live run. The Gateway does not
// branch on it: getNextCandles is bounded by the horizon its caller
// passes, in either mode.
type Mode int

const (
	ModeBacktest Mode = iota
	ModeLive
)

func (m Mode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "backtest"
}

// TemporalContext is the scoped value attached to one tick's execution.
// It is always passed by value: copying it is how child tasks spawned
// within a tick inherit the same When.
type TemporalContext struct {
	Symbol string
	When   time.Time
	Mode   Mode
}

// New builds a TemporalContext for a single tick.
func New(symbol string, when time.Time, mode Mode) TemporalContext {
	return TemporalContext{Symbol: symbol, When: when.UTC(), Mode: mode}
}

// WithSymbol returns a copy of tc scoped to a different symbol, used when
// a tick needs to look at a second instrument without disturbing the
// caller's context.
func (tc TemporalContext) WithSymbol(symbol string) TemporalContext {
	tc.Symbol = symbol
	return tc
}

// Horizon returns the upper bound candles may not exceed: When itself,
// since the Gateway never returns data from the future relative to the
// tick it was called from.
func (tc TemporalContext) Horizon() time.Time {
	return tc.When
}

// Validate reports ErrMissingContext for a zero-value TemporalContext.
func (tc TemporalContext) Validate() error {
	if tc.Symbol == "" || tc.When.IsZero() {
		return ErrMissingContext
	}
	return nil
}
