// Package lifecycle implements the lifecycle engine: the tick
// algorithm that drives a tracked signal through scheduled, opened,
// active and terminal states, one (strategy, symbol) slot at a time.
package lifecycle

import (
	"time"

	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// ResultState is the discriminated outcome of one Tick call.
type ResultState string

const (
	ResultIdle      ResultState = "idle"
	ResultScheduled ResultState = "scheduled"
	ResultOpened    ResultState = "opened"
	ResultActive    ResultState = "active"
	ResultClosed    ResultState = "closed"
	ResultCancelled ResultState = "cancelled"
)

// TickResult is the single message a Tick call produces.
type TickResult struct {
	State     ResultState
	Symbol    string
	Strategy  string
	Tracked   signal.Tracked
	Timestamp time.Time

	// RiskRejected is set when a no-signal or scheduled-cross path was
	// turned away by the Risk Validator this tick.
	RiskRejected bool
	RiskNote     string
	RiskMessage  string
}

func idleResult(strategy, symbol string, when time.Time) TickResult {
	return TickResult{State: ResultIdle, Strategy: strategy, Symbol: symbol, Timestamp: when}
}
