// Package signal defines the kernel's data model: the discriminated
// tracked-signal state machine, the user-supplied draft, the
// portfolio-wide view the risk validator consumes, and PnL accounting.
package signal

import (
	"time"

	"github.com/google/uuid"

	"github.com/ordinalkernel/tradekernel/internal/candle"
)

// Position is the side of a tracked signal.
type Position string

const (
	Long  Position = "long"
	Short Position = "short"
)

// State discriminates a TrackedSignal. Every consumer matches on State;
// fields belonging to a later state never appear on an earlier one.
type State string

const (
	StateScheduled State = "scheduled"
	StateOpened    State = "opened"
	StateActive    State = "active"
	StateClosed    State = "closed"
	StateCancelled State = "cancelled"
)

// CloseReason is why a position was closed.
type CloseReason string

const (
	ReasonTakeProfit  CloseReason = "take_profit"
	ReasonStopLoss    CloseReason = "stop_loss"
	ReasonTimeExpired CloseReason = "time_expired"
	ReasonCancelled   CloseReason = "cancelled"
	ReasonManual      CloseReason = "manual"
)

// Draft is the user-produced signal a strategy's GetSignal returns. ID
// is assigned by the lifecycle engine when absent.
type Draft struct {
	ID                  string
	Position            Position
	PriceOpen           float64 // 0 means "default to current VWAP"
	PriceTakeProfit     float64
	PriceStopLoss       float64
	MinuteEstimatedTime int
	Note                string
}

// HasExplicitPriceOpen reports whether the draft specified an entry price
// instead of deferring to the current VWAP.
func (d Draft) HasExplicitPriceOpen() bool {
	return d.PriceOpen > 0
}

// EnsureID assigns a uuid if the draft arrived without one.
func (d *Draft) EnsureID() {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
}

// PnL is the profit/loss breakdown computed on close.
type PnL struct {
	Percent float64
	Gross   float64
	Net     float64
}

// Tracked is a signal under lifecycle management. Not every field is
// meaningful at every State; State governs which are populated. A single
// struct (rather than a sum type per state) is used because Go has no
// tagged unions — callers MUST switch on State before reading
// state-specific fields, the convention every consumer in this codebase
// follows.
type Tracked struct {
	ID       string
	Strategy string
	Symbol   string
	State    State

	Position            Position
	PriceOpen           float64
	PriceTakeProfit     float64
	PriceStopLoss       float64
	MinuteEstimatedTime int
	Note                string

	ScheduledAt time.Time

	OpenedAt        time.Time
	PriceOpenActual float64

	PartialsHit      PartialSet
	BreakevenApplied bool

	ClosedAt    time.Time
	PriceClose  float64
	CloseReason CloseReason
	PnL         PnL

	CancelledAt    time.Time
	CancellationID string

	// LastTickAt records the When of the tick that scheduled the signal or
	// last advanced it while opened or active. The lifecycle engine's
	// interval throttle does not read it.
	LastTickAt time.Time
}

// NewScheduled builds a scheduled Tracked signal from a validated draft.
func NewScheduled(strategy, symbol string, d Draft, scheduledAt time.Time) Tracked {
	return Tracked{
		ID:                  d.ID,
		Strategy:            strategy,
		Symbol:              symbol,
		State:               StateScheduled,
		Position:            d.Position,
		PriceOpen:           d.PriceOpen,
		PriceTakeProfit:     d.PriceTakeProfit,
		PriceStopLoss:       d.PriceStopLoss,
		MinuteEstimatedTime: d.MinuteEstimatedTime,
		Note:                d.Note,
		ScheduledAt:         scheduledAt,
		PartialsHit:         map[float64]bool{},
		LastTickAt:          scheduledAt,
	}
}

// IsTerminal reports whether the signal can no longer transition.
func (t Tracked) IsTerminal() bool {
	return t.State == StateClosed || t.State == StateCancelled
}

// IsNonTerminal is the complement, used when building a PortfolioView:
// at most one non-terminal signal may exist per (strategy, symbol).
func (t Tracked) IsNonTerminal() bool {
	return !t.IsTerminal()
}

// Frame is a pure-config backtest window.
type Frame struct {
	Name      string
	Interval  candle.Interval
	StartDate time.Time
	EndDate   time.Time
}

// Key identifies a Signal Store slot.
type Key struct {
	Strategy string
	Symbol   string
}

func (k Key) String() string {
	return k.Strategy + "/" + k.Symbol
}
