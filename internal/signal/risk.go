package signal

import "time"

// PortfolioKey identifies one entry in a PortfolioView. Keying by
// (strategy, symbol, signalId) keeps two strategies trading the same
// symbol both visible to a shared risk set.
type PortfolioKey struct {
	Strategy string
	Symbol   string
	SignalID string
}

// PortfolioView is the read-only, per-tick snapshot of every
// non-terminal signal across all strategies that share a risk set. It
// is derived — rebuilt each tick by scanning the signal store — never a
// live index.
type PortfolioView map[PortfolioKey]Tracked

// ActiveCount returns the number of non-terminal signals for symbol
// across the whole view.
func (v PortfolioView) ActiveCount(symbol string) int {
	n := 0
	for k := range v {
		if k.Symbol == symbol {
			n++
		}
	}
	return n
}

// Context is the evaluation context handed to each risk gate, built
// fresh for each evaluation.
type Context struct {
	Symbol              string
	StrategyName        string
	ExchangeName        string
	Timestamp           time.Time
	CurrentPrice        float64
	ActivePositions     PortfolioView
	ActivePositionCount int
	PendingSignal       Draft
}
