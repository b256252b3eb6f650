package risk

import (
	"strings"

	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
)

// SharedSet names the strategies that share one risk set's portfolio
// view. There is no central positions manager; each strategy's risk
// validator builds its own view by reading the signal store. Strategies
// that register the same riskName are treated as sharing capital for
// PortfolioView purposes.
type SharedSet struct {
	RiskName   string
	Strategies []string
}

// BuildPortfolioView scans st for every non-terminal tracked signal
// belonging to a strategy in strategies, for symbol (or every symbol
// when symbol is ""), and returns a copy-on-read snapshot, never a live
// reference into store state.
func BuildPortfolioView(st *store.Store, strategies []string, symbol string) signal.PortfolioView {
	want := make(map[string]bool, len(strategies))
	for _, s := range strategies {
		want[s] = true
	}

	view := signal.PortfolioView{}
	for _, key := range st.Keys() {
		if len(want) > 0 && !want[key.Strategy] {
			continue
		}
		if symbol != "" && !strings.EqualFold(key.Symbol, symbol) {
			continue
		}
		tracked, ok := st.Read(key)
		if !ok || tracked.IsTerminal() {
			continue
		}
		view[signal.PortfolioKey{
			Strategy: key.Strategy,
			Symbol:   key.Symbol,
			SignalID: tracked.ID,
		}] = tracked
	}
	return view
}
