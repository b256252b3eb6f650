package strategy

import (
	"fmt"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// GetSignal is a strategy's entry-point callback: given the symbol
// under the ambient TemporalContext, return a draft to pursue or nil
// for "nothing to do this tick".
type GetSignal func(ctx kernelctx.TemporalContext) (*signal.Draft, error)

// Callbacks are the optional lifecycle observers a strategy may
// register. Each receives the tracked signal as it stood at the moment
// of the transition; none may mutate the signal store directly.
type Callbacks struct {
	OnOpen      func(kernelctx.TemporalContext, signal.Tracked)
	OnClose     func(kernelctx.TemporalContext, signal.Tracked)
	OnTick      func(kernelctx.TemporalContext, signal.Tracked)
	OnActive    func(kernelctx.TemporalContext, signal.Tracked)
	OnTimeframe func(kernelctx.TemporalContext)
}

// Registration is one strategy's full registration record: a tick
// interval, a risk set, a signal source, and optional observers.
type Registration struct {
	Name      string
	Interval  candle.Interval
	RiskName  string
	RiskList  []string
	GetSignal GetSignal
	Callbacks Callbacks
}

func (r Registration) validate() error {
	if r.Name == "" {
		return fmt.Errorf("strategy: name must not be empty")
	}
	if r.GetSignal == nil {
		return fmt.Errorf("strategy: %s: getSignal is required", r.Name)
	}
	return nil
}

// Registry holds every registered Registration, keyed by name.
type Registry struct {
	entries map[string]Registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]Registration{}}
}

// Register adds r, rejecting a duplicate name or an invalid record.
func (reg *Registry) Register(r Registration) error {
	if err := r.validate(); err != nil {
		return err
	}
	if _, exists := reg.entries[r.Name]; exists {
		return fmt.Errorf("strategy: duplicate registration %q", r.Name)
	}
	reg.entries[r.Name] = r
	return nil
}

// Lookup returns the Registration for name.
func (reg *Registry) Lookup(name string) (Registration, bool) {
	r, ok := reg.entries[name]
	return r, ok
}
