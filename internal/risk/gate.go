// Package risk implements the risk validator: an ordered list of
// validation predicates evaluated against a portfolio-wide view, where
// the first failure stops execution.
package risk

import (
	"fmt"

	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// Gate is one named, ordered risk predicate. Evaluate either passes or
// fails with a note that becomes the rejection's note.
type Gate interface {
	Name() string
	Evaluate(ctx signal.Context) (ok bool, note string, err error)
}

// FuncGate adapts a plain function to Gate, the common case for
// validations registered inline.
type FuncGate struct {
	GateName string
	Note     string
	Fn       func(ctx signal.Context) (bool, error)
}

func (f FuncGate) Name() string { return f.GateName }

func (f FuncGate) Evaluate(ctx signal.Context) (bool, string, error) {
	ok, err := f.Fn(ctx)
	if err != nil {
		return false, f.Note, err
	}
	return ok, f.Note, nil
}

// Risk is a named, ordered collection of Gates: one entry in a
// strategy's risk set.
type Risk struct {
	Name       string
	Gates      []Gate
	OnRejected func(ctx signal.Context, gateName, note, message string)
	OnAllowed  func(ctx signal.Context)
}

// Outcome is the result of running a strategy's risk set.
type Outcome struct {
	Allowed              bool
	RiskName             string
	GateName             string
	Note                 string
	Message              string
	FailedPredicateIndex int
}

// Validator runs a strategy's risk set: riskName (if any) first, then
// riskList in order, merging their gates into one flat ordered sequence
// and stopping at the first failure.
type Validator struct {
	risks map[string]Risk
}

// NewValidator builds an empty Validator; Register adds named risks.
func NewValidator() *Validator {
	return &Validator{risks: map[string]Risk{}}
}

// Register adds or replaces a named Risk.
func (v *Validator) Register(r Risk) {
	v.risks[r.Name] = r
}

// Lookup returns a registered risk by name.
func (v *Validator) Lookup(name string) (Risk, bool) {
	r, ok := v.risks[name]
	return r, ok
}

// Evaluate runs the merged, ordered gate list of riskName (if
// non-empty, first) followed by riskList, against ctx, stopping at the
// first failure. Passing gates run OnAllowed callbacks, which are never
// published on the bus; a failing gate runs OnRejected and the caller
// publishes risk-rejected. The allow path stays silent so the topic
// carries rejections only.
func (v *Validator) Evaluate(ctx signal.Context, riskName string, riskList []string) (Outcome, error) {
	names := mergeRiskNames(riskName, riskList)
	index := 0
	for _, name := range names {
		r, ok := v.risks[name]
		if !ok {
			return Outcome{}, fmt.Errorf("risk: unregistered risk %q", name)
		}
		for _, gate := range r.Gates {
			ok, note, err := gate.Evaluate(ctx)
			if err != nil {
				return Outcome{}, fmt.Errorf("risk: gate %s/%s: %w", name, gate.Name(), err)
			}
			if !ok {
				message := fmt.Sprintf("%s: %s rejected by %s", name, gate.Name(), note)
				if r.OnRejected != nil {
					r.OnRejected(ctx, gate.Name(), note, message)
				}
				return Outcome{
					Allowed:              false,
					RiskName:             name,
					GateName:             gate.Name(),
					Note:                 note,
					Message:              message,
					FailedPredicateIndex: index,
				}, nil
			}
			index++
		}
		if r.OnAllowed != nil {
			r.OnAllowed(ctx)
		}
	}
	return Outcome{Allowed: true}, nil
}

func mergeRiskNames(riskName string, riskList []string) []string {
	out := make([]string, 0, 1+len(riskList))
	if riskName != "" {
		out = append(out, riskName)
	}
	out = append(out, riskList...)
	return out
}
