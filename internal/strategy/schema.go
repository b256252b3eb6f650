package strategy

import (
	"fmt"

	"github.com/ordinalkernel/tradekernel/internal/validation"
)

// Default parameter values applied to documents that omit them.
const (
	defaultLookbackCandles     = 20
	defaultEntryDeviationPct   = 0.01
	defaultBreakoutPct         = 0.015
	defaultTakeProfitPct       = 0.02
	defaultStopLossPct         = 0.01
	defaultMinuteEstimatedTime = 240
	defaultInterval            = "5m"
)

// ApplyDefaults fills any omitted field with its default so a minimal
// hand-written YAML file still binds cleanly. It never overwrites a
// value the author set.
func ApplyDefaults(d *Document) {
	if d.Metadata.SchemaVersion == "" {
		d.Metadata.SchemaVersion = SchemaVersion
	}
	if d.Execution.Interval == "" {
		d.Execution.Interval = defaultInterval
	}
	if d.Signal.Kind == "" {
		d.Signal.Kind = KindMeanReversion
	}

	switch d.Signal.Kind {
	case KindMeanReversion:
		if d.Signal.MeanReversion == nil {
			d.Signal.MeanReversion = &MeanReversionParams{}
		}
		p := d.Signal.MeanReversion
		if p.LookbackCandles == 0 {
			p.LookbackCandles = defaultLookbackCandles
		}
		if p.EntryDeviationPct == 0 {
			p.EntryDeviationPct = defaultEntryDeviationPct
		}
		applyExitDefaults(&p.TakeProfitPct, &p.StopLossPct, &p.MinuteEstimatedTime)
	case KindBreakout:
		if d.Signal.Breakout == nil {
			d.Signal.Breakout = &BreakoutParams{}
		}
		p := d.Signal.Breakout
		if p.LookbackCandles == 0 {
			p.LookbackCandles = defaultLookbackCandles
		}
		if p.BreakoutPct == 0 {
			p.BreakoutPct = defaultBreakoutPct
		}
		applyExitDefaults(&p.TakeProfitPct, &p.StopLossPct, &p.MinuteEstimatedTime)
	}
}

func applyExitDefaults(tp, sl *float64, minutes *int) {
	if *tp == 0 {
		*tp = defaultTakeProfitPct
	}
	if *sl == 0 {
		*sl = defaultStopLossPct
	}
	if *minutes == 0 {
		*minutes = defaultMinuteEstimatedTime
	}
}

// Validate checks a document field by field, accumulating every problem
// before returning them as one validation.ValidationErrors.
func Validate(d *Document) error {
	if d == nil {
		return fmt.Errorf("strategy: document cannot be nil")
	}

	v := validation.NewValidator()

	validateMetadata(v, d.Metadata)
	validateExecution(v, d.Execution)
	validateSignalSpec(v, d.Signal)
	validateRiskSpec(v, d.Risk)
	validateFrames(v, d.Frames)

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

func validateMetadata(v *validation.Validator, m Metadata) {
	v.Required("metadata.name", m.Name)
	if m.Name != "" {
		v.Slug("metadata.name", m.Name)
		v.MaxLength("metadata.name", m.Name, 64)
	}
	if m.SchemaVersion != "" && !IsVersionSupported(m.SchemaVersion) {
		v.AddError("metadata.schema_version", fmt.Sprintf("unsupported schema version %q", m.SchemaVersion))
	}
	if m.ID != "" {
		v.UUID("metadata.id", m.ID)
	}
	v.MaxLength("metadata.description", m.Description, 1024)
}

func validateExecution(v *validation.Validator, e Execution) {
	v.OneOf("execution.interval", e.Interval, validation.SupportedIntervals)
	for i, symbol := range e.Symbols {
		v.Symbol(fmt.Sprintf("execution.symbols[%d]", i), symbol)
	}
}

func validateSignalSpec(v *validation.Validator, s SignalSpec) {
	v.OneOf("signal.kind", s.Kind, SignalKinds)

	switch s.Kind {
	case KindMeanReversion:
		if s.MeanReversion == nil {
			v.AddError("signal.mean_reversion", "is required for kind mean_reversion")
			return
		}
		p := s.MeanReversion
		v.MinValue("signal.mean_reversion.lookback_candles", float64(p.LookbackCandles), 2)
		v.MaxValue("signal.mean_reversion.lookback_candles", float64(p.LookbackCandles), 1000)
		v.Positive("signal.mean_reversion.entry_deviation_pct", p.EntryDeviationPct)
		v.MaxValue("signal.mean_reversion.entry_deviation_pct", p.EntryDeviationPct, 1)
		validateExitParams(v, "signal.mean_reversion", p.TakeProfitPct, p.StopLossPct, p.MinuteEstimatedTime)
	case KindBreakout:
		if s.Breakout == nil {
			v.AddError("signal.breakout", "is required for kind breakout")
			return
		}
		p := s.Breakout
		v.MinValue("signal.breakout.lookback_candles", float64(p.LookbackCandles), 2)
		v.MaxValue("signal.breakout.lookback_candles", float64(p.LookbackCandles), 1000)
		v.Positive("signal.breakout.breakout_pct", p.BreakoutPct)
		v.MaxValue("signal.breakout.breakout_pct", p.BreakoutPct, 1)
		validateExitParams(v, "signal.breakout", p.TakeProfitPct, p.StopLossPct, p.MinuteEstimatedTime)
	}
}

func validateExitParams(v *validation.Validator, prefix string, tp, sl float64, minutes int) {
	v.Positive(prefix+".take_profit_pct", tp)
	v.MaxValue(prefix+".take_profit_pct", tp, 10)
	v.Positive(prefix+".stop_loss_pct", sl)
	v.MaxValue(prefix+".stop_loss_pct", sl, 1)
	if minutes <= 0 {
		v.AddError(prefix+".minute_estimated_time", "must be positive")
	} else if minutes > 360 {
		v.AddError(prefix+".minute_estimated_time", "must be at most 360 minutes")
	}
}

func validateRiskSpec(v *validation.Validator, r RiskSpec) {
	if r.RiskName != "" {
		v.Slug("risk.risk_name", r.RiskName)
	}
	for i, name := range r.RiskList {
		v.Slug(fmt.Sprintf("risk.risk_list[%d]", i), name)
	}
	v.NonNegative("risk.max_positions", float64(r.MaxPositions))
	v.NonNegative("risk.cooldown_minutes", float64(r.CooldownMinutes))
}

func validateFrames(v *validation.Validator, frames []FrameSpec) {
	seen := map[string]bool{}
	for i, f := range frames {
		prefix := fmt.Sprintf("frames[%d]", i)
		v.Required(prefix+".name", f.Name)
		if f.Name != "" {
			v.Slug(prefix+".name", f.Name)
			if seen[f.Name] {
				v.AddError(prefix+".name", fmt.Sprintf("duplicate frame name %q", f.Name))
			}
			seen[f.Name] = true
		}
		fv := validation.NewFrameValidator()
		fv.ValidateInterval(prefix+".interval", f.Interval)
		fv.ValidateWindow(prefix+".start_date", prefix+".end_date", f.StartDate.UnixMilli(), f.EndDate.UnixMilli())
		for _, e := range fv.Errors() {
			v.AddError(e.Field, e.Message)
		}
	}
}
