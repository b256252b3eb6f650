// Package strategy holds both halves of the strategy surface: the
// runtime Registration records the kernel executes (registration.go),
// and the declarative Document format operators use to define, export
// and share strategy configurations as YAML or JSON files.
package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// SchemaVersion is the current strategy document schema version.
const SchemaVersion = "1.1"

// SupportedSchemaVersions lists every schema version Import accepts,
// oldest first. Older versions are migrated forward on import.
var SupportedSchemaVersions = []string{"1.0", "1.1"}

// Document is an exportable, declarative strategy definition. It binds
// to a runtime Registration via Bind, which resolves the signal kind
// against the built-in catalog.
type Document struct {
	Metadata  Metadata    `yaml:"metadata" json:"metadata"`
	Execution Execution   `yaml:"execution" json:"execution"`
	Signal    SignalSpec  `yaml:"signal" json:"signal"`
	Risk      RiskSpec    `yaml:"risk" json:"risk"`
	Frames    []FrameSpec `yaml:"frames,omitempty" json:"frames,omitempty"`
}

// Metadata identifies and describes a strategy document.
type Metadata struct {
	SchemaVersion string    `yaml:"schema_version" json:"schema_version"`
	ID            string    `yaml:"id,omitempty" json:"id,omitempty"`
	Name          string    `yaml:"name" json:"name"`
	Description   string    `yaml:"description,omitempty" json:"description,omitempty"`
	Author        string    `yaml:"author,omitempty" json:"author,omitempty"`
	Version       string    `yaml:"version,omitempty" json:"version,omitempty"`
	Tags          []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt     time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt     time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
	Source        string    `yaml:"source,omitempty" json:"source,omitempty"` // "user", "import", "export", "migrated"
}

// Execution describes where and how often the strategy ticks.
type Execution struct {
	Interval string   `yaml:"interval" json:"interval"`
	Exchange string   `yaml:"exchange,omitempty" json:"exchange,omitempty"`
	Symbols  []string `yaml:"symbols,omitempty" json:"symbols,omitempty"`
}

// SignalSpec selects one of the built-in signal kinds and its
// parameters. Exactly one parameter block should be set, matching Kind.
type SignalSpec struct {
	Kind          string               `yaml:"kind" json:"kind"`
	MeanReversion *MeanReversionParams `yaml:"mean_reversion,omitempty" json:"mean_reversion,omitempty"`
	Breakout      *BreakoutParams      `yaml:"breakout,omitempty" json:"breakout,omitempty"`
}

// Signal kinds resolvable by Bind.
const (
	KindMeanReversion = "mean_reversion"
	KindBreakout      = "breakout"
)

// SignalKinds is the catalog of built-in signal kinds.
var SignalKinds = []string{KindMeanReversion, KindBreakout}

// MeanReversionParams parameterize the mean-reversion signal kind.
type MeanReversionParams struct {
	LookbackCandles     int     `yaml:"lookback_candles" json:"lookback_candles"`
	EntryDeviationPct   float64 `yaml:"entry_deviation_pct" json:"entry_deviation_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	StopLossPct         float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	MinuteEstimatedTime int     `yaml:"minute_estimated_time" json:"minute_estimated_time"`
}

// BreakoutParams parameterize the breakout signal kind.
type BreakoutParams struct {
	LookbackCandles     int     `yaml:"lookback_candles" json:"lookback_candles"`
	BreakoutPct         float64 `yaml:"breakout_pct" json:"breakout_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	StopLossPct         float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	MinuteEstimatedTime int     `yaml:"minute_estimated_time" json:"minute_estimated_time"`
}

// RiskSpec names the risk set the strategy runs under.
type RiskSpec struct {
	RiskName        string   `yaml:"risk_name,omitempty" json:"risk_name,omitempty"`
	RiskList        []string `yaml:"risk_list,omitempty" json:"risk_list,omitempty"`
	MaxPositions    int      `yaml:"max_positions,omitempty" json:"max_positions,omitempty"`
	CooldownMinutes int      `yaml:"cooldown_minutes,omitempty" json:"cooldown_minutes,omitempty"`
}

// FrameSpec is a named backtest window carried inside a document so a
// shared strategy file brings its reference backtest periods along.
type FrameSpec struct {
	Name      string    `yaml:"name" json:"name"`
	Interval  string    `yaml:"interval" json:"interval"`
	StartDate time.Time `yaml:"start_date" json:"start_date"`
	EndDate   time.Time `yaml:"end_date" json:"end_date"`
}

// NewDocument returns a document with metadata initialized for name and
// defaults applied.
func NewDocument(name string) *Document {
	now := time.Now().UTC()
	doc := &Document{
		Metadata: Metadata{
			SchemaVersion: SchemaVersion,
			ID:            uuid.NewString(),
			Name:          name,
			Version:       "0.1.0",
			CreatedAt:     now,
			UpdatedAt:     now,
			Source:        "user",
		},
	}
	ApplyDefaults(doc)
	return doc
}

// Clone returns a deep copy of the document with a fresh ID, the way an
// operator forks someone else's shared configuration.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Metadata.ID = uuid.NewString()
	cp.Metadata.Source = "user"
	cp.Metadata.CreatedAt = time.Now().UTC()
	cp.Metadata.UpdatedAt = cp.Metadata.CreatedAt

	cp.Metadata.Tags = append([]string(nil), d.Metadata.Tags...)
	cp.Execution.Symbols = append([]string(nil), d.Execution.Symbols...)
	cp.Risk.RiskList = append([]string(nil), d.Risk.RiskList...)
	cp.Frames = append([]FrameSpec(nil), d.Frames...)
	if d.Signal.MeanReversion != nil {
		mr := *d.Signal.MeanReversion
		cp.Signal.MeanReversion = &mr
	}
	if d.Signal.Breakout != nil {
		bo := *d.Signal.Breakout
		cp.Signal.Breakout = &bo
	}
	return &cp
}

// Bind resolves the document into a runtime Registration against gw.
// The document must validate first; Bind re-validates defensively so a
// hand-edited file cannot slip an unknown kind into the registry.
func (d *Document) Bind(gw *gateway.Gateway) (Registration, error) {
	if err := Validate(d); err != nil {
		return Registration{}, err
	}

	interval := candle.Interval(d.Execution.Interval)
	switch d.Signal.Kind {
	case KindMeanReversion:
		p := d.Signal.MeanReversion
		reg := NewMeanReversion(d.Metadata.Name, gw, MeanReversionConfig{
			Interval:            interval,
			LookbackCandles:     p.LookbackCandles,
			EntryDeviationPct:   p.EntryDeviationPct,
			TakeProfitPct:       p.TakeProfitPct,
			StopLossPct:         p.StopLossPct,
			MinuteEstimatedTime: p.MinuteEstimatedTime,
		})
		reg.RiskName = d.Risk.RiskName
		reg.RiskList = append([]string(nil), d.Risk.RiskList...)
		return reg, nil
	case KindBreakout:
		p := d.Signal.Breakout
		reg := NewBreakout(d.Metadata.Name, gw, BreakoutConfig{
			Interval:            interval,
			LookbackCandles:     p.LookbackCandles,
			BreakoutPct:         p.BreakoutPct,
			TakeProfitPct:       p.TakeProfitPct,
			StopLossPct:         p.StopLossPct,
			MinuteEstimatedTime: p.MinuteEstimatedTime,
		})
		reg.RiskName = d.Risk.RiskName
		reg.RiskList = append([]string(nil), d.Risk.RiskList...)
		return reg, nil
	default:
		return Registration{}, fmt.Errorf("strategy: unknown signal kind %q", d.Signal.Kind)
	}
}

// FrameDefs converts the document's frame specs into runtime frames.
func (d *Document) FrameDefs() []signal.Frame {
	out := make([]signal.Frame, 0, len(d.Frames))
	for _, f := range d.Frames {
		out = append(out, signal.Frame{
			Name:      f.Name,
			Interval:  candle.Interval(f.Interval),
			StartDate: f.StartDate,
			EndDate:   f.EndDate,
		})
	}
	return out
}
