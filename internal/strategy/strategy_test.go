package strategy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// flatAdapter returns constant-price candles, enough for binding and
// exercising a bound registration's GetSignal.
type flatAdapter struct {
	price float64
}

func (a flatAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error) {
	step, err := candle.Step(interval)
	if err != nil {
		return nil, err
	}
	out := make([]candle.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, candle.Candle{
			Timestamp: since.Add(time.Duration(i) * step),
			Open:      a.price, High: a.price, Low: a.price, Close: a.price,
			Volume: 1,
		})
	}
	return out, nil
}

func (a flatAdapter) FormatPrice(symbol string, x float64) string    { return "x" }
func (a flatAdapter) FormatQuantity(symbol string, q float64) string { return "q" }

func testGateway() *gateway.Gateway {
	return gateway.New("test", flatAdapter{price: 42000}, 5, 0)
}

func validDocument() *Document {
	doc := NewDocument("mean-reversion")
	doc.Execution.Interval = "5m"
	doc.Execution.Symbols = []string{"BTCUSDT"}
	doc.Risk.RiskName = "max-1-position"
	return doc
}

func TestNewDocument_Defaults(t *testing.T) {
	doc := NewDocument("mean-reversion")

	assert.Equal(t, SchemaVersion, doc.Metadata.SchemaVersion)
	assert.NotEmpty(t, doc.Metadata.ID)
	assert.Equal(t, "mean-reversion", doc.Metadata.Name)
	assert.Equal(t, "user", doc.Metadata.Source)
	assert.Equal(t, defaultInterval, doc.Execution.Interval)
	assert.Equal(t, KindMeanReversion, doc.Signal.Kind)
	require.NotNil(t, doc.Signal.MeanReversion)
	assert.Equal(t, defaultLookbackCandles, doc.Signal.MeanReversion.LookbackCandles)
	assert.Equal(t, defaultTakeProfitPct, doc.Signal.MeanReversion.TakeProfitPct)
}

func TestApplyDefaults_DoesNotOverwrite(t *testing.T) {
	doc := &Document{
		Signal: SignalSpec{
			Kind: KindBreakout,
			Breakout: &BreakoutParams{
				LookbackCandles: 50,
				BreakoutPct:     0.03,
			},
		},
	}
	ApplyDefaults(doc)

	assert.Equal(t, 50, doc.Signal.Breakout.LookbackCandles)
	assert.Equal(t, 0.03, doc.Signal.Breakout.BreakoutPct)
	assert.Equal(t, defaultStopLossPct, doc.Signal.Breakout.StopLossPct)
	assert.Equal(t, defaultMinuteEstimatedTime, doc.Signal.Breakout.MinuteEstimatedTime)
}

func TestValidate_ValidDocument(t *testing.T) {
	assert.NoError(t, Validate(validDocument()))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
		field  string
	}{
		{"missing name", func(d *Document) { d.Metadata.Name = "" }, "metadata.name"},
		{"name not a slug", func(d *Document) { d.Metadata.Name = "Mean Reversion!" }, "metadata.name"},
		{"bad interval", func(d *Document) { d.Execution.Interval = "2m" }, "execution.interval"},
		{"bad symbol", func(d *Document) { d.Execution.Symbols = []string{"btc"} }, "execution.symbols[0]"},
		{"unknown kind", func(d *Document) { d.Signal.Kind = "astrology" }, "signal.kind"},
		{"missing params", func(d *Document) { d.Signal.MeanReversion = nil }, "signal.mean_reversion"},
		{"estimated time too long", func(d *Document) { d.Signal.MeanReversion.MinuteEstimatedTime = 999 }, "signal.mean_reversion.minute_estimated_time"},
		{"zero stop loss", func(d *Document) { d.Signal.MeanReversion.StopLossPct = 0 }, "signal.mean_reversion.stop_loss_pct"},
		{"bad risk name", func(d *Document) { d.Risk.RiskName = "Max Position" }, "risk.risk_name"},
		{"unsupported schema", func(d *Document) { d.Metadata.SchemaVersion = "9.9" }, "metadata.schema_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			tt.mutate(doc)
			err := Validate(doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_DuplicateFrameNames(t *testing.T) {
	doc := validDocument()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	doc.Frames = []FrameSpec{
		{Name: "january", Interval: "1h", StartDate: start, EndDate: end},
		{Name: "january", Interval: "1h", StartDate: start, EndDate: end},
	}

	err := Validate(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate frame name")
}

func TestDocument_Clone(t *testing.T) {
	doc := validDocument()
	doc.Metadata.Tags = []string{"demo"}

	cp := doc.Clone()

	assert.NotEqual(t, doc.Metadata.ID, cp.Metadata.ID)
	assert.Equal(t, doc.Metadata.Name, cp.Metadata.Name)
	assert.Equal(t, "user", cp.Metadata.Source)

	// deep copy: mutating the clone must not touch the original
	cp.Signal.MeanReversion.LookbackCandles = 99
	cp.Metadata.Tags[0] = "changed"
	assert.Equal(t, defaultLookbackCandles, doc.Signal.MeanReversion.LookbackCandles)
	assert.Equal(t, "demo", doc.Metadata.Tags[0])
}

func TestDocument_Bind_MeanReversion(t *testing.T) {
	doc := validDocument()
	reg, err := doc.Bind(testGateway())
	require.NoError(t, err)

	assert.Equal(t, "mean-reversion", reg.Name)
	assert.Equal(t, candle.Interval5m, reg.Interval)
	assert.Equal(t, "max-1-position", reg.RiskName)
	require.NotNil(t, reg.GetSignal)

	// flat prices produce no deviation, so no draft
	tc := kernelctx.New("BTCUSDT", time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), kernelctx.ModeBacktest)
	draft, err := reg.GetSignal(tc)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestDocument_Bind_Breakout(t *testing.T) {
	doc := validDocument()
	doc.Metadata.Name = "breakout-demo"
	doc.Signal = SignalSpec{Kind: KindBreakout}
	ApplyDefaults(doc)

	reg, err := doc.Bind(testGateway())
	require.NoError(t, err)
	assert.Equal(t, "breakout-demo", reg.Name)
}

func TestDocument_Bind_RejectsInvalid(t *testing.T) {
	doc := validDocument()
	doc.Signal.Kind = "astrology"

	_, err := doc.Bind(testGateway())
	assert.Error(t, err)
}

func TestDocument_FrameDefs(t *testing.T) {
	doc := validDocument()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)
	doc.Frames = []FrameSpec{{Name: "january", Interval: "1h", StartDate: start, EndDate: end}}

	frames := doc.FrameDefs()
	require.Len(t, frames, 1)
	assert.Equal(t, signal.Frame{
		Name:      "january",
		Interval:  candle.Interval1h,
		StartDate: start,
		EndDate:   end,
	}, frames[0])
}

func TestExportImport_RoundTripYAML(t *testing.T) {
	doc := validDocument()
	doc.Metadata.Description = "reference configuration"
	doc.Metadata.Tags = []string{"demo", "reference"}

	data, err := Export(doc, DefaultExportOptions())
	require.NoError(t, err)
	assert.Contains(t, string(data), "TradeKernel strategy document")

	imported, err := Import(data, ImportOptions{ValidateStrict: true})
	require.NoError(t, err)

	assert.Equal(t, doc.Metadata.Name, imported.Metadata.Name)
	assert.Equal(t, doc.Metadata.Description, imported.Metadata.Description)
	assert.Equal(t, doc.Signal.Kind, imported.Signal.Kind)
	assert.Equal(t, doc.Signal.MeanReversion.LookbackCandles, imported.Signal.MeanReversion.LookbackCandles)
	// ID preserved when GenerateNewID is off
	assert.Equal(t, doc.Metadata.ID, imported.Metadata.ID)
}

func TestExportImport_RoundTripJSON(t *testing.T) {
	doc := validDocument()

	data, err := Export(doc, ExportOptions{Format: FormatJSON, IncludeMetadata: true, PrettyPrint: true})
	require.NoError(t, err)

	imported, err := Import(data, DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata.Name, imported.Metadata.Name)
	// default import generates a fresh id
	assert.NotEqual(t, doc.Metadata.ID, imported.Metadata.ID)
}

func TestExport_NilDocument(t *testing.T) {
	_, err := Export(nil, DefaultExportOptions())
	assert.Error(t, err)
}

func TestExport_UnsupportedFormat(t *testing.T) {
	_, err := Export(validDocument(), ExportOptions{Format: "toml"})
	assert.Error(t, err)
}

func TestImport_SanitizesInput(t *testing.T) {
	yaml := `
metadata:
  name: "  mean-reversion  "
execution:
  interval: 5m
  symbols: ["btc usdt"]
signal:
  kind: mean_reversion
`
	doc, err := Import([]byte(yaml), DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, "mean-reversion", doc.Metadata.Name)
	assert.Equal(t, "BTCUSDT", doc.Execution.Symbols[0])
}

func TestImport_RejectsInvalidStrict(t *testing.T) {
	yaml := `
metadata:
  name: "Bad Name!"
signal:
  kind: mean_reversion
`
	_, err := Import([]byte(yaml), DefaultImportOptions())
	assert.Error(t, err)
}

func TestImport_LenientSkipsValidation(t *testing.T) {
	yaml := `
metadata:
  name: "Bad Name!"
signal:
  kind: mean_reversion
`
	doc, err := Import([]byte(yaml), ImportOptions{ValidateStrict: false, GenerateNewID: true})
	require.NoError(t, err)
	assert.Equal(t, "Bad Name!", doc.Metadata.Name)
}

func TestExportImport_File(t *testing.T) {
	doc := validDocument()
	path := filepath.Join(t.TempDir(), "strategy.yaml")

	require.NoError(t, ExportToFile(doc, path, ExportOptions{IncludeMetadata: true, PrettyPrint: true}))

	imported, err := ImportFromFile(path, DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata.Name, imported.Metadata.Name)
}

func TestImportFromFile_Missing(t *testing.T) {
	_, err := ImportFromFile(filepath.Join(t.TempDir(), "absent.yaml"), DefaultImportOptions())
	assert.Error(t, err)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	reg := NewMeanReversion("mean-reversion", testGateway(), DefaultMeanReversionConfig())
	require.NoError(t, registry.Register(reg))

	got, ok := registry.Lookup("mean-reversion")
	require.True(t, ok)
	assert.Equal(t, "mean-reversion", got.Name)

	_, ok = registry.Lookup("absent")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	reg := NewMeanReversion("mean-reversion", testGateway(), DefaultMeanReversionConfig())

	require.NoError(t, registry.Register(reg))
	err := registry.Register(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(Registration{Name: ""}))
	assert.Error(t, registry.Register(Registration{Name: "no-signal"}))
}
