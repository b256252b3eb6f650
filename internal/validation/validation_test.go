package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"present", "mean-reversion", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator()
			v.Required("name", tt.value)
			assert.Equal(t, tt.wantErr, v.HasErrors())
		})
	}
}

func TestValidator_Lengths(t *testing.T) {
	v := NewValidator()
	v.MinLength("name", "ab", 3)
	v.MaxLength("note", strings.Repeat("x", 20), 10)
	assert.Len(t, v.Errors(), 2)
}

func TestValidator_NumericBounds(t *testing.T) {
	v := NewValidator()
	v.MinValue("lookback", 2, 5)
	v.MaxValue("deviation", 1.5, 1.0)
	v.Positive("take_profit_pct", 0)
	v.NonNegative("fee_percent", -0.1)
	assert.Len(t, v.Errors(), 4)

	v = NewValidator()
	v.MinValue("lookback", 5, 5)
	v.MaxValue("deviation", 1.0, 1.0)
	v.Positive("take_profit_pct", 0.02)
	v.NonNegative("fee_percent", 0)
	assert.False(t, v.HasErrors())
}

func TestValidator_OneOf(t *testing.T) {
	v := NewValidator()
	v.OneOf("interval", "5m", SupportedIntervals)
	assert.False(t, v.HasErrors())

	v.OneOf("interval", "2m", SupportedIntervals)
	assert.True(t, v.HasErrors())
}

func TestValidator_UUID(t *testing.T) {
	v := NewValidator()
	v.UUID("id", "a4f1c9ee-2b43-4d7a-9c1e-8e4f0a6b2d31")
	assert.False(t, v.HasErrors())

	v.UUID("id", "not-a-uuid")
	assert.True(t, v.HasErrors())
}

func TestValidator_Symbol(t *testing.T) {
	tests := []struct {
		symbol string
		valid  bool
	}{
		{"BTCUSDT", true},
		{"BTC/USDT", true},
		{"ETH/BTC", true},
		{"btcusdt", false},
		{"B", false},
		{"BTC USDT", false},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			v := NewValidator()
			v.Symbol("symbol", tt.symbol)
			assert.Equal(t, !tt.valid, v.HasErrors())
		})
	}
}

func TestValidator_Slug(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"mean-reversion", true},
		{"max_1_position", true},
		{"frame2024", true},
		{"Mean-Reversion", false},
		{"-leading", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			v := NewValidator()
			v.Slug("name", tt.slug)
			assert.Equal(t, !tt.valid, v.HasErrors())
		})
	}
}

func TestValidator_Position(t *testing.T) {
	v := NewValidator()
	v.Position("position", "long")
	v.Position("position", "short")
	assert.False(t, v.HasErrors())

	v.Position("position", "sideways")
	assert.True(t, v.HasErrors())
}

func TestDraftValidator_ValidatePrices_Long(t *testing.T) {
	v := NewDraftValidator()
	v.ValidatePrices("long", 42000, 43000, 41000)
	assert.False(t, v.HasErrors())

	v = NewDraftValidator()
	v.ValidatePrices("long", 42000, 41000, 43000) // sides inverted
	assert.Len(t, v.Errors(), 2)
}

func TestDraftValidator_ValidatePrices_Short(t *testing.T) {
	v := NewDraftValidator()
	v.ValidatePrices("short", 42000, 40000, 44000)
	assert.False(t, v.HasErrors())

	v = NewDraftValidator()
	v.ValidatePrices("short", 42000, 44000, 40000)
	assert.Len(t, v.Errors(), 2)
}

func TestDraftValidator_ValidatePrices_NoEntryYet(t *testing.T) {
	// price_open of 0 means "default to VWAP later": sides can't be
	// checked, only positivity.
	v := NewDraftValidator()
	v.ValidatePrices("long", 0, 43000, 41000)
	assert.False(t, v.HasErrors())
}

func TestDraftValidator_ValidateEstimatedTime(t *testing.T) {
	v := NewDraftValidator()
	v.ValidateEstimatedTime(60, 360)
	assert.False(t, v.HasErrors())

	v = NewDraftValidator()
	v.ValidateEstimatedTime(0, 360)
	assert.True(t, v.HasErrors())

	v = NewDraftValidator()
	v.ValidateEstimatedTime(400, 360)
	assert.True(t, v.HasErrors())
}

func TestFrameValidator(t *testing.T) {
	v := NewFrameValidator()
	v.ValidateInterval("interval", "1h")
	v.ValidateWindow("start_date", "end_date", 1700000000000, 1700086400000)
	assert.False(t, v.HasErrors())

	v = NewFrameValidator()
	v.ValidateInterval("interval", "7m")
	v.ValidateWindow("start_date", "end_date", 1700086400000, 1700000000000)
	assert.Len(t, v.Errors(), 2)
}

func TestValidationErrors_Error(t *testing.T) {
	v := NewValidator()
	v.AddError("a", "is bad")
	v.AddError("b", "is worse")

	msg := v.Errors().Error()
	assert.Contains(t, msg, "2 error(s)")
	assert.Contains(t, msg, "a: is bad")
	assert.Contains(t, msg, "b: is worse")

	assert.Empty(t, ValidationErrors{}.Error())
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello", SanitizeInput("  hello\x00  "))

	long := strings.Repeat("a", 20000)
	assert.Len(t, SanitizeInput(long), 10000)
}

func TestSanitizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", SanitizeSymbol(" btc usdt "))
	assert.Equal(t, "BTC/USDT", SanitizeSymbol("btc/usdt"))
}
