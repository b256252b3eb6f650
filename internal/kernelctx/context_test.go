package kernelctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RejectsZeroValue(t *testing.T) {
	var tc TemporalContext
	assert.ErrorIs(t, tc.Validate(), ErrMissingContext)
}

func TestValidate_AcceptsBoundContext(t *testing.T) {
	tc := New("BTC/USDT", time.Now(), ModeLive)
	assert.NoError(t, tc.Validate())
}

func TestWithSymbol_CopiesRatherThanMutatesCaller(t *testing.T) {
	tc := New("BTC/USDT", time.Now(), ModeBacktest)
	child := tc.WithSymbol("ETH/USDT")

	assert.Equal(t, "BTC/USDT", tc.Symbol)
	assert.Equal(t, "ETH/USDT", child.Symbol)
	assert.Equal(t, tc.When, child.When)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "live", ModeLive.String())
	assert.Equal(t, "backtest", ModeBacktest.String())
}
