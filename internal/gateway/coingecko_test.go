package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinalkernel/tradekernel/internal/candle"
)

func coinGeckoStub(t *testing.T, prices [][2]float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/coins/bitcoin/market_chart")
		_ = json.NewEncoder(w).Encode(map[string]any{"prices": prices})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoinGeckoAdapter_BucketsPricePoints(t *testing.T) {
	since := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	// two points inside minute 0, one inside minute 1
	prices := [][2]float64{
		{float64(since.Add(10 * time.Second).UnixMilli()), 42000},
		{float64(since.Add(40 * time.Second).UnixMilli()), 42100},
		{float64(since.Add(70 * time.Second).UnixMilli()), 41900},
	}
	srv := coinGeckoStub(t, prices)

	adapter := NewCoinGeckoAdapter(map[string]string{"BTC/USDT": "bitcoin"}).WithBaseURL(srv.URL)

	candles, err := adapter.GetCandles(context.Background(), "BTC/USDT", candle.Interval1m, since, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, since, candles[0].Timestamp)
	assert.Equal(t, 42000.0, candles[0].Open)
	assert.Equal(t, 42100.0, candles[0].High)
	assert.Equal(t, 42100.0, candles[0].Close)
	assert.Zero(t, candles[0].Volume)

	assert.Equal(t, 41900.0, candles[1].Close)
}

func TestCoinGeckoAdapter_UnknownSymbol(t *testing.T) {
	adapter := NewCoinGeckoAdapter(map[string]string{})
	_, err := adapter.GetCandles(context.Background(), "DOGE/USDT", candle.Interval1m, time.Now(), 1)
	assert.Error(t, err)
}

func TestCoinGeckoAdapter_ZeroVolumeFallsBackToMeanVWAP(t *testing.T) {
	// synthetic candles carry zero volume, so the gateway's average
	// price must come from the simple-mean fallback
	candles := []candle.Candle{
		{Timestamp: time.Now(), Close: 42000, High: 42000, Low: 42000},
		{Timestamp: time.Now(), Close: 43000, High: 43000, Low: 43000},
	}
	assert.Equal(t, 42500.0, VWAP(candles))
}
