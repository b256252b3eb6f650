package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ordinalkernel/tradekernel/internal/candle"
)

// CoinGeckoAdapter is a secondary Adapter for markets without native
// OHLC klines: it calls the market_chart endpoint for a raw price
// series and buckets it into synthetic candles
// at the requested interval. Open/high/low/close within a bucket are all
// derived from the same price points (CoinGecko's free tier exposes price
// only, not OHLC), so volume is always zero and GetAveragePrice falls
// back to the simple mean of closes, the explicit zero-volume path.
type CoinGeckoAdapter struct {
	baseURL    string
	httpClient *http.Client
	coinIDs    map[string]string // symbol -> CoinGecko coin id
}

// NewCoinGeckoAdapter builds an adapter. coinIDs maps this kernel's
// symbol spelling ("BTC/USDT") to CoinGecko's id ("bitcoin").
func NewCoinGeckoAdapter(coinIDs map[string]string) *CoinGeckoAdapter {
	return &CoinGeckoAdapter{
		baseURL:    "https://api.coingecko.com/api/v3",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		coinIDs:    coinIDs,
	}
}

// WithBaseURL points the adapter at a different API host, used by
// tests against a stub server.
func (a *CoinGeckoAdapter) WithBaseURL(baseURL string) *CoinGeckoAdapter {
	a.baseURL = baseURL
	return a
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"` // [ms-epoch, price]
}

func (a *CoinGeckoAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error) {
	coinID, ok := a.coinIDs[symbol]
	if !ok {
		return nil, fmt.Errorf("coingecko adapter: no coin id registered for symbol %q", symbol)
	}
	step, err := candle.Step(interval)
	if err != nil {
		return nil, err
	}
	until := since.Add(time.Duration(limit) * step)
	days := int(time.Until(since).Abs().Hours()/24) + int(until.Sub(since).Hours()/24) + 1

	reqURL := fmt.Sprintf("%s/coins/%s/market_chart?%s", a.baseURL, coinID, url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko adapter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko adapter: status %d", resp.StatusCode)
	}

	var chart marketChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("coingecko adapter: decode: %w", err)
	}

	return bucketCandles(chart.Prices, since, step, limit), nil
}

// bucketCandles buckets raw (ms, price) points into synthetic OHLC bars,
// one per step starting at since, zero-filling volume.
func bucketCandles(points [][2]float64, since time.Time, step time.Duration, limit int) []candle.Candle {
	out := make([]candle.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		bucketStart := since.Add(time.Duration(i) * step)
		bucketEnd := bucketStart.Add(step)
		var prices []float64
		for _, p := range points {
			t := time.UnixMilli(int64(p[0])).UTC()
			if !t.Before(bucketStart) && t.Before(bucketEnd) {
				prices = append(prices, p[1])
			}
		}
		if len(prices) == 0 {
			continue
		}
		o, h, l, c := prices[0], prices[0], prices[0], prices[len(prices)-1]
		for _, p := range prices {
			if p > h {
				h = p
			}
			if p < l {
				l = p
			}
		}
		out = append(out, candle.Candle{Timestamp: bucketStart, Open: o, High: h, Low: l, Close: c})
	}
	return out
}

func (a *CoinGeckoAdapter) FormatPrice(symbol string, x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

func (a *CoinGeckoAdapter) FormatQuantity(symbol string, q float64) string {
	return strconv.FormatFloat(q, 'f', 8, 64)
}
