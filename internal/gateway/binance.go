package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binancesdk "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"github.com/ordinalkernel/tradekernel/internal/candle"
)

// intervalStrings maps candle.Interval to Binance's kline interval
// strings. This adapter covers the candle-fetching contract only, not
// order routing.
var intervalStrings = map[candle.Interval]string{
	candle.Interval1m:  "1m",
	candle.Interval3m:  "3m",
	candle.Interval5m:  "5m",
	candle.Interval15m: "15m",
	candle.Interval30m: "30m",
	candle.Interval1h:  "1h",
	candle.Interval4h:  "4h",
	candle.Interval1d:  "1d",
}

// BinanceAdapter is a concrete Adapter backed by go-binance/v2's
// klines endpoint. A client-side rate limiter keeps kline fetches well
// inside Binance's request-weight budget even when many runs share the
// adapter.
type BinanceAdapter struct {
	client  *binancesdk.Client
	limiter *rate.Limiter
}

// NewBinanceAdapter builds an adapter using apiKey/secretKey. A
// read-only adapter needs no real credentials for public kline data,
// but the same client construction is kept so a future authenticated
// surface (getOrderBook) reuses it without a second client.
func NewBinanceAdapter(apiKey, secretKey string, testnet bool) *BinanceAdapter {
	binancesdk.UseTestnet = testnet
	return &BinanceAdapter{
		client:  binancesdk.NewClient(apiKey, secretKey),
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
	}
}

// GetCandles satisfies Adapter: it must return limit candles whose first
// timestamp equals the aligned since, spaced by interval's step.
// Transient kline failures retry with exponential backoff; the rate
// limiter gates every attempt so retries stay inside the request-weight
// budget.
func (a *BinanceAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error) {
	ivl, ok := intervalStrings[interval]
	if !ok {
		return nil, fmt.Errorf("binance adapter: unsupported interval %q", interval)
	}

	var klines []*binancesdk.Kline
	err := retryWithBackoff(ctx, "binance.klines", func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("binance adapter: rate limiter: %w", err)
		}
		var err error
		klines, err = a.client.NewKlinesService().
			Symbol(binanceSymbol(symbol)).
			Interval(ivl).
			StartTime(since.UnixMilli()).
			Limit(limit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("binance adapter: klines: %w", err)
	}

	out := make([]candle.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, candle.Candle{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
		})
	}
	return out, nil
}

// FormatPrice renders x with the symbol's tick-size precision. Without a
// live exchangeInfo fetch this defaults to 2 decimals, matching the
// common fixed-precision fallback for symbols with no exchange info.
func (a *BinanceAdapter) FormatPrice(symbol string, x float64) string {
	return strconv.FormatFloat(x, 'f', 2, 64)
}

// FormatQuantity renders q with 6-decimal precision, the common
// lot-size-compatible default across spot pairs.
func (a *BinanceAdapter) FormatQuantity(symbol string, q float64) string {
	return strconv.FormatFloat(q, 'f', 6, 64)
}

// binanceSymbol normalizes "BTC/USDT" style symbols to Binance's
// concatenated "BTCUSDT" form.
func binanceSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
