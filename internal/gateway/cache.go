package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/metrics"
)

// CachedAdapter wraps an Adapter with a Redis cache-aside layer: check
// cache, fall through to the wrapped adapter on miss, write back
// best-effort. Whatever the wrapped adapter returned for a given
// (symbol, interval, since, limit) request is stored as-is, without any
// end-time check; the Gateway applies its alignment and EndsBy checks to
// a cached result exactly as it does to a fresh one.
type CachedAdapter struct {
	Adapter
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedAdapter wraps adapter with a Redis cache-aside layer.
func NewCachedAdapter(adapter Adapter, rdb *redis.Client, ttl time.Duration) *CachedAdapter {
	return &CachedAdapter{Adapter: adapter, redis: rdb, ttl: ttl}
}

func (c *CachedAdapter) cacheKey(symbol string, interval candle.Interval, since time.Time, limit int) string {
	return fmt.Sprintf("gateway:candles:%s:%s:%d:%d", symbol, interval, since.UnixMilli(), limit)
}

// GetCandles checks the cache first, falls through to the wrapped adapter
// on a miss, and writes the result back best-effort (a cache write
// failure never fails the call).
func (c *CachedAdapter) GetCandles(ctx context.Context, symbol string, interval candle.Interval, since time.Time, limit int) ([]candle.Candle, error) {
	key := c.cacheKey(symbol, interval, since, limit)

	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		var out []candle.Candle
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			metrics.RecordCacheHit()
			return out, nil
		}
		log.Warn().Str("key", key).Msg("gateway cache: failed to unmarshal cached candles, refetching")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("key", key).Msg("gateway cache: redis lookup error")
	}
	metrics.RecordCacheMiss()

	candles, err := c.Adapter.GetCandles(ctx, symbol, interval, since, limit)
	if err != nil {
		return nil, err
	}

	go func(candles []candle.Candle) {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		data, err := json.Marshal(candles)
		if err != nil {
			return
		}
		if err := c.redis.Set(writeCtx, key, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("gateway cache: failed to cache candles")
		}
	}(candles)

	return candles, nil
}
