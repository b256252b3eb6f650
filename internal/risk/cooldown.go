package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// CooldownGate rejects a new signal for (strategyName, symbol) for a
// fixed window after that pair's last closed signal. Off by default; a
// strategy opts in by registering it in its riskList.
type CooldownGate struct {
	rdb    *redis.Client
	window time.Duration
}

// NewCooldownGate returns a Gate that rejects signals within window of
// the pair's last recorded closure. A zero window disables the gate
// (always passes).
func NewCooldownGate(rdb *redis.Client, window time.Duration) *CooldownGate {
	return &CooldownGate{rdb: rdb, window: window}
}

func (c *CooldownGate) Name() string { return "cooldown" }

func (c *CooldownGate) Evaluate(ctx signal.Context) (bool, string, error) {
	if c.window <= 0 {
		return true, "", nil
	}
	key := cooldownKey(ctx.StrategyName, ctx.Symbol)
	exists, err := c.rdb.Exists(context.Background(), key).Result()
	if err != nil {
		return false, "", fmt.Errorf("risk: cooldown lookup: %w", err)
	}
	if exists == 1 {
		return false, fmt.Sprintf("cooldown active for %s/%s", ctx.StrategyName, ctx.Symbol), nil
	}
	return true, "", nil
}

// MarkClosed records that (strategyName, symbol) just closed a signal,
// starting the cooldown window. Callers invoke this from the onClose
// lifecycle hook.
func (c *CooldownGate) MarkClosed(strategyName, symbol string) error {
	if c.window <= 0 {
		return nil
	}
	key := cooldownKey(strategyName, symbol)
	return c.rdb.Set(context.Background(), key, "1", c.window).Err()
}

func cooldownKey(strategyName, symbol string) string {
	return fmt.Sprintf("tradekernel:cooldown:%s:%s", strategyName, symbol)
}
