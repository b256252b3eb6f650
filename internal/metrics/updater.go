package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
)

// Updater periodically refreshes the gauges that are derived from state
// rather than recorded at an event: open-position counts per signal
// state, and (when the postgres store backend is active) database pool
// statistics.
type Updater struct {
	st       *store.Store
	pool     *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates an updater over the signal store.
func NewUpdater(st *store.Store, interval time.Duration) *Updater {
	return &Updater{
		st:       st,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// WithPool attaches the postgres store's pool so its connection
// statistics are exported alongside the store-derived gauges.
func (u *Updater) WithPool(pool *pgxpool.Pool) *Updater {
	u.pool = pool
	return u
}

// Start begins the update loop. It blocks until Stop is called or ctx is
// cancelled; callers run it on its own goroutine.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update()

	for {
		select {
		case <-ticker.C:
			u.update()
		case <-u.stopCh:
			log.Info().Msg("metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the updater.
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update() {
	u.updatePositionGauges()
	u.updateDatabaseMetrics()
}

// updatePositionGauges counts non-terminal signals per state across
// every populated slot. Terminal states are skipped: a closed signal
// still sitting in its slot is history, not exposure.
func (u *Updater) updatePositionGauges() {
	counts := map[signal.State]int{
		signal.StateScheduled: 0,
		signal.StateOpened:    0,
		signal.StateActive:    0,
	}
	for _, key := range u.st.Keys() {
		tracked, ok := u.st.Read(key)
		if !ok || tracked.IsTerminal() {
			continue
		}
		counts[tracked.State]++
	}
	for state, count := range counts {
		UpdateOpenPositions(string(state), count)
	}
}

func (u *Updater) updateDatabaseMetrics() {
	if u.pool == nil {
		return
	}
	stats := u.pool.Stat()
	UpdateDatabaseConnections(stats.AcquiredConns(), stats.IdleConns())
}
