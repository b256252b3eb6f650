package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
)

// pgPool is the subset of pgxpool.Pool the adapter touches, pulled out
// so unit tests can substitute a mock connection.
type pgPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresAdapter is an alternative persistence Adapter for the signal
// store. Atomicity comes from a single INSERT ... ON CONFLICT DO UPDATE
// statement per write, which Postgres executes atomically, so no
// temp-row-then-rename dance is needed the way the filesystem adapter
// requires one. Every pool call runs through a circuit breaker:
// repeated failures trip it so a database outage stops being hammered
// on every tick.
type PostgresAdapter struct {
	pool pgPool
	raw  *pgxpool.Pool
	cb   *gobreaker.CircuitBreaker
}

// newStoreBreaker mirrors the gateway's breaker settings: trip on a 60%
// failure ratio over at least 5 requests, retry after 30 seconds.
func newStoreBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store.postgres",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

// NewPostgresAdapter connects to databaseURL and pings it. It does not
// check that signal_store (created by cmd/migrate) exists.
func NewPostgresAdapter(ctx context.Context, databaseURL string) (*PostgresAdapter, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &PostgresAdapter{pool: pool, raw: pool, cb: newStoreBreaker()}, nil
}

// newPostgresAdapterWithPool injects a pre-built pool, used by unit
// tests with a mock connection.
func newPostgresAdapterWithPool(pool pgPool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool, cb: newStoreBreaker()}
}

func (a *PostgresAdapter) Close() {
	a.pool.Close()
}

// Name identifies the backend for metrics labels.
func (a *PostgresAdapter) Name() string { return "postgres" }

// Pool exposes the underlying pool for observability (connection
// statistics); callers must not issue writes through it. Nil when the
// adapter was built over an injected mock.
func (a *PostgresAdapter) Pool() *pgxpool.Pool {
	return a.raw
}

// execute routes a pool operation through the circuit breaker, mapping
// the open-breaker state onto a caller-readable error.
func (a *PostgresAdapter) execute(op func() (interface{}, error)) (interface{}, error) {
	result, err := a.cb.Execute(op)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("store: postgres circuit breaker is open, service unavailable")
	}
	return result, err
}

func (a *PostgresAdapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	found := true
	_, err := a.execute(func() (interface{}, error) {
		err := a.pool.QueryRow(ctx, `SELECT value FROM signal_store WHERE key = $1`, key).Scan(&value)
		if err == pgx.ErrNoRows {
			// an empty slot is a normal answer, not a failure the
			// breaker should count
			found = false
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return value, true, nil
}

// WriteAtomic upserts the row in a single statement: Postgres guarantees
// this is atomic with respect to any other transaction on the same key.
func (a *PostgresAdapter) WriteAtomic(ctx context.Context, key string, value []byte) error {
	_, err := a.execute(func() (interface{}, error) {
		return a.pool.Exec(ctx, `
			INSERT INTO signal_store (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, key, value)
	})
	return err
}

func (a *PostgresAdapter) Delete(ctx context.Context, key string) error {
	_, err := a.execute(func() (interface{}, error) {
		return a.pool.Exec(ctx, `DELETE FROM signal_store WHERE key = $1`, key)
	})
	return err
}
