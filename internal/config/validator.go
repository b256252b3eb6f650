package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions controls which connectivity checks ValidateStartup runs.
type ValidatorOptions struct {
	VerifyConnectivity bool
	Timeout            time.Duration
}

// DefaultValidatorOptions returns the options used by the cmd/live entrypoint.
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{VerifyConnectivity: true, Timeout: 5 * time.Second}
}

// Validator performs startup connectivity checks for the configured
// backends before the control surface starts accepting run requests.
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a configuration validator.
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{config: config, options: options}
}

// ValidateStartup checks that the configured store and cache backends are
// reachable before the Control Surface accepts run/background requests.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	if !v.options.VerifyConnectivity {
		return nil
	}

	if v.config.Store.Backend == "postgres" {
		if err := v.checkDatabaseConnectivity(ctx); err != nil {
			return fmt.Errorf("database connectivity check failed: %w", err)
		}
	}

	if err := v.checkRedisConnectivity(ctx); err != nil {
		log.Warn().Err(err).Msg("redis connectivity check failed, gateway cache and cooldown gate will be unavailable")
	}

	return nil
}

func (v *Validator) checkDatabaseConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	pool, err := pgxpool.New(connCtx, v.config.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(connCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	log.Info().Str("host", v.config.Database.Host).Msg("database connectivity check passed")
	return nil
}

func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	log.Info().Str("addr", v.config.Redis.GetRedisAddr()).Msg("redis connectivity check passed")
	return nil
}
