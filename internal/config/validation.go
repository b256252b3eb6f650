package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Validate performs comprehensive configuration validation.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateKernel()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateExchanges()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{Field: "app.name", Message: "application name is required"})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{Field: "app.environment", Message: "environment is required (development, staging, or production)"})
	} else {
		valid := false
		for _, env := range []string{"development", "staging", "production"} {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("invalid environment %q", c.App.Environment),
			})
		}
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Store.Backend != "postgres" {
		return errors
	}

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{Field: "database.host", Message: "database host is required when store.backend=postgres"})
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{Field: "database.port", Message: fmt.Sprintf("invalid port %d", c.Database.Port)})
	}
	if c.Database.Database == "" {
		errors = append(errors, ValidationError{Field: "database.database", Message: "database name is required"})
	}
	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{Field: "database.pool_size", Message: "pool size must be at least 1"})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{Field: "redis.port", Message: fmt.Sprintf("invalid port %d", c.Redis.Port)})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if c.NATS.Enabled && !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{Field: "nats.url", Message: "NATS URL must start with nats://"})
	}

	return errors
}

func (c *Config) validateKernel() ValidationErrors {
	var errors ValidationErrors
	k := c.Kernel

	if k.TickTTLMs < 1 {
		errors = append(errors, ValidationError{Field: "kernel.tick_ttl_ms", Message: "tick_ttl_ms must be positive"})
	}
	if k.VWAPCandleCount < 1 {
		errors = append(errors, ValidationError{Field: "kernel.vwap_candle_count", Message: "vwap_candle_count must be at least 1"})
	}
	if k.MaxSignalMinutes < 1 || k.MaxSignalMinutes > 360 {
		errors = append(errors, ValidationError{Field: "kernel.max_signal_minutes", Message: "max_signal_minutes must be in (0, 360]"})
	}
	if k.SlippagePercent < 0 {
		errors = append(errors, ValidationError{Field: "kernel.slippage_percent", Message: "slippage_percent must be non-negative"})
	}
	if k.FeePercent < 0 {
		errors = append(errors, ValidationError{Field: "kernel.fee_percent", Message: "fee_percent must be non-negative"})
	}
	if k.AdapterTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "kernel.adapter_timeout", Message: "adapter_timeout must be positive"})
	}

	return errors
}

func (c *Config) validateStore() ValidationErrors {
	var errors ValidationErrors

	switch c.Store.Backend {
	case "filesystem":
		if c.Store.Dir == "" {
			errors = append(errors, ValidationError{Field: "store.dir", Message: "store.dir is required for the filesystem backend"})
		}
	case "postgres":
		// validated via validateDatabase
	default:
		errors = append(errors, ValidationError{Field: "store.backend", Message: fmt.Sprintf("unknown store backend %q", c.Store.Backend)})
	}

	return errors
}

func (c *Config) validateExchanges() ValidationErrors {
	var errors ValidationErrors

	for name, ex := range c.Exchanges {
		if ex.Fees.Maker < 0 || ex.Fees.Taker < 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.fees", name),
				Message: "fees must be non-negative",
			})
		}
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment == "production" {
		secretErrors := ValidateProductionSecrets(c)
		errors = append(errors, secretErrors...)

		if c.Store.Backend == "postgres" && c.Database.SSLMode == "disable" {
			errors = append(errors, ValidationError{
				Field:   "database.ssl_mode",
				Message: "SSL must be enabled for database in production",
			})
		}
	}

	return errors
}

// ValidateAndLoad loads and validates configuration. configPath may be
// empty to use the default config locations.
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
