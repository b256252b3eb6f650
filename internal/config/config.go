package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all process configuration for the kernel.
type Config struct {
	App        AppConfig                 `mapstructure:"app"`
	Database   DatabaseConfig            `mapstructure:"database"`
	Redis      RedisConfig               `mapstructure:"redis"`
	NATS       NATSConfig                `mapstructure:"nats"`
	Kernel     KernelConfig              `mapstructure:"kernel"`
	Store      StoreConfig               `mapstructure:"store"`
	Exchanges  map[string]ExchangeConfig `mapstructure:"exchanges"`
	Monitoring MonitoringConfig          `mapstructure:"monitoring"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // console, json
}

// DatabaseConfig contains the Postgres settings used by the optional
// postgres-backed Signal Store adapter.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig backs the Exchange Gateway candle cache and the optional
// Risk Validator cooldown gate.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig configures the Event Bus's optional cross-process bridge.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// KernelConfig holds the kernel's tunable behavior.
type KernelConfig struct {
	SlippagePercent     float64       `mapstructure:"slippage_percent"`
	FeePercent          float64       `mapstructure:"fee_percent"`
	TickTTLMs           int           `mapstructure:"tick_ttl_ms"`
	VWAPCandleCount     int           `mapstructure:"vwap_candle_count"`
	MaxSignalMinutes    int           `mapstructure:"max_signal_minutes"`
	PartialTPLevels     []float64     `mapstructure:"partial_tp_levels"`
	PartialSLLevels     []float64     `mapstructure:"partial_sl_levels"`
	BreakevenTrigger    float64       `mapstructure:"breakeven_trigger"`
	AdapterTimeout      time.Duration `mapstructure:"adapter_timeout"`
	ScheduledPingPeriod time.Duration `mapstructure:"scheduled_ping_period"`
	CancelActiveAllowed bool          `mapstructure:"cancel_active_allowed"`
	LiveBusQueueDepth   int           `mapstructure:"live_bus_queue_depth"`
	StrictExitMode      bool          `mapstructure:"strict_exit_mode"`
}

// TickTTL returns TickTTLMs as a time.Duration.
func (k KernelConfig) TickTTL() time.Duration {
	return time.Duration(k.TickTTLMs) * time.Millisecond
}

// StoreConfig selects and configures the Signal Store persistence adapter.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "filesystem" or "postgres"
	Dir     string `mapstructure:"dir"`     // filesystem backend root
}

// ExchangeConfig contains exchange-specific settings used by gateway
// adapters (credentials, fee schedule, network selection).
type ExchangeConfig struct {
	APIKey    string    `mapstructure:"api_key"`
	SecretKey string    `mapstructure:"secret_key"`
	Testnet   bool      `mapstructure:"testnet"`
	Fees      FeeConfig `mapstructure:"fees"`
}

// FeeConfig mirrors the exchange's maker/taker/slippage schedule. It is
// range-checked at load time; KernelConfig's fee and slippage values are
// configured separately and are not derived from it.
type FeeConfig struct {
	Maker        float64 `mapstructure:"maker"`
	Taker        float64 `mapstructure:"taker"`
	BaseSlippage float64 `mapstructure:"base_slippage"`
}

// MonitoringConfig contains observability settings.
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("KERNEL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tradekernel")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "tradekernel")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.prefix", "tradekernel.")

	// Kernel defaults.
	v.SetDefault("kernel.slippage_percent", 0.1)
	v.SetDefault("kernel.fee_percent", 0.1)
	v.SetDefault("kernel.tick_ttl_ms", 1000)
	v.SetDefault("kernel.vwap_candle_count", 5)
	v.SetDefault("kernel.max_signal_minutes", 360)
	v.SetDefault("kernel.partial_tp_levels", []float64{30, 60, 90})
	v.SetDefault("kernel.partial_sl_levels", []float64{40, 80})
	v.SetDefault("kernel.breakeven_trigger", 30)
	v.SetDefault("kernel.adapter_timeout", "30s")
	v.SetDefault("kernel.scheduled_ping_period", "1m")
	v.SetDefault("kernel.cancel_active_allowed", false)
	v.SetDefault("kernel.live_bus_queue_depth", 25)
	v.SetDefault("kernel.strict_exit_mode", false)

	v.SetDefault("store.backend", "filesystem")
	v.SetDefault("store.dir", "./data/signals")

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)

	v.SetDefault("exchanges.binance.fees.maker", 0.001)
	v.SetDefault("exchanges.binance.fees.taker", 0.001)
	v.SetDefault("exchanges.binance.fees.base_slippage", 0.0005)
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
