// Live Runner CLI: drives one (symbol, strategy, exchange) pair against
// the wall clock through the Control Surface's Live.run, recovering any
// persisted in-flight signal on startup and shutting down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ordinalkernel/tradekernel/internal/audit"
	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/control"
	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/lifecycle"
	"github.com/ordinalkernel/tradekernel/internal/metrics"
	"github.com/ordinalkernel/tradekernel/internal/risk"
	ksignal "github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

var (
	symbolFlag       = flag.String("symbol", "BTC/USDT", "Symbol to trade")
	exchangeFlag     = flag.String("exchange", "binance", "Registered exchange name")
	strategyFlag     = flag.String("strategy", "mean-reversion", "Registered strategy name")
	strategyFileFlag = flag.String("strategy-file", "", "Strategy document (YAML/JSON) to load instead of the built-in default")
	configFlag       = flag.String("config", "", "Path to config file (optional)")
	testnetFlag      = flag.Bool("testnet", true, "Use Binance testnet for the exchange adapter")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startupValidator := config.NewValidator(cfg, config.DefaultValidatorOptions())
	if err := startupValidator.ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("startup validation failed")
	}

	runtime, err := buildRuntime(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build runtime")
	}
	defer runtime.close()

	results, err := runtime.surface.RunLive(ctx, *symbolFlag, *strategyFlag, *exchangeFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start live run")
	}
	log.Info().Str("symbol", *symbolFlag).Str("strategy", *strategyFlag).Msg("live run started")

	// SIGINT/SIGTERM request a graceful stop: the driver keeps ticking
	// until its slot is empty, then exits and closes the result channel.
	// A second signal cancels the context and forces the exit.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Warn().Msg("interrupt received, requesting graceful stop")
		if err := runtime.surface.Stop(*symbolFlag, *strategyFlag); err != nil {
			log.Error().Err(err).Msg("stop request failed")
		}
		<-sigc
		log.Warn().Msg("second interrupt, forcing exit")
		cancel()
	}()

	for result := range results {
		switch result.State {
		case lifecycle.ResultOpened:
			log.Info().Str("symbol", result.Symbol).Str("id", result.Tracked.ID).
				Float64("price_open", result.Tracked.PriceOpenActual).Msg("signal opened")
		case lifecycle.ResultClosed:
			log.Info().Str("symbol", result.Symbol).Str("id", result.Tracked.ID).
				Str("reason", string(result.Tracked.CloseReason)).
				Float64("pnl_percent", result.Tracked.PnL.Percent).Msg("signal closed")
		case lifecycle.ResultCancelled:
			log.Info().Str("symbol", result.Symbol).Str("id", result.Tracked.ID).Msg("signal cancelled")
		case lifecycle.ResultScheduled:
			log.Info().Str("symbol", result.Symbol).Str("id", result.Tracked.ID).
				Float64("price_open", result.Tracked.PriceOpen).Msg("signal scheduled")
		}
	}

	log.Info().Msg("live run finished")
}

// runtime bundles everything main wires together so shutdown can unwind
// it in one place.
type runtime struct {
	surface       *control.Surface
	metricsServer *metrics.Server
	updater       *metrics.Updater
	recorder      *audit.Recorder
	bridge        *eventbus.NATSBridge
	pgAdapter     *store.PostgresAdapter
	auditPool     *pgxpool.Pool
}

func (r *runtime) close() {
	if r.recorder != nil {
		r.recorder.Detach()
	}
	if r.bridge != nil {
		r.bridge.Close()
	}
	if r.updater != nil {
		r.updater.Stop()
	}
	if r.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.metricsServer.Shutdown(ctx)
	}
	if r.auditPool != nil {
		r.auditPool.Close()
	}
	if r.pgAdapter != nil {
		r.pgAdapter.Close()
	}
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{}
	logger := config.NewLogger("control")

	adapter, pgAdapter, err := buildStoreAdapter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	rt.pgAdapter = pgAdapter
	signalStore := store.New(adapter)

	bus := eventbus.New(config.NewLogger("eventbus"))

	validator := risk.NewValidator()
	validator.Register(defaultRisk(cfg))

	strategies := strategy.NewRegistry()
	surface := control.New(strategies, validator, signalStore, bus, cfg.Kernel, logger)
	rt.surface = surface

	gw, err := buildGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	surface.RegisterExchange(*exchangeFlag, gw)

	reg, err := buildStrategy(gw)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	if reg.RiskName == "" {
		reg.RiskName = "default"
	}
	if err := surface.RegisterStrategy(reg); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	if cfg.Monitoring.EnableMetrics {
		rt.metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, config.NewLogger("metrics"))
		if err := rt.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("metrics server: %w", err)
		}
		rt.updater = metrics.NewUpdater(signalStore, 15*time.Second)
		if pgAdapter != nil {
			rt.updater = rt.updater.WithPool(pgAdapter.Pool())
		}
		go rt.updater.Start(ctx)
	}

	if cfg.Store.Backend == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
		if err != nil {
			log.Warn().Err(err).Msg("audit pool unavailable, audit trail will not persist")
		} else {
			rt.auditPool = pool
		}
	}
	rt.recorder = audit.NewRecorder(audit.NewLogger(rt.auditPool, true))
	rt.recorder.Attach(bus)

	if cfg.NATS.Enabled {
		bridge, err := eventbus.NewNATSBridge(cfg.NATS.URL, cfg.NATS.Prefix, config.NewLogger("nats"))
		if err != nil {
			return nil, fmt.Errorf("nats bridge: %w", err)
		}
		bridge.AttachBounded(bus, cfg.Kernel.LiveBusQueueDepth,
			eventbus.TopicSignal, eventbus.TopicSignalLive, eventbus.TopicRiskRejected,
			eventbus.TopicPartialProfit, eventbus.TopicPartialLoss, eventbus.TopicBreakeven,
			eventbus.TopicDoneLive, eventbus.TopicError,
		)
		rt.bridge = bridge
	}

	return rt, nil
}

func buildStoreAdapter(ctx context.Context, cfg *config.Config) (store.Adapter, *store.PostgresAdapter, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresAdapter(ctx, cfg.Database.GetDSN())
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	default:
		dir := cfg.Store.Dir
		if dir == "" {
			dir = "./data/signals"
		}
		fs, err := store.NewFSAdapter(dir)
		return fs, nil, err
	}
}

func buildGateway(cfg *config.Config) (*gateway.Gateway, error) {
	exCfg := cfg.Exchanges["binance"]

	creds, err := resolveCredentials(cfg, exCfg)
	if err != nil {
		return nil, err
	}

	var adapter gateway.Adapter = gateway.NewBinanceAdapter(creds.APIKey, creds.SecretKey, *testnetFlag)
	adapter = gateway.NewBreakerAdapter(*exchangeFlag, adapter)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err == nil {
		adapter = gateway.NewCachedAdapter(adapter, rdb, time.Minute)
	} else {
		log.Warn().Err(err).Msg("redis unreachable, candle cache disabled")
	}

	return gateway.New(*exchangeFlag, adapter, cfg.Kernel.VWAPCandleCount, cfg.Kernel.AdapterTimeout).
		WithLogger(config.NewLogger("gateway." + *exchangeFlag)), nil
}

func resolveCredentials(cfg *config.Config, exCfg config.ExchangeConfig) (gateway.Credentials, error) {
	if exCfg.APIKey != "" {
		return gateway.Credentials{APIKey: exCfg.APIKey, SecretKey: exCfg.SecretKey}, nil
	}
	src, err := gateway.NewCredentialSource(
		os.Getenv("VAULT_ADDR"), os.Getenv("VAULT_TOKEN"),
		cfg.App.Environment, "secret/data/exchanges",
	)
	if err != nil {
		return gateway.Credentials{}, err
	}
	return src.Get("binance")
}

func buildStrategy(gw *gateway.Gateway) (strategy.Registration, error) {
	if *strategyFileFlag != "" {
		doc, err := strategy.ImportFromFile(*strategyFileFlag, strategy.DefaultImportOptions())
		if err != nil {
			return strategy.Registration{}, err
		}
		doc.Metadata.Name = *strategyFlag
		return doc.Bind(gw)
	}
	return strategy.NewMeanReversion(*strategyFlag, gw, strategy.DefaultMeanReversionConfig()), nil
}

func defaultRisk(cfg *config.Config) risk.Risk {
	return risk.Risk{
		Name: "default",
		Gates: []risk.Gate{
			risk.FuncGate{
				GateName: "max-1-position",
				Note:     "at most one open position per symbol",
				Fn: func(ctx ksignal.Context) (bool, error) {
					return ctx.ActivePositionCount < 1, nil
				},
			},
		},
	}
}
