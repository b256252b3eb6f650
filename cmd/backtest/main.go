// Backtest Runner CLI: drives one (symbol, strategy, exchange, frame)
// through the Control Surface's Backtest.run and prints every closed or
// cancelled result as it streams in.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/control"
	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/lifecycle"
	"github.com/ordinalkernel/tradekernel/internal/risk"
	ksignal "github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

var (
	symbolFlag   = flag.String("symbol", "BTC/USDT", "Symbol to backtest")
	exchangeFlag = flag.String("exchange", "binance", "Registered exchange name")
	strategyFlag = flag.String("strategy", "mean-reversion", "Registered strategy name")
	startFlag    = flag.String("start", "", "Frame start date (YYYY-MM-DD), required")
	endFlag      = flag.String("end", "", "Frame end date (YYYY-MM-DD), required")
	intervalFlag = flag.String("interval", "5m", "Frame interval")
	configFlag   = flag.String("config", "", "Path to config file (optional)")
	testnetFlag  = flag.Bool("testnet", true, "Use Binance testnet for the exchange adapter")
	adapterFlag  = flag.String("adapter", "binance", "Candle source: binance or coingecko")
)

func main() {
	flag.Parse()
	config.InitLogger("info", "console")

	if *startFlag == "" || *endFlag == "" {
		fmt.Fprintln(os.Stderr, "Error: -start and -end are required (YYYY-MM-DD)")
		flag.Usage()
		os.Exit(1)
	}
	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -start date")
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -end date")
	}
	interval := candle.Interval(*intervalFlag)
	if _, err := candle.Step(interval); err != nil {
		log.Fatal().Err(err).Msg("invalid -interval")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	surface, err := buildSurface(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build control surface")
	}

	surface.RegisterFrame(ksignal.Frame{
		Name: "cli-frame", Interval: interval, StartDate: start.UTC(), EndDate: end.UTC(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Warn().Msg("interrupt received, cancelling backtest")
		cancel()
	}()
	defer cancel()

	results, err := surface.RunBacktest(ctx, *symbolFlag, *strategyFlag, *exchangeFlag, "cli-frame")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start backtest")
	}

	closedCount, cancelledCount := 0, 0
	for result := range results {
		if result.State == lifecycle.ResultClosed {
			closedCount++
			fmt.Printf("[%s] CLOSED  %-10s reason=%-13s open=%.4f close=%.4f pnl=%.3f%%\n",
				result.Timestamp.Format(time.RFC3339), result.Symbol, result.Tracked.CloseReason,
				result.Tracked.PriceOpenActual, result.Tracked.PriceClose, result.Tracked.PnL.Percent)
		} else {
			cancelledCount++
			fmt.Printf("[%s] CANCELLED %s\n", result.Timestamp.Format(time.RFC3339), result.Symbol)
		}
	}

	log.Info().Int("closed", closedCount).Int("cancelled", cancelledCount).Msg("backtest finished")
}

func buildSurface(cfg *config.Config) (*control.Surface, error) {
	log := config.NewLogger("control")

	st, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	signalStore := store.New(st)

	bus := eventbus.New(config.NewLogger("eventbus"))
	attachConsoleLogging(bus)

	validator := risk.NewValidator()
	validator.Register(defaultRisk())

	strategies := strategy.NewRegistry()
	surface := control.New(strategies, validator, signalStore, bus, cfg.Kernel, log)

	adapter, err := buildAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}
	gw := gateway.New(*exchangeFlag, adapter, cfg.Kernel.VWAPCandleCount, cfg.Kernel.AdapterTimeout).
		WithLogger(config.NewLogger("gateway." + *exchangeFlag))
	surface.RegisterExchange(*exchangeFlag, gw)

	meanReversion := strategy.NewMeanReversion(*strategyFlag, gw, strategy.DefaultMeanReversionConfig())
	meanReversion.RiskName = "default"
	if err := surface.RegisterStrategy(meanReversion); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	return surface, nil
}

func buildAdapter(cfg *config.Config) (gateway.Adapter, error) {
	switch *adapterFlag {
	case "binance":
		return gateway.NewBinanceAdapter(
			cfg.Exchanges["binance"].APIKey, cfg.Exchanges["binance"].SecretKey, *testnetFlag,
		), nil
	case "coingecko":
		// price-only markets: synthetic candles, zero volume, VWAP
		// falls back to the mean of closes
		return gateway.NewCoinGeckoAdapter(map[string]string{
			"BTC/USDT": "bitcoin",
			"ETH/USDT": "ethereum",
		}), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q", *adapterFlag)
	}
}

func buildStore(cfg *config.Config) (store.Adapter, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return nil, fmt.Errorf("postgres store backend is not wired into this CLI; use cmd/migrate then configure store.backend=filesystem for local runs")
	default:
		dir := cfg.Store.Dir
		if dir == "" {
			dir = "./data/signals"
		}
		return store.NewFSAdapter(dir)
	}
}

// defaultRisk is the minimal portfolio-cap gate: at most one open
// position per symbol across the strategies sharing this risk name.
func defaultRisk() risk.Risk {
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

func attachConsoleLogging(bus *eventbus.Bus) {
	l := config.NewLogger("events")
	topics := []eventbus.Topic{
		eventbus.TopicProgressBacktest, eventbus.TopicRiskRejected, eventbus.TopicError,
		eventbus.TopicPartialProfit, eventbus.TopicPartialLoss, eventbus.TopicBreakeven,
	}
	for _, topic := range topics {
		topic := topic
		bus.Subscribe(topic, func(ev eventbus.Event) error {
			l.Debug().Str("topic", string(topic)).Str("symbol", ev.Symbol).Str("strategy", ev.StrategyName).Msg("event")
			return nil
		})
	}
}
