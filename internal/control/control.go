// Package control implements the control surface: strategy, exchange,
// frame and risk registration, plus the run/background/stop/cancel
// operations callers drive the kernel with.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ordinalkernel/tradekernel/internal/backtest"
	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/lifecycle"
	"github.com/ordinalkernel/tradekernel/internal/live"
	"github.com/ordinalkernel/tradekernel/internal/risk"
	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

// errNotRegistered is returned when a run/background call names an
// unregistered strategy, exchange or frame.
func errNotRegistered(kind, name string) error {
	return config.NewKernelError(config.KindConfig, "control.NotRegistered", fmt.Errorf("%s %q is not registered", kind, name))
}

// Surface is the concrete Control Surface: the process-wide registry of
// strategies, exchanges, frames and risks, plus the live state needed to
// stop/cancel a running strategy.
type Surface struct {
	Strategies *strategy.Registry
	Risk       *risk.Validator
	Store      *store.Store
	Bus        *eventbus.Bus
	Config     config.KernelConfig
	log        zerolog.Logger

	mu              sync.Mutex
	exchanges       map[string]*gateway.Gateway
	frames          map[string]signal.Frame
	engines         map[string]*lifecycle.Engine // keyed by exchange name
	liveDrivers     map[signal.Key]*live.Driver
	riskMembership  map[string][]string // riskName -> strategy names sharing it
}

// New builds an empty Surface over the given collaborators. Strategy and
// risk registries are shared in; exchanges and frames are registered
// through this Surface so it can build one Lifecycle Engine per
// exchange.
func New(strategies *strategy.Registry, validator *risk.Validator, st *store.Store, bus *eventbus.Bus, cfg config.KernelConfig, log zerolog.Logger) *Surface {
	return &Surface{
		Strategies:     strategies,
		Risk:           validator,
		Store:          st,
		Bus:            bus,
		Config:         cfg,
		log:            log,
		exchanges:      map[string]*gateway.Gateway{},
		frames:         map[string]signal.Frame{},
		engines:        map[string]*lifecycle.Engine{},
		liveDrivers:    map[signal.Key]*live.Driver{},
		riskMembership: map[string][]string{},
	}
}

// RegisterExchange registers a named Gateway (the raw adapter is
// already wrapped before it reaches here).
func (s *Surface) RegisterExchange(name string, gw *gateway.Gateway) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges[name] = gw
}

// RegisterFrame registers a named backtest window.
func (s *Surface) RegisterFrame(frame signal.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[frame.Name] = frame
}

// RegisterStrategy registers reg and records its risk-set membership so
// BuildPortfolioView can find every strategy sharing a risk name.
func (s *Surface) RegisterStrategy(reg strategy.Registration) error {
	if err := s.Strategies.Register(reg); err != nil {
		return config.NewKernelError(config.KindConfig, "control.RegisterStrategy", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range mergedRiskNames(reg) {
		s.riskMembership[name] = append(s.riskMembership[name], reg.Name)
	}
	return nil
}

func mergedRiskNames(reg strategy.Registration) []string {
	names := make([]string, 0, 1+len(reg.RiskList))
	if reg.RiskName != "" {
		names = append(names, reg.RiskName)
	}
	names = append(names, reg.RiskList...)
	return names
}

func (s *Surface) engineFor(exchangeName string) (*lifecycle.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if engine, ok := s.engines[exchangeName]; ok {
		return engine, nil
	}
	gw, ok := s.exchanges[exchangeName]
	if !ok {
		return nil, errNotRegistered("exchange", exchangeName)
	}
	engine := lifecycle.New(s.Store, gw, s.Risk, s.Bus, s.Config, s.log)
	s.engines[exchangeName] = engine
	return engine, nil
}

func (s *Surface) portfolioFunc(reg strategy.Registration) func(symbol string) signal.PortfolioView {
	s.mu.Lock()
	strategies := map[string]bool{reg.Name: true}
	for _, name := range mergedRiskNames(reg) {
		for _, member := range s.riskMembership[name] {
			strategies[member] = true
		}
	}
	s.mu.Unlock()

	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	return func(symbol string) signal.PortfolioView {
		return risk.BuildPortfolioView(s.Store, names, symbol)
	}
}

func (s *Surface) resolve(strategyName, exchangeName string) (strategy.Registration, *lifecycle.Engine, error) {
	reg, ok := s.Strategies.Lookup(strategyName)
	if !ok {
		return strategy.Registration{}, nil, errNotRegistered("strategy", strategyName)
	}
	engine, err := s.engineFor(exchangeName)
	if err != nil {
		return strategy.Registration{}, nil, err
	}
	return reg, engine, nil
}

// RunBacktest validates registration, then streams terminal results
// until the frame is exhausted.
func (s *Surface) RunBacktest(ctx context.Context, symbol, strategyName, exchangeName, frameName string) (<-chan lifecycle.TickResult, error) {
	reg, engine, err := s.resolve(strategyName, exchangeName)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	frame, ok := s.frames[frameName]
	s.mu.Unlock()
	if !ok {
		return nil, errNotRegistered("frame", frameName)
	}

	driver := backtest.New(engine, s.Store, s.Bus, s.log)
	return driver.Run(ctx, symbol, reg, frame, s.portfolioFunc(reg)), nil
}

// BackgroundBacktest implements Backtest.background: fire-and-forget,
// draining results internally; completion is observed externally via
// done-backtest.
func (s *Surface) BackgroundBacktest(ctx context.Context, symbol, strategyName, exchangeName, frameName string) error {
	results, err := s.RunBacktest(ctx, symbol, strategyName, exchangeName, frameName)
	if err != nil {
		return err
	}
	go func() {
		for range results {
		}
	}()
	return nil
}

// RunLive validates registration, then streams non-idle results until
// Stop settles or ctx is cancelled.
func (s *Surface) RunLive(ctx context.Context, symbol, strategyName, exchangeName string) (<-chan lifecycle.TickResult, error) {
	reg, engine, err := s.resolve(strategyName, exchangeName)
	if err != nil {
		return nil, err
	}

	driver := live.New(engine, s.Store, s.Bus, s.Config.TickTTL(), s.log)
	key := signal.Key{Strategy: strategyName, Symbol: symbol}
	s.mu.Lock()
	s.liveDrivers[key] = driver
	s.mu.Unlock()

	return driver.Run(ctx, symbol, reg, s.portfolioFunc(reg)), nil
}

// BackgroundLive implements Live.background.
func (s *Surface) BackgroundLive(ctx context.Context, symbol, strategyName, exchangeName string) error {
	results, err := s.RunLive(ctx, symbol, strategyName, exchangeName)
	if err != nil {
		return err
	}
	go func() {
		for range results {
		}
	}()
	return nil
}

// Stop requests cooperative graceful shutdown of a running live
// driver.
func (s *Surface) Stop(symbol, strategyName string) error {
	key := signal.Key{Strategy: strategyName, Symbol: symbol}
	s.mu.Lock()
	driver, ok := s.liveDrivers[key]
	s.mu.Unlock()
	if !ok {
		return errNotRegistered("live run", key.String())
	}
	driver.Stop()
	return nil
}

// Cancel clears a scheduled signal; Engine.Cancel rejects it for any
// other state unless configured otherwise.
func (s *Surface) Cancel(ctx context.Context, symbol, strategyName, exchangeName, cancellationID string) (lifecycle.TickResult, error) {
	reg, engine, err := s.resolve(strategyName, exchangeName)
	if err != nil {
		return lifecycle.TickResult{}, err
	}
	tc := kernelctx.New(symbol, time.Now().UTC(), kernelctx.ModeLive)
	return engine.Cancel(ctx, tc, reg, cancellationID)
}
