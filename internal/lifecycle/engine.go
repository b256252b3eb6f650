package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ordinalkernel/tradekernel/internal/candle"
	"github.com/ordinalkernel/tradekernel/internal/config"
	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/gateway"
	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/metrics"
	"github.com/ordinalkernel/tradekernel/internal/risk"
	"github.com/ordinalkernel/tradekernel/internal/signal"
	"github.com/ordinalkernel/tradekernel/internal/store"
	"github.com/ordinalkernel/tradekernel/internal/strategy"
)

// priceTolerance is the band used when comparing a draft's requested
// priceOpen to the current VWAP: close enough and the signal activates
// immediately instead of scheduling.
const priceTolerance = 0.0005

// scheduledPingFloor is the minimum spacing between heartbeat events
// for one slot, used when the configured period is unset.
const scheduledPingFloor = time.Minute

// pingPeriod is the configured heartbeat spacing, never below the
// one-minute floor.
func (e *Engine) pingPeriod() time.Duration {
	if e.Config.ScheduledPingPeriod >= scheduledPingFloor {
		return e.Config.ScheduledPingPeriod
	}
	return scheduledPingFloor
}

// Engine advances exactly one (strategy, symbol) slot by exactly one
// step per Tick call; a tick is atomic with respect to its slot.
type Engine struct {
	Store   *store.Store
	Gateway *gateway.Gateway
	Risk    *risk.Validator
	Bus     *eventbus.Bus
	Config  config.KernelConfig
	log     zerolog.Logger

	mu               sync.Mutex
	lastIdleAt       map[signal.Key]time.Time
	lastPingAt       map[signal.Key]time.Time
	lastActivePingAt map[signal.Key]time.Time
}

// New builds an Engine over the given collaborators.
func New(st *store.Store, gw *gateway.Gateway, validator *risk.Validator, bus *eventbus.Bus, cfg config.KernelConfig, log zerolog.Logger) *Engine {
	return &Engine{
		Store:            st,
		Gateway:          gw,
		Risk:             validator,
		Bus:              bus,
		Config:           cfg,
		log:              log,
		lastIdleAt:       map[signal.Key]time.Time{},
		lastPingAt:       map[signal.Key]time.Time{},
		lastActivePingAt: map[signal.Key]time.Time{},
	}
}

// Tick runs one pass of the signal lifecycle for reg's
// (strategy, symbol) slot under tc, given a portfolio view already
// scoped to reg's risk set. The view is a derived snapshot built by the
// caller, not something the engine owns.
func (e *Engine) Tick(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, portfolio signal.PortfolioView) (TickResult, error) {
	start := time.Now()
	result, err := e.tick(ctx, tc, reg, portfolio)
	if err == nil {
		metrics.RecordTick(tc.Mode.String(), string(result.State), float64(time.Since(start).Milliseconds()))
	}
	return result, err
}

func (e *Engine) tick(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, portfolio signal.PortfolioView) (TickResult, error) {
	key := signal.Key{Strategy: reg.Name, Symbol: tc.Symbol}
	tracked, exists := e.Store.Read(key)
	hasActive := exists && !tracked.IsTerminal()

	if !hasActive {
		return e.tickNoSignal(ctx, tc, reg, key, portfolio)
	}

	switch tracked.State {
	case signal.StateScheduled:
		return e.tickScheduled(ctx, tc, reg, key, tracked, portfolio)
	case signal.StateOpened, signal.StateActive:
		return e.tickOpenedOrActive(ctx, tc, reg, key, tracked)
	default:
		// Terminal states are handled by hasActive above; unreachable
		// for a well-formed store but treated as idle rather than
		// panicking mid-tick.
		return idleResult(reg.Name, tc.Symbol, tc.When), nil
	}
}

func (e *Engine) throttled(key signal.Key, reg strategy.Registration, tc kernelctx.TemporalContext) bool {
	e.mu.Lock()
	last, ok := e.lastIdleAt[key]
	e.mu.Unlock()
	if !ok {
		return false
	}
	step, err := candle.Step(reg.Interval)
	if err != nil {
		return false
	}
	return tc.When.Before(last.Add(step))
}

func (e *Engine) markIdle(key signal.Key, tc kernelctx.TemporalContext) {
	e.mu.Lock()
	e.lastIdleAt[key] = tc.When
	e.mu.Unlock()
}

// tickNoSignal is the empty-slot path: the interval throttle and the
// getSignal -> validate -> default -> risk -> schedule-or-open chain.
func (e *Engine) tickNoSignal(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, key signal.Key, portfolio signal.PortfolioView) (TickResult, error) {
	if e.throttled(key, reg, tc) {
		return idleResult(reg.Name, tc.Symbol, tc.When), nil
	}

	draft, err := reg.GetSignal(tc)
	if err != nil {
		return TickResult{}, config.NewKernelError(config.KindRuntime, "lifecycle.getSignal", err)
	}
	e.markIdle(key, tc)
	if draft == nil {
		return idleResult(reg.Name, tc.Symbol, tc.When), nil
	}

	vwap, err := e.Gateway.GetAveragePrice(ctx, tc)
	if err != nil {
		return TickResult{}, err
	}
	if !draft.HasExplicitPriceOpen() {
		draft.PriceOpen = vwap
	}
	draft.EnsureID()
	if err := signal.ValidateDraft(*draft); err != nil {
		return TickResult{}, err
	}
	if max := e.Config.MaxSignalMinutes; max > 0 && draft.MinuteEstimatedTime > max {
		return TickResult{}, config.NewKernelError(config.KindContract, "lifecycle.tick",
			fmt.Errorf("minuteEstimatedTime %d exceeds configured maximum %d", draft.MinuteEstimatedTime, max))
	}
	if err := signal.ValidateAgainstOpen(draft.Position, draft.PriceOpen, draft.PriceTakeProfit, draft.PriceStopLoss); err != nil {
		return TickResult{}, err
	}

	riskCtx := e.riskContext(tc, reg, vwap, portfolio, *draft)
	outcome, err := e.Risk.Evaluate(riskCtx, reg.RiskName, reg.RiskList)
	if err != nil {
		return TickResult{}, config.NewKernelError(config.KindRuntime, "lifecycle.risk", err)
	}
	if !outcome.Allowed {
		metrics.RecordRiskRejection(outcome.RiskName, outcome.GateName)
		e.Bus.Publish(eventbus.Event{
			Topic: eventbus.TopicRiskRejected, Symbol: tc.Symbol, StrategyName: reg.Name,
			Timestamp: tc.When, Mode: tc.Mode, Body: outcome,
		})
		result := idleResult(reg.Name, tc.Symbol, tc.When)
		result.RiskRejected = true
		result.RiskNote = outcome.Note
		result.RiskMessage = outcome.Message
		return result, nil
	}
	metrics.RecordRiskAllowed()

	if withinTolerance(draft.PriceOpen, vwap) {
		tracked := signal.NewScheduled(reg.Name, tc.Symbol, *draft, tc.When)
		tracked.State = signal.StateOpened
		tracked.OpenedAt = tc.When
		tracked.PriceOpenActual = draft.PriceOpen
		if err := e.persist(ctx, tracked); err != nil {
			return TickResult{}, err
		}
		metrics.RecordTransition("none", string(signal.StateOpened))
		e.publishSignal(tc, reg, eventbus.TopicSignal, tracked)
		if reg.Callbacks.OnOpen != nil {
			e.runCallback(tc, reg, "onOpen", func() { reg.Callbacks.OnOpen(tc, tracked) })
		}
		return TickResult{State: ResultOpened, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
	}

	tracked := signal.NewScheduled(reg.Name, tc.Symbol, *draft, tc.When)
	if err := e.persist(ctx, tracked); err != nil {
		return TickResult{}, err
	}
	metrics.RecordTransition("none", string(signal.StateScheduled))
	e.publishSignal(tc, reg, eventbus.TopicSignal, tracked)
	return TickResult{State: ResultScheduled, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
}

// runCallback runs a user-supplied observer, isolating a panic so one
// broken callback cannot take down the run; the failure is reported on
// the error topic and execution continues.
func (e *Engine) runCallback(tc kernelctx.TemporalContext, reg strategy.Registration, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordError("runtime", "callback")
			e.Bus.Publish(eventbus.Event{
				Topic: eventbus.TopicError, Symbol: tc.Symbol, StrategyName: reg.Name,
				Timestamp: tc.When, Mode: tc.Mode,
				Body: fmt.Errorf("user callback %s panicked: %v", name, r),
			})
		}
	}()
	fn()
}

// persist times the store write for the adapter-health metrics and
// funnels every engine write through one place.
func (e *Engine) persist(ctx context.Context, tracked signal.Tracked) error {
	start := time.Now()
	err := e.Store.WriteAtomic(ctx, tracked)
	metrics.RecordStoreWrite(e.Store.Backend(), float64(time.Since(start).Microseconds())/1000, err)
	return err
}

// tickScheduled waits for VWAP to cross the scheduled entry price.
func (e *Engine) tickScheduled(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, key signal.Key, tracked signal.Tracked, portfolio signal.PortfolioView) (TickResult, error) {
	vwap, err := e.Gateway.GetAveragePrice(ctx, tc)
	if err != nil {
		return TickResult{}, err
	}

	crossed := false
	if tracked.Position == signal.Long {
		crossed = vwap <= tracked.PriceOpen
	} else {
		crossed = vwap >= tracked.PriceOpen
	}

	if !crossed {
		e.maybePing(tc, reg, key, tracked)
		return TickResult{State: ResultScheduled, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
	}

	draft := signal.Draft{
		ID: tracked.ID, Position: tracked.Position, PriceOpen: tracked.PriceOpen,
		PriceTakeProfit: tracked.PriceTakeProfit, PriceStopLoss: tracked.PriceStopLoss,
		MinuteEstimatedTime: tracked.MinuteEstimatedTime, Note: tracked.Note,
	}
	riskCtx := e.riskContext(tc, reg, vwap, portfolio, draft)
	outcome, err := e.Risk.Evaluate(riskCtx, reg.RiskName, reg.RiskList)
	if err != nil {
		return TickResult{}, config.NewKernelError(config.KindRuntime, "lifecycle.risk", err)
	}
	if !outcome.Allowed {
		metrics.RecordRiskRejection(outcome.RiskName, outcome.GateName)
		e.Bus.Publish(eventbus.Event{
			Topic: eventbus.TopicRiskRejected, Symbol: tc.Symbol, StrategyName: reg.Name,
			Timestamp: tc.When, Mode: tc.Mode, Body: outcome,
		})
		return TickResult{State: ResultScheduled, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
	}

	tracked.State = signal.StateOpened
	tracked.OpenedAt = tc.When
	tracked.PriceOpenActual = tracked.PriceOpen
	if err := e.persist(ctx, tracked); err != nil {
		return TickResult{}, err
	}
	metrics.RecordTransition(string(signal.StateScheduled), string(signal.StateOpened))
	e.publishSignal(tc, reg, eventbus.TopicSignal, tracked)
	if reg.Callbacks.OnOpen != nil {
		e.runCallback(tc, reg, "onOpen", func() { reg.Callbacks.OnOpen(tc, tracked) })
	}
	return TickResult{State: ResultOpened, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
}

func (e *Engine) maybePing(tc kernelctx.TemporalContext, reg strategy.Registration, key signal.Key, tracked signal.Tracked) {
	e.mu.Lock()
	last, ok := e.lastPingAt[key]
	due := !ok || tc.When.Sub(last) >= e.pingPeriod()
	if due {
		e.lastPingAt[key] = tc.When
	}
	e.mu.Unlock()
	if !due {
		return
	}
	e.Bus.Publish(eventbus.Event{
		Topic: eventbus.TopicScheduledPing, Symbol: tc.Symbol, StrategyName: reg.Name,
		Timestamp: tc.When, Mode: tc.Mode, Body: tracked,
	})
}

// tickOpenedOrActive demotes opened to active, evaluates terminal
// conditions in order, then partials and breakeven.
func (e *Engine) tickOpenedOrActive(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, key signal.Key, tracked signal.Tracked) (TickResult, error) {
	if tracked.State == signal.StateOpened {
		tracked.State = signal.StateActive
		metrics.RecordTransition(string(signal.StateOpened), string(signal.StateActive))
	}
	if tracked.PartialsHit == nil {
		tracked.PartialsHit = map[float64]bool{}
	}
	tracked.LastTickAt = tc.When

	vwap, err := e.Gateway.GetAveragePrice(ctx, tc)
	if err != nil {
		return TickResult{}, err
	}

	if elapsed := tc.When.Sub(tracked.OpenedAt); elapsed >= time.Duration(tracked.MinuteEstimatedTime)*time.Minute {
		return e.closeSignal(ctx, tc, reg, tracked, vwap, signal.ReasonTimeExpired)
	}

	tpHit, slHit := e.checkExit(tracked, vwap)
	if e.Config.StrictExitMode && !tpHit && !slHit {
		tpHit, slHit, err = e.checkExitStrict(ctx, tc, tracked)
		if err != nil {
			return TickResult{}, err
		}
	}
	if slHit {
		return e.closeSignal(ctx, tc, reg, tracked, e.exitPrice(tracked, vwap, signal.ReasonStopLoss), signal.ReasonStopLoss)
	}
	if tpHit {
		return e.closeSignal(ctx, tc, reg, tracked, e.exitPrice(tracked, vwap, signal.ReasonTakeProfit), signal.ReasonTakeProfit)
	}

	e.evaluatePartials(tc, reg, &tracked, vwap)
	e.evaluateBreakeven(tc, reg, &tracked, vwap)

	if err := e.persist(ctx, tracked); err != nil {
		return TickResult{}, err
	}
	e.maybeActivePing(tc, reg, key, tracked)
	if reg.Callbacks.OnActive != nil {
		e.runCallback(tc, reg, "onActive", func() { reg.Callbacks.OnActive(tc, tracked) })
	}
	if reg.Callbacks.OnTick != nil {
		e.runCallback(tc, reg, "onTick", func() { reg.Callbacks.OnTick(tc, tracked) })
	}
	return TickResult{State: ResultActive, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
}

// maybeActivePing mirrors the scheduled heartbeat for an active
// position, at most one per minute per slot.
func (e *Engine) maybeActivePing(tc kernelctx.TemporalContext, reg strategy.Registration, key signal.Key, tracked signal.Tracked) {
	e.mu.Lock()
	last, ok := e.lastActivePingAt[key]
	due := !ok || tc.When.Sub(last) >= e.pingPeriod()
	if due {
		e.lastActivePingAt[key] = tc.When
	}
	e.mu.Unlock()
	if !due {
		return
	}
	e.Bus.Publish(eventbus.Event{
		Topic: eventbus.TopicActivePing, Symbol: tc.Symbol, StrategyName: reg.Name,
		Timestamp: tc.When, Mode: tc.Mode, Body: tracked,
	})
}

// checkExitStrict is the optional stricter trigger mode: in addition to
// VWAP, a wick touch on the most recent closed 1-minute candle counts.
// Both sides may touch inside one candle; the caller's pessimistic
// tie-break still applies.
func (e *Engine) checkExitStrict(ctx context.Context, tc kernelctx.TemporalContext, tracked signal.Tracked) (tpHit, slHit bool, err error) {
	candles, err := e.Gateway.GetCandles(ctx, tc, candle.Interval1m, 1)
	if err != nil {
		return false, false, err
	}
	if len(candles) == 0 {
		return false, false, nil
	}
	last := candles[len(candles)-1]
	if tracked.Position == signal.Long {
		return last.High >= tracked.PriceTakeProfit, last.Low <= tracked.PriceStopLoss, nil
	}
	return last.Low <= tracked.PriceTakeProfit, last.High >= tracked.PriceStopLoss, nil
}

// exitPrice pins the close price of a take-profit or stop-loss exit to
// the trigger level whenever strict exit mode is on, whether the wick or
// the VWAP fired; otherwise the close price is the VWAP.
func (e *Engine) exitPrice(tracked signal.Tracked, vwap float64, reason signal.CloseReason) float64 {
	if !e.Config.StrictExitMode {
		return vwap
	}
	switch reason {
	case signal.ReasonTakeProfit:
		return tracked.PriceTakeProfit
	case signal.ReasonStopLoss:
		return tracked.PriceStopLoss
	default:
		return vwap
	}
}

// checkExit reports whether the current VWAP has reached the take
// profit or stop loss target. Both may fire in the same window; the
// caller applies the pessimistic tie-break (stop_loss wins).
func (e *Engine) checkExit(tracked signal.Tracked, vwap float64) (tpHit, slHit bool) {
	if tracked.Position == signal.Long {
		return vwap >= tracked.PriceTakeProfit, vwap <= tracked.PriceStopLoss
	}
	return vwap <= tracked.PriceTakeProfit, vwap >= tracked.PriceStopLoss
}

func (e *Engine) closeSignal(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, tracked signal.Tracked, priceClose float64, reason signal.CloseReason) (TickResult, error) {
	from := tracked.State
	tracked.State = signal.StateClosed
	tracked.ClosedAt = tc.When
	tracked.PriceClose = priceClose
	tracked.CloseReason = reason
	tracked.PnL = computePnL(tracked.Position, tracked.PriceOpenActual, priceClose, e.Config.FeePercent, e.Config.SlippagePercent)

	if err := e.persist(ctx, tracked); err != nil {
		return TickResult{}, err
	}
	metrics.RecordTransition(string(from), string(signal.StateClosed))
	metrics.RecordSignalClose(string(reason), tracked.PnL.Percent)
	e.publishSignal(tc, reg, eventbus.TopicSignal, tracked)
	if reg.Callbacks.OnClose != nil {
		e.runCallback(tc, reg, "onClose", func() { reg.Callbacks.OnClose(tc, tracked) })
	}
	return TickResult{State: ResultClosed, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
}

// evaluatePartials fires milestone events. Levels express distance to
// the final TP/SL target as a percentage; once VWAP reaches a level not
// yet recorded, a non-terminal advisory event fires.
func (e *Engine) evaluatePartials(tc kernelctx.TemporalContext, reg strategy.Registration, tracked *signal.Tracked, vwap float64) {
	for _, level := range e.Config.PartialTPLevels {
		if tracked.PartialsHit[level] {
			continue
		}
		target := partialTarget(tracked.Position, tracked.PriceOpenActual, tracked.PriceTakeProfit, level)
		if levelReached(tracked.Position, vwap, target) {
			tracked.PartialsHit[level] = true
			e.Bus.Publish(eventbus.Event{
				Topic: eventbus.TopicPartialProfit, Symbol: tc.Symbol, StrategyName: reg.Name,
				Timestamp: tc.When, Mode: tc.Mode, Body: map[string]any{"level": level, "tracked": *tracked},
			})
		}
	}
	for _, level := range e.Config.PartialSLLevels {
		negLevel := -level
		if tracked.PartialsHit[negLevel] {
			continue
		}
		target := partialTarget(tracked.Position, tracked.PriceOpenActual, tracked.PriceStopLoss, level)
		if levelReachedAdverse(tracked.Position, vwap, target) {
			tracked.PartialsHit[negLevel] = true
			e.Bus.Publish(eventbus.Event{
				Topic: eventbus.TopicPartialLoss, Symbol: tc.Symbol, StrategyName: reg.Name,
				Timestamp: tc.When, Mode: tc.Mode, Body: map[string]any{"level": level, "tracked": *tracked},
			})
		}
	}
}

// evaluateBreakeven fires a one-shot event once VWAP has advanced the
// configured fraction of the TP distance.
func (e *Engine) evaluateBreakeven(tc kernelctx.TemporalContext, reg strategy.Registration, tracked *signal.Tracked, vwap float64) {
	if tracked.BreakevenApplied {
		return
	}
	target := partialTarget(tracked.Position, tracked.PriceOpenActual, tracked.PriceTakeProfit, e.Config.BreakevenTrigger)
	if levelReached(tracked.Position, vwap, target) {
		tracked.BreakevenApplied = true
		e.Bus.Publish(eventbus.Event{
			Topic: eventbus.TopicBreakeven, Symbol: tc.Symbol, StrategyName: reg.Name,
			Timestamp: tc.When, Mode: tc.Mode, Body: *tracked,
		})
	}
}

func partialTarget(pos signal.Position, priceOpenActual, extreme, levelPercent float64) float64 {
	fraction := levelPercent / 100
	return priceOpenActual + (extreme-priceOpenActual)*fraction
}

func levelReached(pos signal.Position, vwap, target float64) bool {
	if pos == signal.Long {
		return vwap >= target
	}
	return vwap <= target
}

func levelReachedAdverse(pos signal.Position, vwap, target float64) bool {
	// target already points toward the stop-loss side; reaching it
	// means price has moved against the position by that fraction.
	if pos == signal.Long {
		return vwap <= target
	}
	return vwap >= target
}

// Cancel clears a scheduled signal. Cancel on active is a no-op unless
// Config.CancelActiveAllowed.
func (e *Engine) Cancel(ctx context.Context, tc kernelctx.TemporalContext, reg strategy.Registration, cancellationID string) (TickResult, error) {
	key := signal.Key{Strategy: reg.Name, Symbol: tc.Symbol}
	tracked, ok := e.Store.Read(key)
	if !ok || tracked.IsTerminal() {
		return idleResult(reg.Name, tc.Symbol, tc.When), nil
	}

	if tracked.State != signal.StateScheduled {
		if !e.Config.CancelActiveAllowed {
			return TickResult{State: ResultActive, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
		}
	}

	from := tracked.State
	tracked.State = signal.StateCancelled
	tracked.CancelledAt = tc.When
	tracked.CancellationID = cancellationID
	if err := e.persist(ctx, tracked); err != nil {
		return TickResult{}, err
	}
	metrics.RecordTransition(string(from), string(signal.StateCancelled))
	e.publishSignal(tc, reg, eventbus.TopicSignal, tracked)
	return TickResult{State: ResultCancelled, Strategy: reg.Name, Symbol: tc.Symbol, Tracked: tracked, Timestamp: tc.When}, nil
}

func (e *Engine) riskContext(tc kernelctx.TemporalContext, reg strategy.Registration, currentPrice float64, portfolio signal.PortfolioView, draft signal.Draft) signal.Context {
	return signal.Context{
		Symbol:              tc.Symbol,
		StrategyName:        reg.Name,
		ExchangeName:        e.Gateway.Name,
		Timestamp:           tc.When,
		CurrentPrice:        currentPrice,
		ActivePositions:     portfolio,
		ActivePositionCount: portfolio.ActiveCount(tc.Symbol),
		PendingSignal:       draft,
	}
}

func (e *Engine) publishSignal(tc kernelctx.TemporalContext, reg strategy.Registration, topic eventbus.Topic, tracked signal.Tracked) {
	e.Bus.Publish(eventbus.Event{
		Topic: topic, Symbol: tc.Symbol, StrategyName: reg.Name,
		Timestamp: tc.When, Mode: tc.Mode, Body: tracked,
	})
	modeTopic := eventbus.TopicSignalBacktest
	if tc.Mode == kernelctx.ModeLive {
		modeTopic = eventbus.TopicSignalLive
	}
	e.Bus.Publish(eventbus.Event{
		Topic: modeTopic, Symbol: tc.Symbol, StrategyName: reg.Name,
		Timestamp: tc.When, Mode: tc.Mode, Body: tracked,
	})
}

func withinTolerance(priceOpen, vwap float64) bool {
	if vwap == 0 {
		return priceOpen == 0
	}
	diff := priceOpen - vwap
	if diff < 0 {
		diff = -diff
	}
	return diff/vwap <= priceTolerance
}
