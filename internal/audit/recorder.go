package audit

import (
	"context"

	"github.com/ordinalkernel/tradekernel/internal/eventbus"
	"github.com/ordinalkernel/tradekernel/internal/risk"
	"github.com/ordinalkernel/tradekernel/internal/signal"
)

// Recorder subscribes to the event bus and turns lifecycle events into
// audit log entries, so the trail exists without the Lifecycle Engine
// knowing about the audit package.
type Recorder struct {
	logger *Logger
	subs   []*eventbus.Subscription
}

// NewRecorder builds a Recorder over logger.
func NewRecorder(logger *Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Attach subscribes the recorder to the bus topics that matter for the
// audit trail. Call Detach to unsubscribe.
func (r *Recorder) Attach(bus *eventbus.Bus) {
	r.subs = append(r.subs,
		bus.Subscribe(eventbus.TopicSignal, r.onSignal),
		bus.Subscribe(eventbus.TopicRiskRejected, r.onRiskRejected),
		bus.Subscribe(eventbus.TopicDoneBacktest, r.onDone),
		bus.Subscribe(eventbus.TopicDoneLive, r.onDone),
	)
}

// Detach unsubscribes every subscription Attach created.
func (r *Recorder) Detach() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
}

func (r *Recorder) onSignal(ev eventbus.Event) error {
	tracked, ok := ev.Body.(signal.Tracked)
	if !ok {
		return nil
	}

	var eventType EventType
	switch tracked.State {
	case signal.StateScheduled:
		eventType = EventTypeSignalScheduled
	case signal.StateOpened:
		eventType = EventTypeSignalOpened
	case signal.StateClosed:
		eventType = EventTypeSignalClosed
	case signal.StateCancelled:
		eventType = EventTypeSignalCancelled
	default:
		return nil
	}

	metadata := map[string]interface{}{
		"symbol":   tracked.Symbol,
		"position": string(tracked.Position),
		"state":    string(tracked.State),
	}
	if tracked.State == signal.StateClosed {
		metadata["close_reason"] = string(tracked.CloseReason)
		metadata["price_close"] = tracked.PriceClose
		metadata["pnl_percent"] = tracked.PnL.Percent
	}

	return r.logger.LogSignalEvent(context.Background(), eventType,
		"strategy:"+ev.StrategyName, "", tracked.ID, metadata, true, "")
}

func (r *Recorder) onRiskRejected(ev eventbus.Event) error {
	note := ""
	metadata := map[string]interface{}{"symbol": ev.Symbol}
	if outcome, ok := ev.Body.(risk.Outcome); ok {
		note = outcome.Note
		metadata["risk"] = outcome.RiskName
		metadata["message"] = outcome.Message
	}
	return r.logger.LogRiskRejection(context.Background(),
		"strategy:"+ev.StrategyName, "", ev.Symbol, note, metadata)
}

func (r *Recorder) onDone(ev eventbus.Event) error {
	return r.logger.LogRunEvent(context.Background(), EventTypeRunFinished,
		"strategy:"+ev.StrategyName, "", ev.Symbol, true, "")
}
