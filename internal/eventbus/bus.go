// Package eventbus implements the in-process event bus: per-topic,
// per-subscription FIFO delivery. Publishers never block on a slow
// subscriber; each subscription drains its own queue on its own
// goroutine, strictly serialising its handler invocations.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ordinalkernel/tradekernel/internal/kernelctx"
	"github.com/ordinalkernel/tradekernel/internal/metrics"
)

// Topic is one of the fixed wire topics.
type Topic string

const (
	TopicSignal           Topic = "signal"
	TopicSignalBacktest   Topic = "signal-backtest"
	TopicSignalLive       Topic = "signal-live"
	TopicRiskRejected     Topic = "risk-rejected"
	TopicPartialProfit    Topic = "partial-profit"
	TopicPartialLoss      Topic = "partial-loss"
	TopicBreakeven        Topic = "breakeven"
	TopicScheduledPing    Topic = "scheduled-ping"
	TopicActivePing       Topic = "active-ping"
	TopicProgressBacktest Topic = "progress-backtest"
	TopicDoneBacktest     Topic = "done-backtest"
	TopicDoneLive         Topic = "done-live"
	TopicError            Topic = "error"
	TopicExit             Topic = "exit"
)

// Event is the wire envelope: common fields plus a topic-specific Body.
type Event struct {
	Topic        Topic
	Symbol       string
	StrategyName string
	ExchangeName string
	FrameName    string
	Timestamp    time.Time
	Mode         kernelctx.Mode
	Body         any
}

// Handler processes one event. An error it returns is isolated: it
// never propagates into the publisher, it is reported on TopicError
// instead.
type Handler func(Event) error

// defaultQueueDepth is the "unbounded" queue depth: large enough that
// no slow subscriber should hit it under normal tick rates, while still
// bounding memory.
const defaultQueueDepth = 4096

// Bus is the in-process event bus.
type Bus struct {
	log  zerolog.Logger
	mu   sync.RWMutex
	subs map[Topic][]*subscription
}

// New builds an empty Bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{log: log, subs: map[Topic][]*subscription{}}
}

type subscription struct {
	id        string
	topic     Topic
	queue     chan Event
	handler   Handler
	once      bool
	predicate func(Event) bool
	done      chan struct{}
	bus       *Bus

	sendMu sync.Mutex
	closed bool
}

// Subscription is the caller-held handle returned by Subscribe.
type Subscription struct {
	sub *subscription
}

// Unsubscribe stops delivery to this subscription. Events already queued
// are still drained to preserve FIFO order for anything queued before
// the call.
func (s *Subscription) Unsubscribe() {
	s.sub.bus.remove(s.sub)
	s.sub.sendMu.Lock()
	if !s.sub.closed {
		s.sub.closed = true
		close(s.sub.queue)
	}
	s.sub.sendMu.Unlock()
}

// IsValid reports whether this subscription is still registered on its
// bus.
func (s *Subscription) IsValid() bool {
	b := s.sub.bus
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[s.sub.topic] {
		if sub.id == s.sub.id {
			return true
		}
	}
	return false
}

// Subscribe registers handler on topic with the default (effectively
// unbounded) queue depth.
func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	return b.subscribe(topic, handler, defaultQueueDepth, false, nil)
}

// SubscribeBounded registers handler on topic with a queue of depth N,
// the memory-protection variant. cmd/live uses it, sized by
// Config.Kernel.LiveBusQueueDepth, for the NATS mirror only; Subscribe
// keeps the default depth in every mode. When the queue is full,
// the oldest queued event is dropped to make room for the new one rather
// than blocking the publisher — publishers must never block.
func (b *Bus) SubscribeBounded(topic Topic, depth int, handler Handler) *Subscription {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return b.subscribe(topic, handler, depth, false, nil)
}

// Once registers handler to fire at most once, for the first event on
// topic matching predicate, auto-unsubscribing once that handler's call
// settles.
func (b *Bus) Once(topic Topic, predicate func(Event) bool, handler Handler) *Subscription {
	return b.subscribe(topic, handler, defaultQueueDepth, true, predicate)
}

func (b *Bus) subscribe(topic Topic, handler Handler, depth int, once bool, predicate func(Event) bool) *Subscription {
	sub := &subscription{
		id:        uuid.NewString(),
		topic:     topic,
		queue:     make(chan Event, depth),
		handler:   handler,
		once:      once,
		predicate: predicate,
		done:      make(chan struct{}),
		bus:       b,
	}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()
	go b.drain(sub)
	return &Subscription{sub: sub}
}

// drain is the one-goroutine-per-subscription worker that serialises
// handler calls: the next event is not read off the channel until the
// previous handler call has returned.
func (b *Bus) drain(sub *subscription) {
	defer close(sub.done)
	for ev := range sub.queue {
		if sub.once && sub.predicate != nil && !sub.predicate(ev) {
			continue
		}
		if err := sub.handler(ev); err != nil {
			b.reportHandlerError(sub.topic, sub.id, err)
		}
		if sub.once {
			b.remove(sub)
			sub.sendMu.Lock()
			if !sub.closed {
				sub.closed = true
				close(sub.queue)
			}
			sub.sendMu.Unlock()
			return
		}
	}
}

func (b *Bus) reportHandlerError(topic Topic, subID string, err error) {
	if topic == TopicError {
		// Avoid recursive error storms if an error-topic handler itself
		// fails; log only.
		b.log.Error().Err(err).Str("subscription", subID).Msg("error-topic subscriber failed")
		return
	}
	b.log.Warn().Err(err).Str("topic", string(topic)).Str("subscription", subID).Msg("subscriber handler failed, isolated")
	b.Publish(Event{Topic: TopicError, Timestamp: time.Now().UTC(), Body: err})
}

func (b *Bus) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[target.topic]
	for i, s := range subs {
		if s.id == target.id {
			b.subs[target.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber of ev.Topic without blocking:
// a full bounded queue drops its oldest entry to make room.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	targets := append([]*subscription(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()

	metrics.RecordBusPublish(string(ev.Topic))
	for _, sub := range targets {
		sub.send(ev)
	}
}

// HasSubscribers reports whether any subscription is currently
// registered on topic. The Backtest Driver uses this to decide whether
// the fast path may skip per-tick partial/breakeven evaluation.
func (b *Bus) HasSubscribers(topic Topic) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic]) > 0
}

// send enqueues ev, dropping the oldest queued event to make room if
// full, and is a no-op once the subscription has been unsubscribed.
func (sub *subscription) send(ev Event) {
	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.queue <- ev:
		return
	default:
	}
	metrics.RecordBusDrop(string(ev.Topic))
	select {
	case <-sub.queue:
	default:
	}
	select {
	case sub.queue <- ev:
	default:
	}
}
