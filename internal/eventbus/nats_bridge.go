package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSBridge mirrors Bus events onto NATS subjects ("{prefix}{topic}")
// for external subscribers such as reporting or alerting processes. Off
// by default (NATSConfig.Enabled); in-process Bus delivery works with
// or without it.
type NATSBridge struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NewNATSBridge connects to natsURL and returns a bridge that publishes
// under prefix (default "tradekernel.").
func NewNATSBridge(natsURL, prefix string, log zerolog.Logger) (*NATSBridge, error) {
	if prefix == "" {
		prefix = "tradekernel."
	}
	nc, err := nats.Connect(
		natsURL,
		nats.Name("tradekernel-eventbus"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats bridge disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats bridge reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to nats: %w", err)
	}
	return &NATSBridge{nc: nc, prefix: prefix, log: log}, nil
}

// Attach subscribes the bridge to each of the given topics on bus and
// mirrors each event onto "{prefix}{topic}"; other topics are not mirrored.
func (n *NATSBridge) Attach(bus *Bus, topics ...Topic) {
	for _, topic := range topics {
		topic := topic
		bus.Subscribe(topic, func(ev Event) error {
			return n.publish(topic, ev)
		})
	}
}

// AttachBounded is Attach with a per-subscription queue bound, the
// memory-protection variant live runs use (Config.Kernel.
// LiveBusQueueDepth): a NATS outage can then drop old mirror events
// instead of growing a queue for the lifetime of the run.
func (n *NATSBridge) AttachBounded(bus *Bus, depth int, topics ...Topic) {
	for _, topic := range topics {
		topic := topic
		bus.SubscribeBounded(topic, depth, func(ev Event) error {
			return n.publish(topic, ev)
		})
	}
}

func (n *NATSBridge) publish(topic Topic, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event for nats: %w", err)
	}
	subject := n.prefix + string(topic)
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("eventbus: publish to nats: %w", err)
	}
	return nil
}

// Close drains and closes the underlying NATS connection.
func (n *NATSBridge) Close() {
	n.nc.Drain()
}
