package ingest

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"opsconsole/internal/config"
	"opsconsole/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSSubscriber consumes events via JetStream queue consumers and forwards to sink.
// Params: NATS connection, JetStream queue subscriptions, and event sink.
// Returns: NATS ingest lifecycle handle.
type NATSSubscriber struct {
	nc     *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

// NewNATSSubscriber creates JetStream queue consumers for event ingestion.
// One subscription per worker shares the deliver group. Workers above one trade
// strict arrival order for throughput.
// Params: ingest NATS config, sink, and optional logger.
// Returns: started subscriber or initialization error.
func NewNATSSubscriber(cfg config.NATSIngestConfig, sink EventSink, logger *slog.Logger) (*NATSSubscriber, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats ingest: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for ingest: %w", err)
	}

	subscriber := &NATSSubscriber{
		nc:     nc,
		logger: logger,
	}
	ackWait := time.Duration(cfg.AckWaitSec) * time.Second
	nackDelay := time.Duration(cfg.NackDelayMS) * time.Millisecond
	subOpts := []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.ConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.MaxAckPending(cfg.MaxAckPending),
		nats.DeliverAll(),
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, func(message *nats.Msg) {
			event, decodeErr := domain.DecodeEvent(message.Data)
			if decodeErr != nil {
				if logger != nil {
					logger.Warn("nats ingest decode failed", "subject", message.Subject, "error", decodeErr.Error())
				}
				subscriber.ackMessage(message, "decode")
				return
			}
			if pushErr := sink.Push(event); pushErr != nil {
				if logger != nil {
					logger.Error("nats ingest push failed", "subject", message.Subject, "error", pushErr.Error())
				}
				subscriber.nackMessage(message, nackDelay)
				return
			}
			subscriber.ackMessage(message, "processed")
		}, subOpts...)
		if err != nil {
			subscriber.closeSubs()
			nc.Close()
			return nil, fmt.Errorf("queue subscribe %q/%q: %w", cfg.Subject, cfg.DeliverGroup, err)
		}
		subscriber.subs = append(subscriber.subs, sub)
	}
	return subscriber, nil
}

// ackMessage acknowledges processed/invalid message and logs ack failures.
// Params: JetStream message and short reason.
// Returns: none.
func (s *NATSSubscriber) ackMessage(message *nats.Msg, reason string) {
	if message == nil {
		return
	}
	if err := message.Ack(); err != nil && s.logger != nil {
		s.logger.Warn("nats ingest ack failed", "subject", message.Subject, "reason", reason, "error", err.Error())
	}
}

// nackMessage asks JetStream to redeliver message and logs nack failures.
// Params: JetStream message and optional delay.
// Returns: none.
func (s *NATSSubscriber) nackMessage(message *nats.Msg, delay time.Duration) {
	if message == nil {
		return
	}
	var err error
	if delay > 0 {
		err = message.NakWithDelay(delay)
	} else {
		err = message.Nak()
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("nats ingest nack failed", "subject", message.Subject, "error", err.Error())
	}
}

// closeSubs drains every live subscription ignoring errors.
// Params: none.
// Returns: none.
func (s *NATSSubscriber) closeSubs() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
}

// Close stops NATS subscriptions and closes connection.
// Params: none.
// Returns: first drain error.
func (s *NATSSubscriber) Close() error {
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.nc.Close()
	return firstErr
}
