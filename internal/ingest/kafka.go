package ingest

import (
	"context"
	"log/slog"
	"time"

	"opsconsole/internal/config"

	"github.com/segmentio/kafka-go"
)

// KafkaSubscriber consumes events from a Kafka topic through a consumer group.
// Offsets are committed only after the sink accepted the events, so uncommitted
// messages come back after a rebalance or restart.
// Params: reader configuration, sink, and logger.
// Returns: Kafka ingest lifecycle handle.
type KafkaSubscriber struct {
	reader *kafka.Reader
	sink   EventSink
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewKafkaSubscriber creates a consumer-group reader and starts the fetch loop.
// Params: ingest Kafka config, sink, and optional logger.
// Returns: started subscriber.
func NewKafkaSubscriber(cfg config.KafkaIngestConfig, sink EventSink, logger *slog.Logger) *KafkaSubscriber {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		StartOffset: kafka.FirstOffset,
	})

	ctx, cancel := context.WithCancel(context.Background())
	subscriber := &KafkaSubscriber{
		reader: reader,
		sink:   sink,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go subscriber.consume(ctx)
	return subscriber
}

// consume fetches, decodes, and forwards messages until the context is canceled.
// Params: loop context.
// Returns: none.
func (s *KafkaSubscriber) consume(ctx context.Context) {
	defer close(s.done)
	scratch := acquireDecodeScratch()
	defer releaseDecodeScratch(scratch)

	for {
		message, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.logger != nil {
				s.logger.Warn("kafka ingest fetch failed", "topic", s.reader.Config().Topic, "error", err.Error())
			}
			if !sleepContext(ctx, time.Second) {
				return
			}
			continue
		}

		events, decodeErr := decodeEventPayloadInto(message.Value, scratch)
		if decodeErr != nil {
			if s.logger != nil {
				s.logger.Warn("kafka ingest decode failed", "topic", message.Topic, "offset", message.Offset, "error", decodeErr.Error())
			}
			// Malformed payloads are committed so they are not redelivered forever.
			s.commit(ctx, message)
			continue
		}

		if pushErr := pushEvents(s.sink, events); pushErr != nil {
			if s.logger != nil {
				s.logger.Error("kafka ingest push failed", "topic", message.Topic, "offset", message.Offset, "error", pushErr.Error())
			}
			continue
		}
		s.commit(ctx, message)
	}
}

// commit marks one message processed and logs commit failures.
// Params: loop context and fetched message.
// Returns: none.
func (s *KafkaSubscriber) commit(ctx context.Context, message kafka.Message) {
	if err := s.reader.CommitMessages(ctx, message); err != nil && s.logger != nil && ctx.Err() == nil {
		s.logger.Warn("kafka ingest commit failed", "topic", message.Topic, "offset", message.Offset, "error", err.Error())
	}
}

// Close stops the fetch loop and closes the reader.
// Params: none.
// Returns: reader close error.
func (s *KafkaSubscriber) Close() error {
	s.cancel()
	err := s.reader.Close()
	<-s.done
	return err
}

// sleepContext waits for the duration unless the context ends first.
// Params: context and delay.
// Returns: false when the context ended during the wait.
func sleepContext(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
