// Package events publishes pipeline lifecycle events to Kafka. Events
// are keyed by run id so one run's events stay ordered within a
// partition. A disabled publisher accepts and drops everything, letting
// callers publish unconditionally.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/observability"
)

// eventSource is stamped into event metadata so consumers can tell
// which service produced the event.
const eventSource = "paper-corpus-service"

// Config holds configuration for the event publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the Kafka topic lifecycle events are written to.
	Topic string

	// Enabled turns publishing on. When false Publish is a no-op.
	Enabled bool

	// BatchTimeout bounds how long messages wait for a batch before
	// being flushed. Default: 100ms.
	BatchTimeout time.Duration
}

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes pipeline events to a Kafka topic.
type Publisher struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewPublisher creates a Kafka-backed publisher. With Enabled false or
// no brokers configured the publisher is disabled and every Publish
// succeeds without doing anything.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	log := logger.With().Str("component", "event_publisher").Logger()
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Debug().Msg("event publishing disabled")
		return &Publisher{logger: log}
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: batchTimeout,
		ErrorLogger:  observability.NewKafkaLogger(log, zerolog.ErrorLevel),
	}
	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("event publisher configured")
	return &Publisher{writer: writer, logger: log}
}

// Enabled reports whether events actually reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.writer != nil
}

// Publish writes one event. The event is stamped with the producing
// service before serialization.
func (p *Publisher) Publish(ctx context.Context, event *domain.PipelineEvent) error {
	if event == nil {
		return domain.NewValidationError("event", "must not be nil")
	}
	if p.writer == nil {
		return nil
	}

	stampSource(event)
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("run_id", event.RunID).
		Msg("published pipeline event")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func stampSource(event *domain.PipelineEvent) {
	if event.Metadata == nil {
		event.WithMetadata(map[string]interface{}{"source": eventSource})
		return
	}
	if _, ok := event.Metadata["source"]; !ok {
		event.Metadata["source"] = eventSource
	}
}
