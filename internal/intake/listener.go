// Package intake consumes batch submission events from Kafka and drives
// the processing pipeline. Submissions run one at a time; Kafka buffers
// whatever arrives while a batch is in flight.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/litforge/paper-corpus-service/internal/domain"
	"github.com/litforge/paper-corpus-service/internal/observability"
	"github.com/litforge/paper-corpus-service/internal/pipeline"
)

// BatchSubmission is the payload of a batch submission event.
type BatchSubmission struct {
	RunID     string            `json:"run_id"`
	TopicSlug string            `json:"topic_slug"`
	Query     string            `json:"query,omitempty"`
	Papers    []*domain.Paper   `json:"papers"`
	Config    *domain.RunConfig `json:"config,omitempty"`
}

// Config holds configuration for the intake listener.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the Kafka topic for batch submissions.
	Topic string

	// GroupID is the consumer group ID.
	GroupID string
}

// BatchProcessor runs one submission through the pipeline.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batch pipeline.Batch) (<-chan pipeline.PaperResult, error)
}

// messageReader is the part of kafka.Reader the listener uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Listener consumes batch submissions and feeds them to the pipeline.
type Listener struct {
	reader    messageReader
	processor BatchProcessor
	logger    zerolog.Logger
}

// NewListener creates a new batch submission listener.
func NewListener(cfg Config, processor BatchProcessor, logger zerolog.Logger) *Listener {
	log := logger.With().Str("component", "intake_listener").Logger()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     3 * time.Second,
		ErrorLogger: observability.NewKafkaLogger(log, zerolog.ErrorLevel),
	})

	return &Listener{
		reader:    reader,
		processor: processor,
		logger:    log,
	}
}

// Run starts the listener loop. Blocks until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting intake listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("intake listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received batch submission")

		var submission BatchSubmission
		if err := json.Unmarshal(msg.Value, &submission); err != nil {
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal batch submission")
			continue
		}

		if err := l.handleSubmission(ctx, submission); err != nil {
			l.logger.Error().Err(err).
				Str("run_id", submission.RunID).
				Msg("failed to process batch submission")
		}
	}
}

// handleSubmission drives one submission through the pipeline and drains
// the result stream.
func (l *Listener) handleSubmission(ctx context.Context, submission BatchSubmission) error {
	logger := observability.WithRunContext(l.logger, submission.RunID, submission.TopicSlug)
	ctx = observability.WithRun(ctx, submission.RunID, submission.TopicSlug)
	logger.Info().
		Int("papers", len(submission.Papers)).
		Msg("handling batch submission")

	results, err := l.processor.ProcessBatch(ctx, pipeline.Batch{
		RunID:     submission.RunID,
		TopicSlug: submission.TopicSlug,
		Query:     submission.Query,
		Papers:    submission.Papers,
		Config:    submission.Config,
	})
	if err != nil {
		return fmt.Errorf("failed to start batch run: %w", err)
	}

	processed := 0
	for range results {
		processed++
	}

	logger.Info().
		Int("processed", processed).
		Msg("batch submission finished")
	return nil
}

// Close closes the underlying Kafka reader.
func (l *Listener) Close() error {
	return l.reader.Close()
}
