// Package kafka adapts segmentio/kafka-go to the engine's extractor and
// publisher interfaces.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/civicwatch/incident-proximity-service/internal/config"
	"github.com/civicwatch/incident-proximity-service/internal/engine"
)

// Reader consumes raw incident messages from the report topic.
// It implements engine.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	logger        *slog.Logger
	flushInterval time.Duration
}

// NewReader creates a consumer-group reader for the configured incident topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		Topic:       cfg.KafkaIncidentTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger, flushInterval: cfg.BatchFlushInterval}
}

// ExtractBatch blocks until at least one message arrives, then keeps
// collecting until batchSize messages are buffered or the flush interval
// elapses. Partial batches are normal under light traffic.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]engine.IncidentEvent, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]engine.IncidentEvent, 0, batchSize)
	events = append(events, r.mapMessage(first))

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	for len(events) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			// Hand back what we have; the engine commits per message, so
			// nothing buffered is lost.
			r.logger.Warn("batch fetch interrupted", "error", err, "buffered", len(events))
			break
		}
		events = append(events, r.mapMessage(msg))
	}

	return events, nil
}

// Close shuts down the underlying consumer-group reader.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessage converts a Kafka message into an IncidentEvent with a commit
// closure bound to this reader's consumer group.
func (r *Reader) mapMessage(msg kafkago.Message) engine.IncidentEvent {
	return engine.IncidentEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Commit: func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		},
	}
}
