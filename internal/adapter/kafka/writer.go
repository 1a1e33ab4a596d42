package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/civicwatch/incident-proximity-service/internal/config"
	"github.com/civicwatch/incident-proximity-service/internal/domain"
)

// Writer produces alert decisions to the decision topic.
// It implements engine.DecisionPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured decision topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch serializes and publishes multiple alert decisions in a
// single WriteMessages call for efficiency.
func (w *Writer) PublishBatch(ctx context.Context, decisions []domain.AlertDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(decisions))
	for i := range decisions {
		msg, err := serializeDecision(decisions[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeDecision marshals an AlertDecision into a Kafka message. The key
// combines incident and user so per-user ordering is stable under
// partitioning.
func serializeDecision(decision domain.AlertDecision) (kafkago.Message, error) {
	data, err := json.Marshal(decision)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert decision: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(decision.Incident.ID + ":" + decision.UserKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "incident_type", Value: []byte(decision.Incident.Type)},
			{Key: "decided_at", Value: []byte(decision.DecidedAt.Format(time.RFC3339))},
		},
	}, nil
}
