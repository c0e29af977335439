// Package kafka publishes calculation lifecycle events for downstream
// consumers (reporting, billing). Publishing is best-effort: a failed
// publish is logged and counted, never surfaced to the caller.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geo-index-service/internal/config"
	"github.com/couchcryptid/geo-index-service/internal/domain"
	"github.com/couchcryptid/geo-index-service/internal/observability"
)

// Publisher produces calculation events to a Kafka topic.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the configured events topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// calculationEvent is the wire form of a persisted calculation. The result
// payload itself stays in the store; the event carries identifiers only.
type calculationEvent struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Years     []int     `json:"years"`
	CreatedAt time.Time `json:"created_at"`
}

// PublishCalculation emits one event for a freshly persisted record.
func (p *Publisher) PublishCalculation(ctx context.Context, record domain.CalculationRecord) error {
	msg, err := serializeRecord(record)
	if err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish calculation event: %w", err)
	}

	p.metrics.EventsPublished.WithLabelValues("success").Inc()
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeRecord marshals a CalculationRecord into a Kafka message.
func serializeRecord(record domain.CalculationRecord) (kafkago.Message, error) {
	data, err := json.Marshal(calculationEvent{
		ID:        record.ID,
		OwnerID:   record.OwnerID,
		Years:     record.Years,
		CreatedAt: record.CreatedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize calculation event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(record.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("calculation_completed")},
			{Key: "created_at", Value: []byte(record.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
