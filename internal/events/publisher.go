// Package events publishes batch lifecycle events to Kafka for downstream
// consumers. Publishing is optional: when no broker is configured the
// pipeline runs without it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

// DefaultTopic is the topic batch lifecycle events are published to when no
// topic is configured.
const DefaultTopic = "paper-enrichment.batches"

// messageWriter is the subset of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds configuration for the event publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for batch lifecycle events.
	Topic string
	// WriteTimeout bounds each publish call.
	WriteTimeout time.Duration
}

// envelope is the wire form of a lifecycle event.
type envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	BatchID    string          `json:"batch_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher writes batch lifecycle events to a Kafka topic. Events are keyed
// by batch ID, so all events of one batch land on the same partition in
// order.
type Publisher struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewPublisher creates a Kafka-backed event publisher.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
	}

	return &Publisher{
		writer: writer,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish writes one event. The event's payload is embedded as-is; metadata
// travels both in the envelope and as message headers so consumers can
// filter without decoding the value.
func (p *Publisher) Publish(ctx context.Context, event *domain.Event) error {
	value, err := json.Marshal(envelope{
		EventID:    event.EventID,
		EventType:  event.EventType,
		BatchID:    event.BatchID.String(),
		OccurredAt: event.OccurredAt,
		Payload:    event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.EventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BatchID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("event_id", event.EventID).
		Str("batch_id", event.BatchID.String()).
		Msg("published batch event")

	return nil
}

// Close closes the underlying Kafka writer.
func (p *Publisher) Close() error {
	p.logger.Info().Msg("closing event publisher")
	return p.writer.Close()
}
