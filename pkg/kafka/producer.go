package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/briarshard/shardsearch/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Message is one record to publish: the key routes to a partition via
// hash balancing, the payload is JSON-encoded on the wire.
type Message struct {
	Key     string
	Payload any
}

// Producer writes JSON-encoded messages to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer builds a synchronous producer for topic with full-acks
// durability and small batching.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func encode(m Message) (kafka.Message, error) {
	value, err := json.Marshal(m.Payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding payload for key %q: %w", m.Key, err)
	}
	return kafka.Message{Key: []byte(m.Key), Value: value}, nil
}

// Publish writes one message and waits for the broker ack.
func (p *Producer) Publish(ctx context.Context, m Message) error {
	msg, err := encode(m)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", "key", m.Key, "error", err)
		return fmt.Errorf("publishing: %w", err)
	}
	return nil
}

// PublishAll writes a batch of messages in one broker round trip.
func (p *Producer) PublishAll(ctx context.Context, msgs []Message) error {
	encoded := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		km, err := encode(m)
		if err != nil {
			return err
		}
		encoded[i] = km
	}
	if err := p.writer.WriteMessages(ctx, encoded...); err != nil {
		p.logger.Error("batch publish failed", "count", len(encoded), "error", err)
		return fmt.Errorf("publishing batch: %w", err)
	}
	p.logger.Debug("batch published", "count", len(encoded))
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
