package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig points the channel at a kafka topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Kafka writes envelopes to a kafka topic keyed by message name.
type Kafka struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ Channel = (*Kafka)(nil)

// NewKafka builds a synchronous writer. No connection is made until the first send.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	}
	return &Kafka{writer: w, logger: logger}, nil
}

func (k *Kafka) Send(ctx context.Context, message string, data any) error {
	env := NewEnvelope(message, data)
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(message),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "message-id", Value: []byte(env.MessageID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", message, k.writer.Topic, err)
	}
	k.logger.Debug("channel message written", "topic", k.writer.Topic, "message", message, "message_id", env.MessageID)
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
