package channel

import (
	"context"
	"fmt"
	"log/slog"
)

// Driver names accepted by New.
const (
	DriverNull  = "null"
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

// Config selects and configures a driver.
type Config struct {
	Driver string
	Redis  RedisConfig
	Kafka  KafkaConfig
}

// New builds the configured channel. The returned close function is never nil.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Channel, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", DriverNull:
		return Null{}, noop, nil
	case DriverRedis:
		ch, err := NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("channel ready", "driver", DriverRedis, "addr", cfg.Redis.Addr, "topic", cfg.Redis.Topic)
		return ch, ch.Close, nil
	case DriverKafka:
		ch, err := NewKafka(cfg.Kafka, logger)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("channel ready", "driver", DriverKafka, "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		return ch, ch.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown channel driver %q", cfg.Driver)
	}
}
