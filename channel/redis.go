package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisConfig points the channel at a redis pub/sub topic.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Topic    string
}

// Redis publishes envelopes on a redis pub/sub topic the host shell bridge subscribes to.
type Redis struct {
	client *redis.Client
	topic  string
	logger *slog.Logger
}

var _ Channel = (*Redis)(nil)

// NewRedis connects to redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("redis topic required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisFromClient(client, cfg.Topic, logger), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, topic string, logger *slog.Logger) *Redis {
	return &Redis{client: client, topic: topic, logger: logger}
}

func (r *Redis) Send(ctx context.Context, message string, data any) error {
	payload, err := NewEnvelope(message, data).Marshal()
	if err != nil {
		return err
	}
	receivers, err := r.client.Publish(ctx, r.topic, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", message, err)
	}
	if receivers == 0 {
		r.logger.Warn("channel message had no subscribers", "topic", r.topic, "message", message)
	}
	return nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
