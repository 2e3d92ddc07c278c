// Package relay republishes received chat messages to Redis pub/sub so other
// processes can consume a channel's chat without their own socket.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	glimesh "github.com/glimesh/glimesh-go-sdk"
)

// envelope wraps a chat message with the relaying instance and channel.
type envelope struct {
	InstanceID string              `json:"instance_id"`
	Channel    string              `json:"channel"`
	Message    glimesh.ChatMessage `json:"message"`
	ReceivedAt time.Time           `json:"received_at"`
}

// RedisSink publishes chat messages to "<prefix><channel>".
type RedisSink struct {
	client     *redis.Client
	prefix     string
	instanceID string
	logger     *slog.Logger
}

// NewRedisSink creates a sink. No connection is made until the first call.
func NewRedisSink(cfg *Config, logger *slog.Logger) *RedisSink {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisSink{
		client:     client,
		prefix:     cfg.Prefix,
		instanceID: uuid.New().String(),
		logger:     logger.With("component", "redis-relay"),
	}
}

// Ping checks that Redis is reachable.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Topic returns the Redis channel a Glimesh channel is published on.
func (s *RedisSink) Topic(channel string) string {
	return s.prefix + strings.ToLower(channel)
}

// Publish sends one chat message.
func (s *RedisSink) Publish(ctx context.Context, channel string, msg glimesh.ChatMessage) error {
	data, err := json.Marshal(envelope{
		InstanceID: s.instanceID,
		Channel:    channel,
		Message:    msg,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.Topic(channel), data).Err()
}

// Run publishes every message from messages until it is closed or ctx is
// done. Publish failures are logged and do not stop the relay.
func (s *RedisSink) Run(ctx context.Context, channel string, messages <-chan glimesh.ChatMessage) error {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := s.Publish(ctx, channel, msg); err != nil {
				s.logger.Error("relay publish failed", "channel", channel, "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the Redis connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
