// Package pubsub provides the topic-keyed bus used to fan chat events out to
// every live connection, in this process or any other.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

var ErrClosed = errors.New("broker closed")

// Broker publishes payloads to topics and hands out subscriptions.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns once the subscription is active; every payload
	// published afterwards is delivered to it.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription delivers the payloads published to one topic in publish order.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// ChatTopic names the topic carrying events for a chat.
func ChatTopic(chatID int) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// NewBroker connects to Redis when redisURL is set and falls back to an
// in-process broker otherwise.
func NewBroker(ctx context.Context, redisURL string, logger *slog.Logger) (Broker, error) {
	if redisURL == "" {
		logger.Info("pubsub using in-process broker", "reason", "empty redis url")
		return NewMemoryBroker(logger), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("pubsub connected to redis", "addr", opts.Addr)
	return NewRedisBroker(client, logger), nil
}

// Mode reports the broker implementation for logging.
func Mode(b Broker) string {
	switch b.(type) {
	case *RedisBroker:
		return "redis"
	case *MemoryBroker:
		return "memory"
	default:
		return "unknown"
	}
}
