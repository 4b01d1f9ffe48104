package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broadcaster fans permission invalidations out to other gateway instances
type Broadcaster interface {
	// Publish announces that the sessions of userIDs are stale
	Publish(ctx context.Context, userIDs []int64) error
	// Subscribe delivers remote invalidations to handler until ctx is done
	Subscribe(ctx context.Context, handler func(userIDs []int64)) error
	Close() error
}

// NoopBroadcaster is used when the gateway runs as a single instance
type NoopBroadcaster struct{}

// Publish implements Broadcaster
func (NoopBroadcaster) Publish(ctx context.Context, userIDs []int64) error {
	return nil
}

// Subscribe blocks until ctx is done
func (NoopBroadcaster) Subscribe(ctx context.Context, handler func(userIDs []int64)) error {
	<-ctx.Done()
	return nil
}

// Close implements Broadcaster
func (NoopBroadcaster) Close() error {
	return nil
}

// invalidationMessage is the payload published on the invalidation channel
type invalidationMessage struct {
	Origin  string  `json:"origin"`
	UserIDs []int64 `json:"user_ids"`
}

// RedisBroadcaster publishes invalidations over a Redis pub/sub channel.
// Messages published by this instance are ignored on receipt.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRedisBroadcaster creates a broadcaster on channel
func NewRedisBroadcaster(client *redis.Client, channel string, logger *zap.Logger) *RedisBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Publish implements Broadcaster
func (b *RedisBroadcaster) Publish(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(invalidationMessage{Origin: b.origin, UserIDs: userIDs})
	if err != nil {
		return fmt.Errorf("failed to encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Subscribe implements Broadcaster
func (b *RedisBroadcaster) Subscribe(ctx context.Context, handler func(userIDs []int64)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.logger.Info("listening for permission invalidations", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m invalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Warn("dropping malformed invalidation", zap.Error(err))
				continue
			}
			if m.Origin == b.origin {
				continue
			}
			handler(m.UserIDs)
		}
	}
}

// Close implements Broadcaster
func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
