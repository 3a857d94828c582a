package events

import (
	"context"
	"encoding/json"
	"fmt"

	"fund-session-engine/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, store.Event) {}

// RedisPublisher publishes events as JSON on a per-node channel,
// "<prefix>:node:<id>".
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher connects to the redis instance at url and verifies it
// answers a PING.
func NewRedisPublisher(ctx context.Context, url, prefix string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}

	zap.L().Info("Redis event publisher connected", zap.String("addr", opts.Addr), zap.String("prefix", prefix))
	return &RedisPublisher{client: client, prefix: prefix}, nil
}

// Channel names the channel carrying a node's events.
func Channel(prefix string, nodeId int64) string {
	return fmt.Sprintf("%s:node:%d", prefix, nodeId)
}

func (p *RedisPublisher) Publish(ctx context.Context, event store.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		zap.L().Warn("Failed to encode event", zap.String("kind", event.Kind), zap.Error(err))
		return
	}

	channel := Channel(p.prefix, event.NodeId)
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		zap.L().Warn("Failed to publish event",
			zap.String("channel", channel),
			zap.String("kind", event.Kind),
			zap.Error(err))
	}
}

// Subscribe listens on a node's channel until ctx is done, handing each
// decoded event to fn.
func (p *RedisPublisher) Subscribe(ctx context.Context, nodeId int64, fn func(store.Event)) error {
	sub := p.client.Subscribe(ctx, Channel(p.prefix, nodeId))
	defer func() {
		if err := sub.Close(); err != nil {
			zap.L().Warn("Failed to close subscription", zap.Error(err))
		}
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("unable to subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event store.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				zap.L().Warn("Dropping undecodable event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			fn(event)
		}
	}
}

func (p *RedisPublisher) Close() {
	if err := p.client.Close(); err != nil {
		zap.L().Warn("Failed to close redis client", zap.Error(err))
	}
}
