// Package redisbus lets any server instance reach a client connected to any other instance.
// Publish goes through Redis; every instance runs a Relay that feeds its local registry.
package redisbus

import (
	"context"
	"dm-core/contract"
	"dm-core/domain/event"
	"dm-core/errors"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ChannelPattern matches every private channel.
const ChannelPattern = "user-*"

var _ contract.IChannelProvider = (*Bus)(nil)

type Bus struct {
	log    *slog.Logger
	client *redis.Client
	local  contract.IChannelProvider
}

// NewClient parses a redis:// URL and checks connectivity.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func NewBus(log *slog.Logger, client *redis.Client, local contract.IChannelProvider) *Bus {
	return &Bus{log: log, client: client, local: local}
}

// Publish is fire and forget: Redis pub/sub keeps nothing for absent subscribers.
func (b *Bus) Publish(ctx context.Context, channel string, env event.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", errors.ErrTransport, channel, err)
	}
	return nil
}

// Subscribe binds the sink on this instance once Redis is known to be reachable,
// otherwise the session would silently never receive anything.
func (b *Bus) Subscribe(ctx context.Context, channel string, sink contract.EventSink) (contract.Subscription, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", errors.ErrTransport, channel, err)
	}
	return b.local.Subscribe(ctx, channel, sink)
}
