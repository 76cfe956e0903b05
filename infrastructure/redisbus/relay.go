package redisbus

import (
	"context"
	"dm-core/contract"
	"dm-core/domain/event"
	"dm-core/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

var _ contract.Worker = (*Relay)(nil)

// Relay pattern-subscribes every private channel and republishes locally.
// It is meant to run under the supervisor, which restarts it when Redis drops.
type Relay struct {
	log       *slog.Logger
	client    *redis.Client
	local     contract.IChannelProvider
	ready     chan struct{}
	readyOnce sync.Once
}

func NewRelay(log *slog.Logger, client *redis.Client, local contract.IChannelProvider) *Relay {
	return &Relay{log: log, client: client, local: local, ready: make(chan struct{})}
}

// Ready is closed after the first confirmed subscription.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

func (r *Relay) GetName() contract.WorkerName {
	return "redis-relay"
}

func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, ChannelPattern)
	defer func() {
		_ = pubsub.Close()
	}()

	// Wait for the confirmation before declaring the relay ready
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: psubscribe: %v", errors.ErrTransport, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.log.Info("Redis relay subscribed", "pattern", ChannelPattern)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("%w: redis subscription closed", errors.ErrTransport)
			}
			var env event.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("Dropping malformed relay payload", "channel", msg.Channel, "error", err)
				continue
			}
			if err := r.local.Publish(ctx, msg.Channel, env); err != nil {
				r.log.Debug("Local delivery failed", "channel", msg.Channel, "error", err)
			}
		}
	}
}
