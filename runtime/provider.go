package runtime

import (
	"context"
	"dm-core/contract"
	"dm-core/domain/event"
	"log/slog"
	"sync"
)

var _ contract.IChannelProvider = (*LocalProvider)(nil)

// LocalProvider is an in-process channel provider.
// Delivery is at-most-once to the sinks bound at publish time, nothing is buffered for later.
type LocalProvider struct {
	log      *slog.Logger
	registry *Registry
}

func NewLocalProvider(log *slog.Logger, registry *Registry) *LocalProvider {
	return &LocalProvider{log: log, registry: registry}
}

// Publish hands the envelope to every current subscriber.
// The registry lock is released before any sink is called.
func (p *LocalProvider) Publish(ctx context.Context, channel string, env event.Envelope) error {
	for _, sink := range p.registry.GetSinks(channel) {
		if err := sink.Consume(ctx, env); err != nil {
			p.log.Debug("Sink refused event", "channel", channel, "kind", env.Kind, "error", err)
		}
	}
	return nil
}

func (p *LocalProvider) Subscribe(ctx context.Context, channel string, sink contract.EventSink) (contract.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := p.registry.Subscribe(channel, sink)
	return &localSubscription{registry: p.registry, channel: channel, id: id}, nil
}

// Registry exposes the bindings, used by presence counting.
func (p *LocalProvider) Registry() *Registry {
	return p.registry
}

type localSubscription struct {
	once     sync.Once
	registry *Registry
	channel  string
	id       SubscriptionID
}

func (s *localSubscription) Channel() string { return s.channel }

// Close is idempotent.
func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.registry.Unsubscribe(s.channel, s.id)
	})
	return nil
}
