package runtime

import (
	"dm-core/contract"
	"sync"
)

// SubscriptionID distinguishes several sessions of the same user on one channel.
type SubscriptionID uint64

type Set map[SubscriptionID]contract.EventSink

// Registry is the only shared mutable state of the delivery path.
// It must never be held across a persistence call or a sink delivery.
type Registry struct {
	mu       sync.RWMutex
	next     SubscriptionID
	channels map[string]Set // map channel -> subscribers
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Set)}
}

// GetSinks returns a snapshot of the subscribers of a channel.
// The snapshot is safe to iterate without the lock.
// Returns nil if nobody listens.
func (r *Registry) GetSinks(channel string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channels[channel]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(members))
	for _, sink := range members {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Subscribe binds a sink to a channel, creating the channel on the fly.
func (r *Registry) Subscribe(channel string, sink contract.EventSink) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	if _, ok := r.channels[channel]; !ok {
		r.channels[channel] = make(Set)
	}
	r.channels[channel][id] = sink
	return id
}

// Unsubscribe releases one binding and drops the channel once it is empty
// so the map stays bounded by the number of connected users.
func (r *Registry) Unsubscribe(channel string, id SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.channels[channel]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

// Count is the number of live bindings on a channel.
func (r *Registry) Count(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Channels is the number of channels with at least one binding.
func (r *Registry) Channels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
