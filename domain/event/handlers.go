package event

import (
	"dm-core/errors"
	"log/slog"
	"sync"
)

// Dispatcher demultiplexes envelopes into typed handlers.
// Unknown kinds are ignored so older clients survive newer servers.
type Dispatcher struct {
	log               *slog.Logger
	mu                sync.RWMutex
	onMessage         []func(MessageCreated)
	onConversation    []func(ConversationCreated)
	onPresenceChanged []func(PresenceChanged)
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

func (d *Dispatcher) OnMessageCreated(fn func(MessageCreated)) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = append(d.onMessage, fn)
	return d
}

func (d *Dispatcher) OnConversationCreated(fn func(ConversationCreated)) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onConversation = append(d.onConversation, fn)
	return d
}

func (d *Dispatcher) OnPresenceChanged(fn func(PresenceChanged)) *Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPresenceChanged = append(d.onPresenceChanged, fn)
	return d
}

// Dispatch returns false when the envelope was ignored.
func (d *Dispatcher) Dispatch(env Envelope) bool {
	evt, err := Decode(env)
	if err != nil {
		if errors.Is(err, errors.ErrUnknownKind) {
			d.log.Debug("Ignoring unknown event kind", "kind", env.Kind)
		} else {
			d.log.Warn("Dropping malformed event", "kind", env.Kind, "error", err)
		}
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	switch e := evt.(type) {
	case MessageCreated:
		for _, fn := range d.onMessage {
			fn(e)
		}
	case ConversationCreated:
		for _, fn := range d.onConversation {
			fn(e)
		}
	case PresenceChanged:
		for _, fn := range d.onPresenceChanged {
			fn(e)
		}
	}
	return true
}
