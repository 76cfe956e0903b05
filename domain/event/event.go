// Package event defines what travels on a private channel.
// Events are encoded into an Envelope tagged by kind so that receivers
// can ignore kinds they do not know.
package event

import (
	"dm-core/domain"
	"dm-core/errors"
	"encoding/json"
	"fmt"
)

type Kind string

const (
	MessageCreatedKind      Kind = "message-created"
	ConversationCreatedKind Kind = "conversation-created"
	PresenceChangedKind     Kind = "presence-changed"
)

type DomainEvent interface {
	Kind() Kind
}

// MessageCreated is published to every participant, the author included.
// AuthorID lets a receiver recognise its own echo.
type MessageCreated struct {
	Message  domain.Message `json:"message"`
	AuthorID domain.UserID  `json:"authorId"`
}

func (MessageCreated) Kind() Kind { return MessageCreatedKind }

// ConversationCreated only feeds client side reducers, the resolver never publishes it.
type ConversationCreated struct {
	Conversation domain.ConversationSummary `json:"conversation"`
}

func (ConversationCreated) Kind() Kind { return ConversationCreatedKind }

// PresenceChanged carries the number of live sessions of a user.
type PresenceChanged struct {
	UserID domain.UserID `json:"userId"`
	Count  int           `json:"count"`
}

func (PresenceChanged) Kind() Kind { return PresenceChangedKind }

// Envelope is the wire form shared by every transport.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(e DomainEvent) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", e.Kind(), err)
	}
	return Envelope{Kind: e.Kind(), Payload: payload}, nil
}

// Decode returns ErrUnknownKind for kinds this build does not know.
func Decode(env Envelope) (DomainEvent, error) {
	var (
		evt DomainEvent
		err error
	)
	switch env.Kind {
	case MessageCreatedKind:
		var e MessageCreated
		err = json.Unmarshal(env.Payload, &e)
		evt = e
	case ConversationCreatedKind:
		var e ConversationCreated
		err = json.Unmarshal(env.Payload, &e)
		evt = e
	case PresenceChangedKind:
		var e PresenceChanged
		err = json.Unmarshal(env.Payload, &e)
		evt = e
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return evt, nil
}
