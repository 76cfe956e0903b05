//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"dm-core/domain"
	"dm-core/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	if named, ok := w.(interface{ GetName() WorkerName }); ok && named.GetName() != "" {
		return string(named.GetName())
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives envelopes pushed on a channel.
// Consume must not block the publisher.
type EventSink interface {
	Consume(ctx context.Context, env event.Envelope) error
}

// Subscription is the binding between one channel and one sink.
type Subscription interface {
	Channel() string
	Close() error
}

// IChannelProvider is the real-time transport: at-most-once, no replay.
type IChannelProvider interface {
	Publish(ctx context.Context, channel string, env event.Envelope) error
	Subscribe(ctx context.Context, channel string, sink EventSink) (Subscription, error)
}

// IPublisher fans an event out to the private channel of each recipient.
// Publish never blocks the caller.
type IPublisher interface {
	Publish(conversationID domain.ConversationID, evt event.DomainEvent, recipients []domain.UserID)
}
