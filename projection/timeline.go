package projection

import (
	"dm-core/domain"
	"dm-core/domain/event"
	"sort"
)

// Timeline is the view of the open conversation. Messages are kept ordered
// and unique by id, so the author's own echo never shows twice.
type Timeline struct {
	Owner          domain.UserID
	ConversationID domain.ConversationID
	Messages       []domain.Message
	seen           map[domain.MessageID]struct{}
}

func NewTimeline(owner domain.UserID, conversationID domain.ConversationID) *Timeline {
	return &Timeline{Owner: owner, ConversationID: conversationID, seen: make(map[domain.MessageID]struct{})}
}

// Load resets the view to a fetched history.
func (t *Timeline) Load(history []domain.Message) {
	t.Messages = nil
	t.seen = make(map[domain.MessageID]struct{}, len(history))
	for _, message := range history {
		t.Add(message)
	}
}

// Add inserts a message of this conversation, reporting whether it was new.
func (t *Timeline) Add(message domain.Message) bool {
	if message.ConversationID != t.ConversationID {
		return false
	}
	if _, ok := t.seen[message.ID]; ok {
		return false
	}
	t.seen[message.ID] = struct{}{}
	i := sort.Search(len(t.Messages), func(i int) bool { return message.Before(t.Messages[i]) })
	t.Messages = append(t.Messages, domain.Message{})
	copy(t.Messages[i+1:], t.Messages[i:])
	t.Messages[i] = message
	return true
}

func (t *Timeline) Consume(e event.DomainEvent) bool {
	if evt, ok := e.(event.MessageCreated); ok {
		return t.Add(evt.Message)
	}
	return false
}
