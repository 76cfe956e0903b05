// Package projection holds the client side derived state built from fan-out events.
// Reducers are pure: they never mutate the state they receive.
package projection

import (
	"dm-core/domain"
	"dm-core/domain/event"
	"maps"
	"sort"
)

// ConversationList caches one summary per conversation for the list view,
// whichever conversation is currently open.
type ConversationList struct {
	Owner   domain.UserID
	entries map[domain.ConversationID]domain.ConversationSummary
}

func NewConversationList(owner domain.UserID) ConversationList {
	return ConversationList{Owner: owner, entries: map[domain.ConversationID]domain.ConversationSummary{}}
}

// Reduce applies one event. Own echoes update the preview like any other message.
// Unknown kinds leave the state untouched.
func Reduce(state ConversationList, evt event.DomainEvent) ConversationList {
	switch e := evt.(type) {
	case event.MessageCreated:
		message := e.Message
		summary, ok := state.entries[message.ConversationID]
		if !ok {
			// participants arrive with the next fetch
			summary = domain.ConversationSummary{ID: message.ConversationID, CreatedAt: message.CreatedAt}
		}
		if summary.LastMessage != nil && !summary.LastMessage.Before(message) {
			return state
		}
		summary.LastMessage = &message
		return state.with(summary)
	case event.ConversationCreated:
		summary := e.Conversation
		if existing, ok := state.entries[summary.ID]; ok {
			summary.LastMessage = newest(existing.LastMessage, summary.LastMessage)
		}
		return state.with(summary)
	default:
		return state
	}
}

// Reconcile replaces the optimistic state with an authoritative fetch, keeping
// a cached last message when it is newer than the fetched one.
func Reconcile(state ConversationList, fetched []domain.ConversationSummary) ConversationList {
	next := NewConversationList(state.Owner)
	for _, summary := range fetched {
		if cached, ok := state.entries[summary.ID]; ok {
			summary.LastMessage = newest(cached.LastMessage, summary.LastMessage)
		}
		next.entries[summary.ID] = summary
	}
	return next
}

func (s ConversationList) Get(id domain.ConversationID) (domain.ConversationSummary, bool) {
	summary, ok := s.entries[id]
	return summary, ok
}

func (s ConversationList) Len() int {
	return len(s.entries)
}

// Sorted returns the most recently active conversations first.
func (s ConversationList) Sorted() []domain.ConversationSummary {
	out := make([]domain.ConversationSummary, 0, len(s.entries))
	for _, summary := range s.entries {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastActivity(), out[j].LastActivity()
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s ConversationList) with(summary domain.ConversationSummary) ConversationList {
	entries := maps.Clone(s.entries)
	if entries == nil {
		entries = map[domain.ConversationID]domain.ConversationSummary{}
	}
	entries[summary.ID] = summary
	return ConversationList{Owner: s.Owner, entries: entries}
}

func newest(a, b *domain.Message) *domain.Message {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return a
	default:
		return b
	}
}
