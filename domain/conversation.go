package domain

import (
	"time"

	"github.com/samber/lo"
)

type ConversationID string

// Conversation is a thread between an exact, fixed set of participants.
// Messages is only populated when the full history was requested.
type Conversation struct {
	ID           ConversationID `json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	Participants []Participant  `json:"participants"`
	Messages     []Message      `json:"messages,omitempty"`
}

func (c Conversation) ParticipantIDs() []UserID {
	return lo.Map(c.Participants, func(p Participant, _ int) UserID { return p.UserID })
}

func (c Conversation) HasParticipant(userID UserID) bool {
	return lo.ContainsBy(c.Participants, func(p Participant) bool { return p.UserID == userID })
}

func (c Conversation) Key() string {
	return ParticipantKey(c.ParticipantIDs())
}

// Before orders by creation time, ties broken by identifier.
func (c Conversation) Before(other Conversation) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// Earliest picks the convergence winner among duplicates.
func Earliest(conversations []Conversation) (Conversation, bool) {
	if len(conversations) == 0 {
		return Conversation{}, false
	}
	return lo.MinBy(conversations, func(a, b Conversation) bool { return a.Before(b) }), true
}

// ConversationSummary is derived for list rendering and never persisted.
// Participants excludes the viewer.
type ConversationSummary struct {
	ID           ConversationID `json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	Participants []User         `json:"participants"`
	LastMessage  *Message       `json:"lastMessage,omitempty"`
}

// LastActivity is the last message time, or the creation time for an empty conversation.
func (s ConversationSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}
