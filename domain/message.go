// Package domain contains core concepts of the direct messaging system.
// This file defines Message entities and their ordering rules.
// Messages are immutable once stored.
package domain

import (
	"sort"
	"time"
)

type MessageID string

// Message is an append-only entry of a conversation.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversationId"`
	AuthorID       UserID         `json:"authorId"`
	Content        string         `json:"content"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Before orders by creation time, ties broken by identifier.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// SortMessages sorts in place, oldest first.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(messages[j])
	})
}

// Latest returns the most recent message or nil when empty.
func Latest(messages []Message) *Message {
	if len(messages) == 0 {
		return nil
	}
	latest := messages[0]
	for _, m := range messages[1:] {
		if latest.Before(m) {
			latest = m
		}
	}
	return &latest
}
