//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks
package repositories

import (
	"context"
	"dm-core/domain"
)

// IUserRepository is the read side of the identity provider plus the local user directory.
type IUserRepository interface {
	SaveUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	// GetUsers fails with ErrNotFound naming the first unknown id.
	GetUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error)
}

type IConversationRepository interface {
	// FindConversationsWithin returns conversations whose every participant belongs to set.
	// Callers still filter on the participant count for exact equality.
	FindConversationsWithin(ctx context.Context, set []domain.UserID) ([]domain.Conversation, error)
	// CreateConversation stores the conversation and its participants atomically.
	// It fails with ErrConflict when a conversation with the same participant set exists.
	CreateConversation(ctx context.Context, conversation domain.Conversation) error
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	ListConversations(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error)
}

type IMessageRepository interface {
	StoreMessage(ctx context.Context, message domain.Message) error
	// GetMessages is ordered by creation time, ties broken by id.
	GetMessages(ctx context.Context, conversationID domain.ConversationID) ([]domain.Message, error)
	GetLastMessage(ctx context.Context, conversationID domain.ConversationID) (*domain.Message, error)
}

// IGateway is the whole persistence surface consumed by the services.
type IGateway interface {
	IUserRepository
	IConversationRepository
	IMessageRepository
}

// IUserIndex backs fuzzy user lookup.
type IUserIndex interface {
	Index(user domain.User) error
	Search(query string, limit int) ([]domain.UserID, error)
}
