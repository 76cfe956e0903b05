package repositories

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

var _ IGateway = Gateway{}

// Gateway is the Badger backed persistence gateway.
type Gateway struct {
	UserRepository
	ConversationRepository
	MessageRepository
}

func NewGateway(db *badger.DB, log *slog.Logger, index IUserIndex) Gateway {
	return Gateway{
		UserRepository:         NewUserRepository(db, log, index),
		ConversationRepository: NewConversationRepository(db, log),
		MessageRepository:      NewMessageRepository(db, log),
	}
}
