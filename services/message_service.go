//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"dm-core/contract"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/errors"
	"dm-core/observability"
	"dm-core/repositories"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type IMessageService interface {
	Send(ctx context.Context, authorID domain.UserID, conversationID domain.ConversationID, content string) (domain.Message, error)
}

// ICensor rewrites forbidden words, implemented by moderation.Moderator.
type ICensor interface {
	Censor(original string) string
}

type MessageService struct {
	log              *slog.Logger
	gateway          repositories.IGateway
	publisher        contract.IPublisher
	monitor          *observability.Monitor
	maxContentLength int
	censor           ICensor
	limiter          *SendLimiter
	clock            func() time.Time
}

type MessageOption func(*MessageService)

func WithCensor(censor ICensor) MessageOption {
	return func(s *MessageService) { s.censor = censor }
}

func WithSendLimiter(limiter *SendLimiter) MessageOption {
	return func(s *MessageService) { s.limiter = limiter }
}

func NewMessageService(log *slog.Logger, gateway repositories.IGateway, publisher contract.IPublisher,
	monitor *observability.Monitor, maxContentLength int, opts ...MessageOption) *MessageService {
	s := &MessageService{
		log:              log,
		gateway:          gateway,
		publisher:        publisher,
		monitor:          monitor,
		maxContentLength: maxContentLength,
		clock:            now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send persists the message then hands it to the fan-out publisher.
// A persistence failure aborts everything. Fan-out is best effort and
// never turns a stored message into a failed send.
func (s *MessageService) Send(ctx context.Context, authorID domain.UserID, conversationID domain.ConversationID, content string) (domain.Message, error) {
	// 1. Identity and content
	if authorID == "" {
		return domain.Message{}, fmt.Errorf("%w: no identity", errors.ErrUnauthorized)
	}
	cmd := domain.SendMessageCommand{
		AuthorID:       authorID,
		ConversationID: conversationID,
		Content:        strings.TrimSpace(content),
	}
	if err := validateStruct(cmd); err != nil {
		return domain.Message{}, err
	}
	if s.maxContentLength > 0 {
		if err := validate.Var(cmd.Content, fmt.Sprintf("max=%d", s.maxContentLength)); err != nil {
			return domain.Message{}, fmt.Errorf("%w: content longer than %d characters", errors.ErrInvalidArgument, s.maxContentLength)
		}
	}

	// 2. Membership
	conversation, err := s.gateway.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conversation.HasParticipant(authorID) {
		return domain.Message{}, fmt.Errorf("%w: %s is not a participant of %s", errors.ErrUnauthorized, authorID, conversationID)
	}

	// 3. Throttling and moderation
	if s.limiter != nil && !s.limiter.Allow(authorID) {
		return domain.Message{}, fmt.Errorf("%w: slow down", errors.ErrRateLimited)
	}
	if s.censor != nil {
		cmd.Content = s.censor.Censor(cmd.Content)
	}

	// 4. Durable write
	message := domain.Message{
		ID:             domain.MessageID(newID()),
		ConversationID: conversationID,
		AuthorID:       authorID,
		Content:        cmd.Content,
		CreatedAt:      s.clock(),
	}
	if err := s.gateway.StoreMessage(ctx, message); err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}
	s.monitor.IncrMessagesSent()

	// 5. Real-time push to every participant, the author included
	s.publisher.Publish(conversationID, event.MessageCreated{Message: message, AuthorID: authorID},
		conversation.ParticipantIDs())

	return message, nil
}
