//go:generate go run go.uber.org/mock/mockgen -source=conversation_service.go -destination=../mocks/mock_conversation_service.go -package=mocks
package services

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"dm-core/observability"
	"dm-core/repositories"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
)

// maxResolveAttempts bounds the re-read loop after a lost creation race.
const maxResolveAttempts = 3

type IConversationService interface {
	ResolveOrCreate(ctx context.Context, requesterID domain.UserID, targets []domain.UserID) (domain.Conversation, error)
	ListConversations(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error)
	GetConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) (domain.Conversation, error)
}

type ConversationService struct {
	log     *slog.Logger
	gateway repositories.IGateway
	monitor *observability.Monitor
	clock   func() time.Time
}

func NewConversationService(log *slog.Logger, gateway repositories.IGateway, monitor *observability.Monitor) *ConversationService {
	return &ConversationService{log: log, gateway: gateway, monitor: monitor, clock: now}
}

// ResolveOrCreate returns the conversation of the exact participant set
// targets ∪ {requester}, creating it on first use. No event is published.
func (s *ConversationService) ResolveOrCreate(ctx context.Context, requesterID domain.UserID, targets []domain.UserID) (domain.Conversation, error) {
	// 1. Identity and input
	if requesterID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: no identity", errors.ErrUnauthorized)
	}
	if err := validateStruct(domain.ResolveConversationCommand{RequesterID: requesterID, Participants: targets}); err != nil {
		return domain.Conversation{}, err
	}

	// 2. Every target must be a known user, the requester must be provisioned
	if _, err := s.gateway.GetUsers(ctx, lo.Uniq(targets)); err != nil {
		return domain.Conversation{}, err
	}
	if _, err := s.gateway.GetUser(ctx, requesterID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return domain.Conversation{}, fmt.Errorf("%w: unknown identity %s", errors.ErrUnauthorized, requesterID)
		}
		return domain.Conversation{}, err
	}

	set := domain.ParticipantSet(requesterID, targets)
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		// 3. Exact match among the candidates
		existing, found, err := s.findExact(ctx, set)
		if err != nil {
			return domain.Conversation{}, err
		}
		if found {
			return existing, nil
		}

		// 4. Create, a lost race re-reads and converges on the winner
		conversation := s.newConversation(set)
		err = s.gateway.CreateConversation(ctx, conversation)
		if err == nil {
			s.monitor.IncrConversationsCreated()
			s.log.Debug("Conversation created", "conversation_id", conversation.ID, "participants", len(set))
			return conversation, nil
		}
		if !errors.Is(err, errors.ErrConflict) {
			return domain.Conversation{}, err
		}
		s.log.Debug("Concurrent conversation creation, converging", "attempt", attempt)
	}
	return domain.Conversation{}, fmt.Errorf("%w: participant set still contended", errors.ErrConflict)
}

// findExact keeps candidates of the same cardinality as set: with every
// participant inside set, equal size means equal sets.
func (s *ConversationService) findExact(ctx context.Context, set []domain.UserID) (domain.Conversation, bool, error) {
	candidates, err := s.gateway.FindConversationsWithin(ctx, set)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	exact := lo.Filter(candidates, func(c domain.Conversation, _ int) bool {
		return len(lo.Uniq(c.ParticipantIDs())) == len(set)
	})
	if len(exact) > 1 {
		s.log.Warn("Duplicate conversations for one participant set", "count", len(exact))
	}
	winner, ok := domain.Earliest(exact)
	return winner, ok, nil
}

func (s *ConversationService) newConversation(set []domain.UserID) domain.Conversation {
	id := domain.ConversationID(newID())
	return domain.Conversation{
		ID:        id,
		CreatedAt: s.clock(),
		Participants: lo.Map(set, func(userID domain.UserID, _ int) domain.Participant {
			return domain.Participant{ConversationID: id, UserID: userID}
		}),
	}
}

// ListConversations builds summaries, most recent activity first.
// Participants exclude the viewer.
func (s *ConversationService) ListConversations(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: no identity", errors.ErrUnauthorized)
	}
	conversations, err := s.gateway.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	profiles := make(map[domain.UserID]domain.User)
	profile := func(id domain.UserID) (domain.User, error) {
		if user, ok := profiles[id]; ok {
			return user, nil
		}
		user, err := s.gateway.GetUser(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			user, err = domain.User{ID: id}, nil
		}
		if err != nil {
			return domain.User{}, err
		}
		profiles[id] = user
		return user, nil
	}

	summaries := make([]domain.ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		summary := domain.ConversationSummary{ID: conversation.ID, CreatedAt: conversation.CreatedAt}
		for _, participantID := range conversation.ParticipantIDs() {
			if participantID == userID {
				continue
			}
			user, err := profile(participantID)
			if err != nil {
				return nil, err
			}
			summary.Participants = append(summary.Participants, user)
		}
		if summary.LastMessage, err = s.gateway.GetLastMessage(ctx, conversation.ID); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastActivity(), summaries[j].LastActivity()
		if !a.Equal(b) {
			return a.After(b)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// GetConversation returns the full ordered history to a participant.
func (s *ConversationService) GetConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) (domain.Conversation, error) {
	if userID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: no identity", errors.ErrUnauthorized)
	}
	conversation, err := s.gateway.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conversation.HasParticipant(userID) {
		return domain.Conversation{}, fmt.Errorf("%w: %s is not a participant of %s", errors.ErrUnauthorized, userID, id)
	}
	messages, err := s.gateway.GetMessages(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	domain.SortMessages(messages)
	conversation.Messages = messages
	return conversation, nil
}
