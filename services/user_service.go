//go:generate go run go.uber.org/mock/mockgen -source=user_service.go -destination=../mocks/mock_user_service.go -package=mocks
package services

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"dm-core/repositories"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/lo"
)

const searchLimit = 10

type IUserService interface {
	// Ensure mirrors the identity provider profile into the local directory.
	Ensure(ctx context.Context, identity domain.User) (domain.User, error)
	ListUsers(ctx context.Context, requesterID domain.UserID) ([]domain.User, error)
	SearchUsers(ctx context.Context, requesterID domain.UserID, query string) ([]domain.User, error)
}

type UserService struct {
	log     *slog.Logger
	gateway repositories.IUserRepository
	mu      sync.RWMutex
	synced  map[domain.UserID]domain.User
}

func NewUserService(log *slog.Logger, gateway repositories.IUserRepository) *UserService {
	return &UserService{log: log, gateway: gateway, synced: make(map[domain.UserID]domain.User)}
}

// Ensure writes the profile only when it changed since the last call.
func (s *UserService) Ensure(ctx context.Context, identity domain.User) (domain.User, error) {
	if identity.ID == "" {
		return domain.User{}, fmt.Errorf("%w: no identity", errors.ErrUnauthorized)
	}
	s.mu.RLock()
	known, ok := s.synced[identity.ID]
	s.mu.RUnlock()
	if ok && (known == identity || identity.Name == "") {
		return known, nil
	}

	if identity.Name == "" {
		// token without profile, keep what the directory already knows
		if stored, err := s.gateway.GetUser(ctx, identity.ID); err == nil {
			identity = stored
		} else {
			identity.Name = string(identity.ID)
		}
	}
	if err := s.gateway.SaveUser(ctx, identity); err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	s.synced[identity.ID] = identity
	s.mu.Unlock()
	return identity, nil
}

func (s *UserService) ListUsers(ctx context.Context, requesterID domain.UserID) ([]domain.User, error) {
	users, err := s.gateway.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return withoutUser(users, requesterID), nil
}

// SearchUsers is a fuzzy lookup on display names.
func (s *UserService) SearchUsers(ctx context.Context, requesterID domain.UserID, query string) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", errors.ErrInvalidArgument)
	}
	users, err := s.gateway.SearchUsers(ctx, query, searchLimit+1)
	if err != nil {
		return nil, err
	}
	users = withoutUser(users, requesterID)
	if len(users) > searchLimit {
		users = users[:searchLimit]
	}
	return users, nil
}

func withoutUser(users []domain.User, id domain.UserID) []domain.User {
	return lo.Filter(users, func(u domain.User, _ int) bool { return u.ID != id })
}
