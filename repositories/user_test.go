package repositories

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_Get_And_List(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openBadger(t), silentLogger(), nil)

	req.NoError(repository.SaveUser(ctx, domain.User{ID: "u2", Name: "test2"}))
	req.NoError(repository.SaveUser(ctx, domain.User{ID: "u1", Name: "test1"}))

	user, err := repository.GetUser(ctx, "u1")
	req.NoError(err)
	req.Equal("test1", user.Name)

	_, err = repository.GetUsers(ctx, []domain.UserID{"u1", "ghost"})
	req.ErrorIs(err, errors.ErrNotFound)

	users, err := repository.ListUsers(ctx)
	req.NoError(err)
	req.Len(users, 2)
	req.Equal(domain.UserID("u1"), users[0].ID)
}

func TestUserRepository_Search_Without_Index(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewUserRepository(openBadger(t), silentLogger(), nil)
	req.NoError(repository.SaveUser(ctx, domain.User{ID: "u1", Name: "Alice Martin"}))
	req.NoError(repository.SaveUser(ctx, domain.User{ID: "u2", Name: "Bob"}))

	found, err := repository.SearchUsers(ctx, "mart", 10)
	req.NoError(err)
	req.Len(found, 1)
	req.Equal(domain.UserID("u1"), found[0].ID)

	found, err = repository.SearchUsers(ctx, "  ", 10)
	req.NoError(err)
	req.Empty(found)
}
