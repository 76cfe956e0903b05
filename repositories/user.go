package repositories

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const userPrefix = "user:"

type UserRepository struct {
	db    *badger.DB
	log   *slog.Logger
	index IUserIndex
}

// NewUserRepository takes an optional index; without one SearchUsers falls back to a substring scan.
func NewUserRepository(db *badger.DB, log *slog.Logger, index IUserIndex) UserRepository {
	return UserRepository{db: db, log: log, index: index}
}

func userKey(id domain.UserID) []byte {
	return []byte(userPrefix + string(id))
}

// SaveUser upserts the user mirrored from the identity provider.
func (u UserRepository) SaveUser(_ context.Context, user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	if err = u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	}); err != nil {
		return err
	}
	if u.index != nil {
		if err = u.index.Index(user); err != nil {
			u.log.Warn("User not indexed", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (u UserRepository) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	users, err := u.GetUsers(ctx, []domain.UserID{id})
	if err != nil {
		return domain.User{}, err
	}
	return users[0], nil
}

func (u UserRepository) GetUsers(_ context.Context, ids []domain.UserID) ([]domain.User, error) {
	users := make([]domain.User, 0, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			user, err := getJSON[domain.User](txn, userKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
			}
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	return users, err
}

// ListUsers is ordered by name.
func (u UserRepository) ListUsers(_ context.Context) ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user domain.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &user)
			}); err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	sort.SliceStable(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, err
}

func (u UserRepository) SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if u.index == nil {
		return u.scanUsers(ctx, query, limit)
	}
	ids, err := u.index.Search(query, limit)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		user, err := u.GetUser(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			// index ahead of the store, skip
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (u UserRepository) scanUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	all, err := u.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var found []domain.User
	for _, user := range all {
		if limit > 0 && len(found) == limit {
			break
		}
		if strings.Contains(strings.ToLower(user.Name), needle) {
			found = append(found, user)
		}
	}
	return found, nil
}

// getJSON reads and decodes one value, returning badger.ErrKeyNotFound untouched.
func getJSON[T any](txn *badger.Txn, key []byte) (T, error) {
	var out T
	item, err := txn.Get(key)
	if err != nil {
		return out, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	return out, err
}
