package search

import (
	"context"
	"dm-core/domain"
	"dm-core/repositories"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"
)

const (
	nameField     = "name"
	idField       = "_id"
	fuzziness     = 1
	defaultLimit  = 10
	maxQueryTerms = 5
)

var _ repositories.IUserIndex = (*UserIndex)(nil)

// UserIndex is a bluge full-text index over user display names.
type UserIndex struct {
	log    *slog.Logger
	mu     sync.Mutex
	writer *bluge.Writer
}

func NewUserIndex(log *slog.Logger, writer *bluge.Writer) *UserIndex {
	return &UserIndex{log: log, writer: writer}
}

// OpenUserIndex opens an on-disk index, or an in-memory one when path is empty.
func OpenUserIndex(log *slog.Logger, path string) (*UserIndex, error) {
	config := bluge.InMemoryOnlyConfig()
	if path != "" {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, fmt.Errorf("bluge opening failed: %w", err)
	}
	return NewUserIndex(log, writer), nil
}

// Index upserts the user document keyed by its id.
func (u *UserIndex) Index(user domain.User) error {
	doc := bluge.NewDocument(string(user.ID)).
		AddField(bluge.NewTextField(nameField, user.Name).StoreValue())

	u.mu.Lock()
	defer u.mu.Unlock()
	return u.writer.Update(doc.ID(), doc)
}

// Search matches every query term either as a prefix or within one edit.
func (u *UserIndex) Search(query string, limit int) ([]domain.UserID, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	if len(terms) > maxQueryTerms {
		terms = terms[:maxQueryTerms]
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	q := bluge.NewBooleanQuery()
	for _, term := range terms {
		q.AddShould(
			bluge.NewPrefixQuery(term).SetField(nameField),
			bluge.NewFuzzyQuery(term).SetField(nameField).SetFuzziness(fuzziness),
		)
	}
	q.SetMinShould(1)

	reader, err := u.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	matches, err := reader.Search(context.Background(), bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var ids []domain.UserID
	match, err := matches.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == idField {
				ids = append(ids, domain.UserID(value))
				return false
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	u.log.Debug("User search", "query", query, "hits", len(ids))
	return ids, nil
}

func (u *UserIndex) Close() error {
	return u.writer.Close()
}
