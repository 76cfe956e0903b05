package repositories

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	conversationPrefix = "conv:"
	participantSetKey  = "convset:"
	participantPrefix  = "part:"
)

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

// DiskConversation is the stored form; messages live under their own keys.
type DiskConversation struct {
	ID             domain.ConversationID `json:"id"`
	CreatedAt      time.Time             `json:"createdAt"`
	ParticipantIDs []domain.UserID       `json:"participants"`
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte(conversationPrefix + string(id))
}

func participantKey(userID domain.UserID, id domain.ConversationID) []byte {
	return append(userParticipationPrefix(userID), id...)
}

// userParticipationPrefix length prefixes the user id: "part:a:" must not match user "a:b".
func userParticipationPrefix(userID domain.UserID) []byte {
	return []byte(participantPrefix + domain.LengthPrefixed(string(userID)) + ":")
}

// CreateConversation writes, in one serializable transaction:
//  1. "conv:{id}" the conversation itself,
//  2. "convset:{participant key}" the uniqueness marker of the exact participant set,
//  3. "part:{len}:{user}:{id}" one membership index per participant.
//
// Two concurrent creations of the same set both read the missing marker,
// badger rejects the second commit with ErrConflict.
func (c ConversationRepository) CreateConversation(ctx context.Context, conversation domain.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	disk := DiskConversation{
		ID:             conversation.ID,
		CreatedAt:      conversation.CreatedAt,
		ParticipantIDs: conversation.ParticipantIDs(),
	}
	data, err := json.Marshal(disk)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	setKey := []byte(participantSetKey + conversation.Key())

	err = c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(setKey); err == nil {
			return fmt.Errorf("%w: participant set already has a conversation", errors.ErrConflict)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(conversationKey(conversation.ID), data); err != nil {
			return err
		}
		if err := txn.Set(setKey, []byte(conversation.ID)); err != nil {
			return err
		}
		for _, userID := range disk.ParticipantIDs {
			if err := txn.Set(participantKey(userID, conversation.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: concurrent creation of the same participant set", errors.ErrConflict)
	}
	return err
}

func (c ConversationRepository) GetConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		disk, err := getJSON[DiskConversation](txn, conversationKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		conversation = toConversation(disk)
		return nil
	})
	return conversation, err
}

// ListConversations scans the "part:{len}:{user}:" index.
func (c ConversationRepository) ListConversations(_ context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		ids := conversationIDsOf(txn, userID)
		for _, id := range ids {
			disk, err := getJSON[DiskConversation](txn, conversationKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				c.log.Warn("Dangling participant index", "user_id", userID, "conversation_id", id)
				continue
			}
			if err != nil {
				return err
			}
			conversations = append(conversations, toConversation(disk))
		}
		return nil
	})
	return conversations, err
}

// FindConversationsWithin keeps the conversations of the members of set
// whose participants are all inside set.
func (c ConversationRepository) FindConversationsWithin(ctx context.Context, set []domain.UserID) ([]domain.Conversation, error) {
	inSet := lo.SliceToMap(set, func(id domain.UserID) (domain.UserID, struct{}) { return id, struct{}{} })
	seen := make(map[domain.ConversationID]struct{})
	var found []domain.Conversation

	for _, userID := range set {
		conversations, err := c.ListConversations(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, conversation := range conversations {
			if _, ok := seen[conversation.ID]; ok {
				continue
			}
			seen[conversation.ID] = struct{}{}
			all := lo.EveryBy(conversation.ParticipantIDs(), func(id domain.UserID) bool {
				_, ok := inSet[id]
				return ok
			})
			if all {
				found = append(found, conversation)
			}
		}
	}
	return found, nil
}

func conversationIDsOf(txn *badger.Txn, userID domain.UserID) []domain.ConversationID {
	prefix := userParticipationPrefix(userID)
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	var ids []domain.ConversationID
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, domain.ConversationID(it.Item().Key()[len(prefix):]))
	}
	return ids
}

func toConversation(disk DiskConversation) domain.Conversation {
	return domain.Conversation{
		ID:        disk.ID,
		CreatedAt: disk.CreatedAt,
		Participants: lo.Map(disk.ParticipantIDs, func(id domain.UserID, _ int) domain.Participant {
			return domain.Participant{ConversationID: disk.ID, UserID: id}
		}),
	}
}
