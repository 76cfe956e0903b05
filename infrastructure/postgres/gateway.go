package postgres

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"dm-core/repositories"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

var _ repositories.IGateway = (*Gateway)(nil)

// Gateway is the relational persistence gateway.
type Gateway struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewGateway(log *slog.Logger, pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool, log: log}
}

func toStrings[T ~string](ids []T) []string {
	return lo.Map(ids, func(id T, _ int) string { return string(id) })
}

func (g *Gateway) SaveUser(ctx context.Context, user domain.User) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO users (id, name, image) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, image = EXCLUDED.image`,
		string(user.ID), user.Name, user.Image)
	return err
}

func (g *Gateway) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	users, err := g.GetUsers(ctx, []domain.UserID{id})
	if err != nil {
		return domain.User{}, err
	}
	return users[0], nil
}

func (g *Gateway) GetUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	found, err := g.queryUsers(ctx, `SELECT id, name, image FROM users WHERE id = ANY($1)`, toStrings(ids))
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(found, func(u domain.User) domain.UserID { return u.ID })
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		user, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
		}
		users = append(users, user)
	}
	return users, nil
}

func (g *Gateway) ListUsers(ctx context.Context) ([]domain.User, error) {
	return g.queryUsers(ctx, `SELECT id, name, image FROM users ORDER BY name`)
}

func (g *Gateway) SearchUsers(ctx context.Context, query string, limit int) ([]domain.User, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	// strpos matches the query literally, % and _ included
	return g.queryUsers(ctx, `
		SELECT id, name, image FROM users
		WHERE strpos(lower(name), lower($1)) > 0
		ORDER BY name LIMIT $2`, query, limit)
}

func (g *Gateway) queryUsers(ctx context.Context, sql string, args ...any) ([]domain.User, error) {
	rows, err := g.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var id, name, image string
		if err := rows.Scan(&id, &name, &image); err != nil {
			return nil, err
		}
		users = append(users, domain.User{ID: domain.UserID(id), Name: name, Image: image})
	}
	return users, rows.Err()
}

// CreateConversation relies on the unique participant_key: a concurrent
// creator of the same set waits on the first transaction then inserts nothing.
func (g *Gateway) CreateConversation(ctx context.Context, conversation domain.Conversation) error {
	return pgx.BeginFunc(ctx, g.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, created_at, participant_key) VALUES ($1, $2, $3)
			ON CONFLICT (participant_key) DO NOTHING`,
			string(conversation.ID), conversation.CreatedAt, conversation.Key())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: participant set already has a conversation", errors.ErrConflict)
		}
		for _, userID := range conversation.ParticipantIDs() {
			if _, err := tx.Exec(ctx,
				`INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2)`,
				string(conversation.ID), string(userID)); err != nil {
				return err
			}
		}
		return nil
	})
}

const conversationColumns = `
	SELECT c.id, c.created_at, array_agg(p.user_id ORDER BY p.user_id)
	FROM conversations c JOIN participants p ON p.conversation_id = c.id`

func (g *Gateway) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	conversations, err := g.queryConversations(ctx,
		conversationColumns+` WHERE c.id = $1 GROUP BY c.id, c.created_at`, string(id))
	if err != nil {
		return domain.Conversation{}, err
	}
	if len(conversations) == 0 {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	return conversations[0], nil
}

func (g *Gateway) ListConversations(ctx context.Context, userID domain.UserID) ([]domain.Conversation, error) {
	return g.queryConversations(ctx, conversationColumns+`
		WHERE c.id IN (SELECT conversation_id FROM participants WHERE user_id = $1)
		GROUP BY c.id, c.created_at
		ORDER BY c.created_at, c.id`, string(userID))
}

func (g *Gateway) FindConversationsWithin(ctx context.Context, set []domain.UserID) ([]domain.Conversation, error) {
	return g.queryConversations(ctx, conversationColumns+`
		WHERE c.id IN (SELECT conversation_id FROM participants WHERE user_id = ANY($1))
		GROUP BY c.id, c.created_at
		HAVING bool_and(p.user_id = ANY($1))
		ORDER BY c.created_at, c.id`, toStrings(set))
}

func (g *Gateway) queryConversations(ctx context.Context, sql string, args ...any) ([]domain.Conversation, error) {
	rows, err := g.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []domain.Conversation
	for rows.Next() {
		var (
			id           string
			createdAt    time.Time
			participants []string
		)
		if err := rows.Scan(&id, &createdAt, &participants); err != nil {
			return nil, err
		}
		conversationID := domain.ConversationID(id)
		conversations = append(conversations, domain.Conversation{
			ID:        conversationID,
			CreatedAt: createdAt.UTC(),
			Participants: lo.Map(participants, func(userID string, _ int) domain.Participant {
				return domain.Participant{ConversationID: conversationID, UserID: domain.UserID(userID)}
			}),
		})
	}
	return conversations, rows.Err()
}

func (g *Gateway) StoreMessage(ctx context.Context, message domain.Message) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, author_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(message.ID), string(message.ConversationID), string(message.AuthorID),
		message.Content, message.CreatedAt)
	return err
}

func (g *Gateway) GetMessages(ctx context.Context, conversationID domain.ConversationID) ([]domain.Message, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, conversation_id, author_id, content, created_at FROM messages
		WHERE conversation_id = $1 ORDER BY created_at, id`, string(conversationID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (g *Gateway) GetLastMessage(ctx context.Context, conversationID domain.ConversationID) (*domain.Message, error) {
	row := g.pool.QueryRow(ctx, `
		SELECT id, conversation_id, author_id, content, created_at FROM messages
		WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, string(conversationID))
	message, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		id, conversationID, authorID, content string
		createdAt                             time.Time
	)
	if err := row.Scan(&id, &conversationID, &authorID, &content, &createdAt); err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             domain.MessageID(id),
		ConversationID: domain.ConversationID(conversationID),
		AuthorID:       domain.UserID(authorID),
		Content:        content,
		CreatedAt:      createdAt.UTC(),
	}, nil
}
