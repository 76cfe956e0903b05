package repositories

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newConversation(id domain.ConversationID, at time.Time, users ...domain.UserID) domain.Conversation {
	conversation := domain.Conversation{ID: id, CreatedAt: at}
	for _, u := range users {
		conversation.Participants = append(conversation.Participants, domain.Participant{ConversationID: id, UserID: u})
	}
	return conversation
}

func TestConversationRepository_Create_And_Get(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewConversationRepository(openBadger(t), silentLogger())
	at := time.Now().UTC().Truncate(time.Millisecond)

	req.NoError(repository.CreateConversation(ctx, newConversation("c1", at, "u1", "u2")))

	conversation, err := repository.GetConversation(ctx, "c1")
	req.NoError(err)
	req.True(conversation.CreatedAt.Equal(at))
	req.ElementsMatch([]domain.UserID{"u1", "u2"}, conversation.ParticipantIDs())

	_, err = repository.GetConversation(ctx, "missing")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestConversationRepository_Same_Set_Conflicts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewConversationRepository(openBadger(t), silentLogger())
	at := time.Now().UTC()

	// Given a conversation between u1 and u2
	req.NoError(repository.CreateConversation(ctx, newConversation("c1", at, "u1", "u2")))

	// When the same set is created again in another order
	err := repository.CreateConversation(ctx, newConversation("c2", at, "u2", "u1"))

	// Then it is rejected and nothing leaked
	req.ErrorIs(err, errors.ErrConflict)
	_, err = repository.GetConversation(ctx, "c2")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestConversationRepository_Concurrent_Creates_Single_Winner(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewConversationRepository(openBadger(t), silentLogger())
	at := time.Now().UTC()
	const attempts = 16

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.ConversationID(fmt.Sprintf("c%d", i))
			results <- repository.CreateConversation(ctx, newConversation(id, at, "u1", "u2", "u3"))
		}(i)
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		req.ErrorIs(err, errors.ErrConflict)
	}
	req.Equal(1, created)

	found, err := repository.FindConversationsWithin(ctx, []domain.UserID{"u1", "u2", "u3"})
	req.NoError(err)
	req.Len(found, 1)
}

func TestConversationRepository_Find_Within(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewConversationRepository(openBadger(t), silentLogger())
	at := time.Now().UTC()

	req.NoError(repository.CreateConversation(ctx, newConversation("c12", at, "u1", "u2")))
	req.NoError(repository.CreateConversation(ctx, newConversation("c123", at, "u1", "u2", "u3")))
	req.NoError(repository.CreateConversation(ctx, newConversation("c14", at, "u1", "u4")))
	req.NoError(repository.CreateConversation(ctx, newConversation("c1", at, "u1")))

	// When looking inside {u1,u2}
	found, err := repository.FindConversationsWithin(ctx, []domain.UserID{"u1", "u2"})
	req.NoError(err)

	// Then only subsets of {u1,u2} come back, each once
	ids := make([]domain.ConversationID, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.ID)
	}
	req.ElementsMatch([]domain.ConversationID{"c12", "c1"}, ids)

	listed, err := repository.ListConversations(ctx, "u1")
	req.NoError(err)
	req.Len(listed, 4)
}
