package services

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"dm-core/mocks"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestConversationService_ResolveOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("set-equal calls resolve to the same conversation", func(t *testing.T) {
		req := require.New(t)
		svc := NewConversationService(silentLogger(), badgerGateway(t), nil)

		c1, err := svc.ResolveOrCreate(ctx, "u1", []domain.UserID{"u2", "u3"})
		req.NoError(err)
		c2, err := svc.ResolveOrCreate(ctx, "u3", []domain.UserID{"u1", "u2"})
		req.NoError(err)
		c3, err := svc.ResolveOrCreate(ctx, "u2", []domain.UserID{"u3", "u1", "u2"})
		req.NoError(err)

		req.Equal(c1.ID, c2.ID)
		req.Equal(c1.ID, c3.ID)
		req.ElementsMatch([]domain.UserID{"u1", "u2", "u3"}, c2.ParticipantIDs())
	})

	t.Run("sets differing by one member stay distinct", func(t *testing.T) {
		req := require.New(t)
		svc := NewConversationService(silentLogger(), badgerGateway(t), nil)

		pair, err := svc.ResolveOrCreate(ctx, "u1", []domain.UserID{"u2"})
		req.NoError(err)
		trio, err := svc.ResolveOrCreate(ctx, "u1", []domain.UserID{"u2", "u3"})
		req.NoError(err)
		other, err := svc.ResolveOrCreate(ctx, "u1", []domain.UserID{"u3"})
		req.NoError(err)

		req.NotEqual(pair.ID, trio.ID)
		req.NotEqual(pair.ID, other.ID)
		req.NotEqual(trio.ID, other.ID)
	})

	t.Run("ids containing key separators stay distinct", func(t *testing.T) {
		req := require.New(t)
		gateway := badgerGateway(t)
		users := NewUserService(silentLogger(), gateway)
		for _, id := range []domain.UserID{"a", "a,b", "c", "b,c", "a:b"} {
			_, err := users.Ensure(ctx, domain.User{ID: id, Name: "user " + string(id)})
			req.NoError(err)
		}
		svc := NewConversationService(silentLogger(), gateway, nil)

		// Given {"a,b","c"} and {"a","b,c"}, whose plain joins collide
		left, err := svc.ResolveOrCreate(ctx, "c", []domain.UserID{"a,b"})
		req.NoError(err)
		right, err := svc.ResolveOrCreate(ctx, "a", []domain.UserID{"b,c"})
		req.NoError(err)
		req.NotEqual(left.ID, right.ID)

		// And a user "a:b" whose membership keys share a prefix with "a"
		colon, err := svc.ResolveOrCreate(ctx, "a:b", []domain.UserID{"c"})
		req.NoError(err)

		// Then "a" only sees its own conversation
		summaries, err := svc.ListConversations(ctx, "a")
		req.NoError(err)
		req.Len(summaries, 1)
		req.Equal(right.ID, summaries[0].ID)

		// And resolving again returns the stored conversations
		again, err := svc.ResolveOrCreate(ctx, "b,c", []domain.UserID{"a"})
		req.NoError(err)
		req.Equal(right.ID, again.ID)
		again, err = svc.ResolveOrCreate(ctx, "c", []domain.UserID{"a:b"})
		req.NoError(err)
		req.Equal(colon.ID, again.ID)
	})

	t.Run("errors", func(t *testing.T) {
		svc := NewConversationService(silentLogger(), badgerGateway(t), nil)

		_, err := svc.ResolveOrCreate(ctx, "", []domain.UserID{"u2"})
		require.ErrorIs(t, err, errors.ErrUnauthorized)

		_, err = svc.ResolveOrCreate(ctx, "u1", nil)
		require.ErrorIs(t, err, errors.ErrInvalidArgument)

		_, err = svc.ResolveOrCreate(ctx, "u1", []domain.UserID{"ghost"})
		require.ErrorIs(t, err, errors.ErrNotFound)

		_, err = svc.ResolveOrCreate(ctx, "stranger", []domain.UserID{"u1"})
		require.ErrorIs(t, err, errors.ErrUnauthorized)
	})
}

func TestConversationService_Concurrent_Resolve_Same_Set(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gateway := badgerGateway(t)
	svc := NewConversationService(silentLogger(), gateway, nil)
	const callers = 20

	// Given many participants resolving the same set at once, from both sides
	var wg sync.WaitGroup
	ids := make(chan domain.ConversationID, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester, target := domain.UserID("u1"), domain.UserID("u2")
			if i%2 == 1 {
				requester, target = target, requester
			}
			c, err := svc.ResolveOrCreate(ctx, requester, []domain.UserID{target})
			if err != nil {
				errs <- err
				return
			}
			ids <- c.ID
		}(i)
	}
	wg.Wait()
	close(ids)
	close(errs)

	// Then nobody saw an error and everybody got the same conversation
	for err := range errs {
		req.NoError(err)
	}
	var first domain.ConversationID
	for id := range ids {
		if first == "" {
			first = id
		}
		req.Equal(first, id)
	}
	stored, err := gateway.FindConversationsWithin(ctx, []domain.UserID{"u1", "u2"})
	req.NoError(err)
	req.Len(stored, 1)
}

func TestConversationService_Converges_After_Conflict(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockIGateway(ctrl)
	svc := NewConversationService(silentLogger(), gateway, nil)
	at := time.Now().UTC()

	winner := domain.Conversation{ID: "a", CreatedAt: at, Participants: []domain.Participant{
		{ConversationID: "a", UserID: "u1"}, {ConversationID: "a", UserID: "u2"}}}
	later := domain.Conversation{ID: "b", CreatedAt: at.Add(time.Second), Participants: []domain.Participant{
		{ConversationID: "b", UserID: "u1"}, {ConversationID: "b", UserID: "u2"}}}
	solo := domain.Conversation{ID: "0", CreatedAt: at.Add(-time.Hour), Participants: []domain.Participant{
		{ConversationID: "0", UserID: "u1"}}}

	gateway.EXPECT().GetUsers(gomock.Any(), []domain.UserID{"u2"}).Return([]domain.User{{ID: "u2"}}, nil)
	gateway.EXPECT().GetUser(gomock.Any(), domain.UserID("u1")).Return(domain.User{ID: "u1"}, nil)
	gomock.InOrder(
		// Given nothing exists at first read
		gateway.EXPECT().FindConversationsWithin(gomock.Any(), []domain.UserID{"u1", "u2"}).Return(nil, nil),
		// And another writer wins the creation
		gateway.EXPECT().CreateConversation(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("%w: taken", errors.ErrConflict)),
		// When re-reading, two duplicates and a subset show up
		gateway.EXPECT().FindConversationsWithin(gomock.Any(), []domain.UserID{"u1", "u2"}).
			Return([]domain.Conversation{later, solo, winner}, nil),
	)

	conversation, err := svc.ResolveOrCreate(ctx, "u1", []domain.UserID{"u2"})

	// Then the conflict is not surfaced and the earliest exact match wins
	req.NoError(err)
	req.Equal(domain.ConversationID("a"), conversation.ID)
}

func TestConversationService_List_And_Get(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gateway := badgerGateway(t)
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockIPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	conversations := NewConversationService(silentLogger(), gateway, nil)
	messages := NewMessageService(silentLogger(), gateway, publisher, nil, 0)

	quiet, err := conversations.ResolveOrCreate(ctx, "u1", []domain.UserID{"u3"})
	req.NoError(err)
	busy, err := conversations.ResolveOrCreate(ctx, "u1", []domain.UserID{"u2"})
	req.NoError(err)
	_, err = messages.Send(ctx, "u2", busy.ID, "  hej  ")
	req.NoError(err)

	// When u1 lists its conversations
	summaries, err := conversations.ListConversations(ctx, "u1")
	req.NoError(err)

	// Then the active one comes first with its preview and without u1 itself
	req.Len(summaries, 2)
	req.Equal(busy.ID, summaries[0].ID)
	req.Equal("hej", summaries[0].LastMessage.Content)
	req.Len(summaries[0].Participants, 1)
	req.Equal(domain.UserID("u2"), summaries[0].Participants[0].ID)
	req.Equal("user u2", summaries[0].Participants[0].Name)
	req.Equal(quiet.ID, summaries[1].ID)
	req.Nil(summaries[1].LastMessage)

	// And a non participant cannot read the history
	_, err = conversations.GetConversation(ctx, "u4", busy.ID)
	req.ErrorIs(err, errors.ErrUnauthorized)
	_, err = conversations.GetConversation(ctx, "u1", "missing")
	req.ErrorIs(err, errors.ErrNotFound)
}
