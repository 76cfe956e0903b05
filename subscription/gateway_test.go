package subscription

import (
	"context"
	"dm-core/contract"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/errors"
	"dm-core/mocks"
	"dm-core/runtime"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localGateway() (*Gateway, *runtime.LocalProvider) {
	provider := runtime.NewLocalProvider(silentLogger(), runtime.NewRegistry())
	return NewGateway(silentLogger(), provider, nil, time.Second, 16), provider
}

func next(t *testing.T, session *Session) event.DomainEvent {
	t.Helper()
	select {
	case env := <-session.Events():
		evt, err := event.Decode(env)
		require.NoError(t, err)
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func none(t *testing.T, session *Session) {
	t.Helper()
	select {
	case env := <-session.Events():
		t.Fatalf("unexpected event %s", env.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func publishMessage(t *testing.T, provider contract.IChannelProvider, to domain.UserID, content string) {
	t.Helper()
	env, err := event.Encode(event.MessageCreated{
		Message:  domain.Message{ID: domain.MessageID(content), ConversationID: "c1", AuthorID: "u1", Content: content},
		AuthorID: "u1",
	})
	require.NoError(t, err)
	require.NoError(t, provider.Publish(context.Background(), domain.ChannelName(to), env))
}

func TestGateway_Connect_Receives_Live_Events(t *testing.T) {
	req := require.New(t)
	gateway, provider := localGateway()

	// Given a connected session
	session, err := gateway.Connect(context.Background(), "u2")
	req.NoError(err)
	defer session.Close()
	req.Equal(Subscribed, session.State())
	req.Equal("user-u2", session.Channel())
	req.Equal(event.PresenceChanged{UserID: "u2", Count: 1}, next(t, session))

	// When a message is published on its channel
	publishMessage(t, provider, "u2", "hej")

	// Then it arrives, while other channels stay silent
	created, ok := next(t, session).(event.MessageCreated)
	req.True(ok)
	req.Equal("hej", created.Message.Content)
	publishMessage(t, provider, "u3", "not yours")
	none(t, session)
}

func TestGateway_Reconnect_Has_No_Replay(t *testing.T) {
	req := require.New(t)
	gateway, provider := localGateway()

	first, err := gateway.Connect(context.Background(), "u2")
	req.NoError(err)
	req.NoError(first.Close())
	req.NoError(first.Close())
	req.Equal(Disconnected, first.State())
	req.Equal(0, provider.Registry().Count("user-u2"))

	// Given a message published while disconnected
	publishMessage(t, provider, "u2", "missed")

	// When reconnecting
	second, err := gateway.Connect(context.Background(), "u2")
	req.NoError(err)
	defer second.Close()

	// Then only events after the new subscription show up
	req.Equal(event.PresenceChanged{UserID: "u2", Count: 1}, next(t, second))
	none(t, second)
	publishMessage(t, provider, "u2", "live")
	req.Equal("live", next(t, second).(event.MessageCreated).Message.Content)
}

func TestGateway_Presence_Across_Sessions(t *testing.T) {
	req := require.New(t)
	gateway, _ := localGateway()
	ctx := context.Background()

	laptop, err := gateway.Connect(ctx, "u1")
	req.NoError(err)
	defer laptop.Close()
	req.Equal(event.PresenceChanged{UserID: "u1", Count: 1}, next(t, laptop))

	phone, err := gateway.Connect(ctx, "u1")
	req.NoError(err)
	req.Equal(2, gateway.Online("u1"))
	req.Equal(event.PresenceChanged{UserID: "u1", Count: 2}, next(t, laptop))
	req.Equal(event.PresenceChanged{UserID: "u1", Count: 2}, next(t, phone))

	req.NoError(phone.Close())
	req.Equal(event.PresenceChanged{UserID: "u1", Count: 1}, next(t, laptop))
	req.Equal(1, gateway.Online("u1"))

	select {
	case <-phone.Done():
	default:
		t.Fatal("closed session should be done")
	}
}

func TestGateway_Connect_Failures(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		gateway, _ := localGateway()
		_, err := gateway.Connect(context.Background(), "")
		require.ErrorIs(t, err, errors.ErrUnauthorized)
	})

	t.Run("provider error becomes transport error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockIChannelProvider(ctrl)
		provider.EXPECT().Subscribe(gomock.Any(), "user-u1", gomock.Any()).
			Return(nil, fmt.Errorf("connection refused"))
		gateway := NewGateway(silentLogger(), provider, nil, time.Second, 4)

		_, err := gateway.Connect(context.Background(), "u1")
		require.ErrorIs(t, err, errors.ErrTransport)
		require.Zero(t, gateway.Online("u1"))
	})

	t.Run("unconfirmed subscription times out", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockIChannelProvider(ctrl)
		subscription := mocks.NewMockSubscription(ctrl)
		release := make(chan struct{})
		released := make(chan struct{})

		// Given a provider that confirms long after the deadline
		provider.EXPECT().Subscribe(gomock.Any(), "user-u1", gomock.Any()).
			DoAndReturn(func(context.Context, string, contract.EventSink) (contract.Subscription, error) {
				<-release
				return subscription, nil
			})
		subscription.EXPECT().Close().DoAndReturn(func() error {
			close(released)
			return nil
		})
		gateway := NewGateway(silentLogger(), provider, nil, 20*time.Millisecond, 4)

		// When connecting
		_, err := gateway.Connect(context.Background(), "u1")

		// Then the caller gets a transport error and the late binding is released
		req.ErrorIs(err, errors.ErrTransport)
		close(release)
		select {
		case <-released:
		case <-time.After(time.Second):
			t.Fatal("late subscription was not released")
		}
	})
}

func TestGateway_CloseAll(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gateway, provider := localGateway()

	// Given two live sessions of different users
	first, err := gateway.Connect(ctx, "u1")
	req.NoError(err)
	second, err := gateway.Connect(ctx, "u2")
	req.NoError(err)

	// When the gateway shuts down
	gateway.CloseAll()

	// Then every session is done and released
	for _, session := range []*Session{first, second} {
		select {
		case <-session.Done():
		case <-time.After(time.Second):
			req.FailNow("session still open after CloseAll")
		}
		req.Equal(Disconnected, session.State())
	}
	req.Equal(0, gateway.Online("u1"))
	req.Equal(0, gateway.Online("u2"))

	// And nothing is delivered anymore
	for len(first.Events()) > 0 {
		<-first.Events()
	}
	publishMessage(t, provider, "u1", "late")
	none(t, first)

	// And new sessions are refused
	_, err = gateway.Connect(ctx, "u1")
	req.ErrorIs(err, errors.ErrTransport)

	// Closing twice is harmless
	gateway.CloseAll()
	req.NoError(first.Close())
}
