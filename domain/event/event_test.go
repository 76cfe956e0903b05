package event

import (
	"dm-core/domain"
	"dm-core/errors"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecode_Unknown_Kind(t *testing.T) {
	req := require.New(t)

	_, err := Decode(Envelope{Kind: "typing-started", Payload: json.RawMessage(`{}`)})

	req.ErrorIs(err, errors.ErrUnknownKind)
}

func TestDispatcher_Routes_By_Kind(t *testing.T) {
	req := require.New(t)
	message := domain.Message{ID: "m1", ConversationID: "c1", AuthorID: "u1", Content: "hej",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}

	var received []MessageCreated
	var presence []PresenceChanged
	dispatcher := NewDispatcher(silentLogger()).
		OnMessageCreated(func(e MessageCreated) { received = append(received, e) }).
		OnPresenceChanged(func(e PresenceChanged) { presence = append(presence, e) })

	// Given a known envelope and an unknown one
	known, err := Encode(MessageCreated{Message: message, AuthorID: "u1"})
	req.NoError(err)
	unknown := Envelope{Kind: "typing-started", Payload: json.RawMessage(`{"userId":"u1"}`)}

	// When both are dispatched
	req.True(dispatcher.Dispatch(known))
	req.False(dispatcher.Dispatch(unknown))

	// Then only the known one reached its handler
	req.Len(received, 1)
	req.Equal(message, received[0].Message)
	req.Equal(domain.UserID("u1"), received[0].AuthorID)
	req.Empty(presence)
}

func TestDispatcher_Malformed_Payload_Is_Dropped(t *testing.T) {
	req := require.New(t)
	called := false
	dispatcher := NewDispatcher(silentLogger()).
		OnPresenceChanged(func(PresenceChanged) { called = true })

	ok := dispatcher.Dispatch(Envelope{Kind: PresenceChangedKind, Payload: json.RawMessage(`{"count":"x"}`)})

	req.False(ok)
	req.False(called)
}
