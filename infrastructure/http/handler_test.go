package http

import (
	"bytes"
	"context"
	"dm-core/auth"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/repositories"
	"dm-core/runtime"
	"dm-core/runtime/workers"
	"dm-core/services"
	"dm-core/subscription"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	server *httptest.Server
	tokens map[domain.UserID]string
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startAPI(t *testing.T) testAPI {
	t.Helper()
	log := silentLogger()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gateway := repositories.NewGateway(db, log, nil)
	provider := runtime.NewLocalProvider(log, runtime.NewRegistry())
	publisher := workers.NewFanoutPublisher(log, provider, nil, 2, 64, time.Second)
	supervisor := workers.NewSupervisor(log, 10*time.Millisecond)
	supervisor.Add(publisher.Workers()...)
	go supervisor.Run(context.Background())
	t.Cleanup(supervisor.Stop)

	users := services.NewUserService(log, gateway)
	issuer := auth.NewIssuer("test-secret", time.Hour)
	tokens := make(map[domain.UserID]string)
	for _, id := range []domain.UserID{"u1", "u2", "u3"} {
		token, err := issuer.Generate(domain.User{ID: id, Name: "user " + string(id)})
		require.NoError(t, err)
		tokens[id] = token
		_, err = users.Ensure(context.Background(), domain.User{ID: id, Name: "user " + string(id)})
		require.NoError(t, err)
	}

	handler := NewHandler(log,
		services.NewConversationService(log, gateway, nil),
		services.NewMessageService(log, gateway, publisher, nil, 1000),
		users,
		subscription.NewGateway(log, provider, nil, time.Second, 64),
		SocketConfig{PingPeriod: time.Second},
	)
	server := httptest.NewServer(NewServer(log, auth.NewAuthenticator(issuer, users), handler))
	t.Cleanup(server.Close)
	return testAPI{server: server, tokens: tokens}
}

func (a testAPI) do(t *testing.T, as domain.UserID, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	if as != "" {
		request.Header.Set("Authorization", "Bearer "+a.tokens[as])
	}
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	if out != nil && response.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(response.Body).Decode(out))
	}
	return response.StatusCode
}

func TestAPI_Direct_Message_Scenario(t *testing.T) {
	req := require.New(t)
	api := startAPI(t)

	// Given both sides resolving the pair
	var c1, same domain.Conversation
	req.Equal(http.StatusOK, api.do(t, "u1", http.MethodPost, "/api/conversations",
		CreateConversationRequest{Participants: []domain.UserID{"u2"}}, &c1))
	req.Equal(http.StatusOK, api.do(t, "u2", http.MethodPost, "/api/conversations",
		CreateConversationRequest{Participants: []domain.UserID{"u1"}}, &same))
	req.Equal(c1.ID, same.ID)

	// When they exchange two messages
	var sent domain.Message
	req.Equal(http.StatusCreated, api.do(t, "u1", http.MethodPost, "/api/conversations/"+string(c1.ID)+"/messages",
		SendMessageRequest{Content: "hej"}, &sent))
	req.Equal("hej", sent.Content)
	req.Equal(http.StatusCreated, api.do(t, "u2", http.MethodPost, "/api/conversations/"+string(c1.ID)+"/messages",
		SendMessageRequest{Content: "hejsan"}, nil))

	// Then the history is ordered
	var history domain.Conversation
	req.Equal(http.StatusOK, api.do(t, "u2", http.MethodGet, "/api/conversations/"+string(c1.ID), nil, &history))
	req.Len(history.Messages, 2)
	req.Equal("hej", history.Messages[0].Content)
	req.Equal("hejsan", history.Messages[1].Content)

	var summaries []domain.ConversationSummary
	req.Equal(http.StatusOK, api.do(t, "u1", http.MethodGet, "/api/conversations", nil, &summaries))
	req.Len(summaries, 1)
	req.Equal("hejsan", summaries[0].LastMessage.Content)
}

func TestAPI_Status_Codes(t *testing.T) {
	api := startAPI(t)
	var c1 domain.Conversation
	require.Equal(t, http.StatusOK, api.do(t, "u1", http.MethodPost, "/api/conversations",
		CreateConversationRequest{Participants: []domain.UserID{"u2"}}, &c1))

	tests := []struct {
		name   string
		as     domain.UserID
		method string
		path   string
		body   any
		code   int
	}{
		{name: "anonymous", method: http.MethodGet, path: "/api/conversations", code: http.StatusUnauthorized},
		{name: "outsider", as: "u3", method: http.MethodGet, path: "/api/conversations/" + string(c1.ID), code: http.StatusForbidden},
		{name: "empty content", as: "u1", method: http.MethodPost, path: "/api/conversations/" + string(c1.ID) + "/messages",
			body: SendMessageRequest{Content: " "}, code: http.StatusBadRequest},
		{name: "unknown participant", as: "u1", method: http.MethodPost, path: "/api/conversations",
			body: CreateConversationRequest{Participants: []domain.UserID{"ghost"}}, code: http.StatusNotFound},
		{name: "no participants", as: "u1", method: http.MethodPost, path: "/api/conversations",
			body: CreateConversationRequest{}, code: http.StatusBadRequest},
		{name: "empty search", as: "u1", method: http.MethodGet, path: "/api/users/search?q=", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.code, api.do(t, tt.as, tt.method, tt.path, tt.body, nil))
		})
	}
}

func TestAPI_Users(t *testing.T) {
	req := require.New(t)
	api := startAPI(t)

	var me domain.User
	req.Equal(http.StatusOK, api.do(t, "u1", http.MethodGet, "/api/me", nil, &me))
	req.Equal("user u1", me.Name)

	var users []domain.User
	req.Equal(http.StatusOK, api.do(t, "u1", http.MethodGet, "/api/users", nil, &users))
	req.Len(users, 2)

	var found []domain.User
	req.Equal(http.StatusOK, api.do(t, "u1", http.MethodGet, "/api/users/search?q=u3", nil, &found))
	req.Len(found, 1)
	req.Equal(domain.UserID("u3"), found[0].ID)
}

func TestAPI_Websocket_Push(t *testing.T) {
	req := require.New(t)
	api := startAPI(t)
	var c1 domain.Conversation
	req.Equal(http.StatusOK, api.do(t, "u1", http.MethodPost, "/api/conversations",
		CreateConversationRequest{Participants: []domain.UserID{"u2"}}, &c1))

	// Given u2 connected on the websocket
	url := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/ws?token=" + api.tokens["u2"]
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	defer ws.Close()

	// When u1 sends a message
	req.Equal(http.StatusCreated, api.do(t, "u1", http.MethodPost, "/api/conversations/"+string(c1.ID)+"/messages",
		SendMessageRequest{Content: "hej"}, nil))

	// Then u2 gets it pushed, after its own presence notification
	req.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		var env event.Envelope
		req.NoError(ws.ReadJSON(&env))
		if env.Kind != event.MessageCreatedKind {
			continue
		}
		evt, err := event.Decode(env)
		req.NoError(err)
		created := evt.(event.MessageCreated)
		req.Equal("hej", created.Message.Content)
		req.Equal(domain.UserID("u1"), created.AuthorID)
		return
	}
}

func TestAPI_Websocket_Rejects_Anonymous(t *testing.T) {
	api := startAPI(t)
	url := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/ws"
	_, response, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, response.StatusCode)
}
