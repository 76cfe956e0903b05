// Package http is the REST and websocket face of the service.
package http

import (
	"dm-core/auth"
	"dm-core/domain"
	"dm-core/errors"
	"dm-core/services"
	"dm-core/subscription"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Handler struct {
	log           *slog.Logger
	conversations services.IConversationService
	messages      services.IMessageService
	users         services.IUserService
	gateway       *subscription.Gateway
	socket        SocketConfig
}

func NewHandler(log *slog.Logger, conversations services.IConversationService, messages services.IMessageService,
	users services.IUserService, gateway *subscription.Gateway, socket SocketConfig) *Handler {
	return &Handler{
		log:           log,
		conversations: conversations,
		messages:      messages,
		users:         users,
		gateway:       gateway,
		socket:        socket.withDefaults(),
	}
}

type CreateConversationRequest struct {
	Participants []domain.UserID `json:"participants"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

// NewServer wires the routes, every one of them behind the bearer token middleware.
func NewServer(log *slog.Logger, authenticator *auth.Authenticator, h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api := e.Group("/api", auth.EchoMiddleware(authenticator))
	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations", h.CreateOrGetConversation)
	api.GET("/conversations/:id", h.GetConversation)
	api.POST("/conversations/:id/messages", h.SendMessage)
	api.GET("/users", h.ListUsers)
	api.GET("/users/search", h.SearchUsers)
	api.GET("/me", h.Me)

	e.GET("/ws", h.Subscribe, auth.EchoMiddleware(authenticator))
	return e
}

// httpError never leaks the text of an unmapped error.
func httpError(err error) error {
	code := errors.MapToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		return echo.NewHTTPError(code, "internal error")
	}
	return echo.NewHTTPError(code, err.Error())
}

func userID(c echo.Context) domain.UserID {
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) ListConversations(c echo.Context) error {
	summaries, err := h.conversations.ListConversations(c.Request().Context(), userID(c))
	if err != nil {
		return httpError(err)
	}
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}
	return c.JSON(http.StatusOK, summaries)
}

func (h *Handler) GetConversation(c echo.Context) error {
	conversation, err := h.conversations.GetConversation(c.Request().Context(), userID(c), domain.ConversationID(c.Param("id")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conversation)
}

func (h *Handler) CreateOrGetConversation(c echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	conversation, err := h.conversations.ResolveOrCreate(c.Request().Context(), userID(c), req.Participants)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conversation)
}

func (h *Handler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	message, err := h.messages.Send(c.Request().Context(), userID(c), domain.ConversationID(c.Param("id")), req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, message)
}

func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.users.ListUsers(c.Request().Context(), userID(c))
	if err != nil {
		return httpError(err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) SearchUsers(c echo.Context) error {
	users, err := h.users.SearchUsers(c.Request().Context(), userID(c), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) Me(c echo.Context) error {
	user, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no identity")
	}
	return c.JSON(http.StatusOK, user)
}
