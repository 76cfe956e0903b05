package grpc

import (
	"context"
	"dm-core/auth"
	"dm-core/domain/event"
	"dm-core/errors"
	"dm-core/services"
	"dm-core/subscription"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

var _ DirectMessagesServer = (*Server)(nil)

// Server exposes the services to authenticated callers. The caller identity
// always comes from the interceptors, never from the request body.
type Server struct {
	log           *slog.Logger
	conversations services.IConversationService
	messages      services.IMessageService
	users         services.IUserService
	gateway       *subscription.Gateway
}

func NewServer(log *slog.Logger, conversations services.IConversationService, messages services.IMessageService,
	users services.IUserService, gateway *subscription.Gateway) *Server {
	return &Server{log: log, conversations: conversations, messages: messages, users: users, gateway: gateway}
}

// NewGRPCServer builds a grpc.Server with the auth interceptors and the service registered.
func NewGRPCServer(log *slog.Logger, authenticator *auth.Authenticator, srv DirectMessagesServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(log, authenticator)),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(log, authenticator)),
	)
	s := grpc.NewServer(opts...)
	RegisterDirectMessagesServer(s, srv)
	return s
}

// Stop closes every live subscription first, then drains in-flight calls for
// at most timeout before forcing the server down. It reports whether the drain completed.
func Stop(srv *grpc.Server, gateway *subscription.Gateway, timeout time.Duration) bool {
	if gateway != nil {
		gateway.CloseAll()
	}
	drained := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
		return true
	case <-time.After(timeout):
		srv.Stop()
		<-drained
		return false
	}
}

func (s *Server) ListConversations(ctx context.Context, _ *ListConversationsRequest) (*ListConversationsResponse, error) {
	summaries, err := s.conversations.ListConversations(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &ListConversationsResponse{Conversations: summaries}, nil
}

func (s *Server) GetConversation(ctx context.Context, req *GetConversationRequest) (*ConversationResponse, error) {
	conversation, err := s.conversations.GetConversation(ctx, auth.UserIDFromContext(ctx), req.ConversationID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &ConversationResponse{Conversation: conversation}, nil
}

func (s *Server) CreateOrGetConversation(ctx context.Context, req *CreateOrGetConversationRequest) (*ConversationResponse, error) {
	conversation, err := s.conversations.ResolveOrCreate(ctx, auth.UserIDFromContext(ctx), req.Participants)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &ConversationResponse{Conversation: conversation}, nil
}

// SendMessage returns once the message is durable. The author receives its
// own message on the subscribe stream like every other participant.
func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	message, err := s.messages.Send(ctx, auth.UserIDFromContext(ctx), req.ConversationID, req.Content)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &SendMessageResponse{Message: message}, nil
}

func (s *Server) ListUsers(ctx context.Context, _ *ListUsersRequest) (*UsersResponse, error) {
	users, err := s.users.ListUsers(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &UsersResponse{Users: users}, nil
}

func (s *Server) SearchUsers(ctx context.Context, req *SearchUsersRequest) (*UsersResponse, error) {
	users, err := s.users.SearchUsers(ctx, auth.UserIDFromContext(ctx), req.Query)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &UsersResponse{Users: users}, nil
}

func (s *Server) Me(ctx context.Context, _ *MeRequest) (*MeResponse, error) {
	user, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, errors.MapToGRPCError(fmt.Errorf("%w: no identity", errors.ErrUnauthorized))
	}
	return &MeResponse{User: user}, nil
}

// Subscribe holds one session for the lifetime of the stream.
// It blocks until the client goes away or the stream breaks, the session is
// released in every case.
func (s *Server) Subscribe(_ *SubscribeRequest, stream grpc.ServerStreamingServer[event.Envelope]) error {
	ctx := stream.Context()
	userID := auth.UserIDFromContext(ctx)
	session, err := s.gateway.Connect(ctx, userID)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	defer session.Close()

	if err := stream.SendHeader(metadata.Pairs(SubscriptionStateHeader, session.State().String())); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Subscriber disconnected", "user_id", userID)
			return nil
		case <-session.Done():
			return nil
		case env := <-session.Events():
			if err := stream.Send(&env); err != nil {
				s.log.Error("Failed to push event to stream", "user_id", userID, "kind", env.Kind, "error", err)
				return err
			}
		}
	}
}
