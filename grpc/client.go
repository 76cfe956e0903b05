package grpc

import (
	"context"
	"dm-core/auth"
	"dm-core/domain"
	"dm-core/domain/event"
	"dm-core/errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is the typed client of the DirectMessages service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects with a bearer token attached to every call.
func Dial(target, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(auth.TokenCredentials{Token: token, Insecure: true}),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Req, Resp any](ctx context.Context, c *Client, method string, in *Req) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, errors.FromGRPCError(err)
	}
	return out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	out, err := invoke[ListConversationsRequest, ListConversationsResponse](ctx, c, ListConversationsFullMethodName, &ListConversationsRequest{})
	if err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	out, err := invoke[GetConversationRequest, ConversationResponse](ctx, c, GetConversationFullMethodName,
		&GetConversationRequest{ConversationID: id})
	if err != nil {
		return domain.Conversation{}, err
	}
	return out.Conversation, nil
}

func (c *Client) CreateOrGetConversation(ctx context.Context, participants ...domain.UserID) (domain.Conversation, error) {
	out, err := invoke[CreateOrGetConversationRequest, ConversationResponse](ctx, c, CreateOrGetConversationFullMethodName,
		&CreateOrGetConversationRequest{Participants: participants})
	if err != nil {
		return domain.Conversation{}, err
	}
	return out.Conversation, nil
}

func (c *Client) SendMessage(ctx context.Context, id domain.ConversationID, content string) (domain.Message, error) {
	out, err := invoke[SendMessageRequest, SendMessageResponse](ctx, c, SendMessageFullMethodName,
		&SendMessageRequest{ConversationID: id, Content: content})
	if err != nil {
		return domain.Message{}, err
	}
	return out.Message, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	out, err := invoke[ListUsersRequest, UsersResponse](ctx, c, ListUsersFullMethodName, &ListUsersRequest{})
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	out, err := invoke[SearchUsersRequest, UsersResponse](ctx, c, SearchUsersFullMethodName, &SearchUsersRequest{Query: query})
	if err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) Me(ctx context.Context) (domain.User, error) {
	out, err := invoke[MeRequest, MeResponse](ctx, c, MeFullMethodName, &MeRequest{})
	if err != nil {
		return domain.User{}, err
	}
	return out.User, nil
}

// Stream is a subscribed event stream.
type Stream struct {
	stream grpc.ServerStreamingClient[event.Envelope]
}

// Subscribe returns once the server confirmed the subscription, so anything
// published afterwards is delivered on the stream.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	cs, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeFullMethodName)
	if err != nil {
		return nil, errors.FromGRPCError(err)
	}
	stream := &grpc.GenericClientStream[SubscribeRequest, event.Envelope]{ClientStream: cs}
	if err := stream.SendMsg(&SubscribeRequest{}); err != nil {
		return nil, errors.FromGRPCError(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errors.FromGRPCError(err)
	}
	header, err := stream.Header()
	if err != nil {
		return nil, errors.FromGRPCError(err)
	}
	if len(header.Get(SubscriptionStateHeader)) == 0 {
		// the stream ended before subscribing, surface its status
		_, err := stream.Recv()
		return nil, errors.FromGRPCError(err)
	}
	return &Stream{stream: stream}, nil
}

// Recv blocks for the next envelope.
func (s *Stream) Recv() (event.Envelope, error) {
	env, err := s.stream.Recv()
	if err != nil {
		return event.Envelope{}, errors.FromGRPCError(err)
	}
	return *env, nil
}
