package grpc

import (
	"context"
	"dm-core/domain/event"

	"google.golang.org/grpc"
)

const ServiceName = "dm.v1.DirectMessages"

const (
	ListConversationsFullMethodName       = "/" + ServiceName + "/ListConversations"
	GetConversationFullMethodName         = "/" + ServiceName + "/GetConversation"
	CreateOrGetConversationFullMethodName = "/" + ServiceName + "/CreateOrGetConversation"
	SendMessageFullMethodName             = "/" + ServiceName + "/SendMessage"
	ListUsersFullMethodName               = "/" + ServiceName + "/ListUsers"
	SearchUsersFullMethodName             = "/" + ServiceName + "/SearchUsers"
	MeFullMethodName                      = "/" + ServiceName + "/Me"
	SubscribeFullMethodName               = "/" + ServiceName + "/Subscribe"
)

// SubscriptionStateHeader is sent once the session is Subscribed, before any event.
const SubscriptionStateHeader = "x-subscription-state"

type DirectMessagesServer interface {
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetConversation(context.Context, *GetConversationRequest) (*ConversationResponse, error)
	CreateOrGetConversation(context.Context, *CreateOrGetConversationRequest) (*ConversationResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	ListUsers(context.Context, *ListUsersRequest) (*UsersResponse, error)
	SearchUsers(context.Context, *SearchUsersRequest) (*UsersResponse, error)
	Me(context.Context, *MeRequest) (*MeResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[event.Envelope]) error
}

func RegisterDirectMessagesServer(s grpc.ServiceRegistrar, srv DirectMessagesServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds the method handler a protoc plugin would generate.
func unary[Req, Resp any](fullMethod string,
	call func(DirectMessagesServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DirectMessagesServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DirectMessagesServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DirectMessagesServer).Subscribe(in, &grpc.GenericServerStream[SubscribeRequest, event.Envelope]{ServerStream: stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DirectMessagesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListConversations", Handler: unary(ListConversationsFullMethodName, DirectMessagesServer.ListConversations)},
		{MethodName: "GetConversation", Handler: unary(GetConversationFullMethodName, DirectMessagesServer.GetConversation)},
		{MethodName: "CreateOrGetConversation", Handler: unary(CreateOrGetConversationFullMethodName, DirectMessagesServer.CreateOrGetConversation)},
		{MethodName: "SendMessage", Handler: unary(SendMessageFullMethodName, DirectMessagesServer.SendMessage)},
		{MethodName: "ListUsers", Handler: unary(ListUsersFullMethodName, DirectMessagesServer.ListUsers)},
		{MethodName: "SearchUsers", Handler: unary(SearchUsersFullMethodName, DirectMessagesServer.SearchUsers)},
		{MethodName: "Me", Handler: unary(MeFullMethodName, DirectMessagesServer.Me)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "dm/v1/direct_messages",
}
