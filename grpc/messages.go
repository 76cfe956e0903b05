package grpc

import "dm-core/domain"

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}

type GetConversationRequest struct {
	ConversationID domain.ConversationID `json:"conversationId"`
}

type ConversationResponse struct {
	Conversation domain.Conversation `json:"conversation"`
}

type CreateOrGetConversationRequest struct {
	Participants []domain.UserID `json:"participants"`
}

type SendMessageRequest struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Content        string                `json:"content"`
}

type SendMessageResponse struct {
	Message domain.Message `json:"message"`
}

type ListUsersRequest struct{}

type SearchUsersRequest struct {
	Query string `json:"query"`
}

type UsersResponse struct {
	Users []domain.User `json:"users"`
}

type MeRequest struct{}

type MeResponse struct {
	User domain.User `json:"user"`
}

type SubscribeRequest struct{}
