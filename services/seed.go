package services

import (
	"context"
	"dm-core/domain"
	"log/slog"
)

// DemoUsers are the two accounts of the demo conversation.
var DemoUsers = []domain.User{
	{ID: "test1", Name: "test1"},
	{ID: "test2", Name: "test2"},
}

// Seed creates the demo users and their conversation, once.
func Seed(ctx context.Context, log *slog.Logger, users IUserService,
	conversations IConversationService, messages IMessageService) error {
	for _, user := range DemoUsers {
		if _, err := users.Ensure(ctx, user); err != nil {
			return err
		}
	}
	first, second := DemoUsers[0].ID, DemoUsers[1].ID

	conversation, err := conversations.ResolveOrCreate(ctx, first, []domain.UserID{second})
	if err != nil {
		return err
	}
	existing, err := conversations.GetConversation(ctx, first, conversation.ID)
	if err != nil {
		return err
	}
	if len(existing.Messages) > 0 {
		log.Debug("Demo conversation already seeded", "conversation_id", conversation.ID)
		return nil
	}

	if _, err = messages.Send(ctx, first, conversation.ID, "hej"); err != nil {
		return err
	}
	if _, err = messages.Send(ctx, second, conversation.ID, "hejsan"); err != nil {
		return err
	}
	log.Info("Demo data seeded", "conversation_id", conversation.ID)
	return nil
}
