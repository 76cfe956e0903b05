package domain

// ResolveConversationCommand asks for the conversation of an exact participant set.
type ResolveConversationCommand struct {
	RequesterID  UserID   `validate:"required"`
	Participants []UserID `validate:"required,min=1,dive,required"`
}

// SendMessageCommand carries an authored message before persistence.
type SendMessageCommand struct {
	AuthorID       UserID         `validate:"required"`
	ConversationID ConversationID `validate:"required"`
	Content        string         `validate:"required"`
}
