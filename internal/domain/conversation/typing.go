package conversation

import (
	"context"
)

// Typing relays a typing indicator to the other subscribers of the channel.
// Nothing is persisted or retried.
func (s *service) Typing(ctx context.Context, input TypingInput) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.AuthorizeParticipant(ctx, input.ConversationID, input.UserID); err != nil {
		return deadline(ctx, err)
	}

	eventType := EventUserStopTyping
	if input.Typing {
		eventType = EventUserTyping
	}
	s.publisher.PublishToConversation(input.ConversationID, Event{
		Type:           eventType,
		ConversationID: input.ConversationID,
		Data:           &TypingNotice{UserID: input.UserID},
	}, Exclusion{ConnectionID: input.ConnectionID, UserID: input.UserID})
	return nil
}
