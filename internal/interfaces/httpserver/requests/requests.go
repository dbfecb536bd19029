// Package requests contains HTTP request DTOs for the chat-api.
package requests

import "jan-server/services/chat-api/internal/domain/conversation"

// CreateConversationRequest opens a conversation with the listed users. The
// caller is always a participant.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1,dive,required,max=128"`
	ListingID      *string  `json:"listing_id,omitempty" binding:"omitempty,max=128"`
}

// ListConversationsQuery pages the caller's conversations.
type ListConversationsQuery struct {
	IncludeArchived bool `form:"include_archived"`
	Limit           int  `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset          int  `form:"offset" binding:"omitempty,min=0"`
}

// ListMessagesQuery pages a conversation's messages newest first.
type ListMessagesQuery struct {
	Before string `form:"before" binding:"omitempty,max=64"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// SendMessageRequest is the body of a REST send. Content rules are enforced
// by the conversation service so both transports share them.
type SendMessageRequest struct {
	Body        string                    `json:"body"`
	Attachments []conversation.Attachment `json:"attachments"`
	ClientID    string                    `json:"client_id,omitempty" binding:"omitempty,max=128"`
}

// ListInboxQuery pages the caller's inbox.
type ListInboxQuery struct {
	UnreadOnly bool `form:"unread_only"`
	Limit      int  `form:"limit" binding:"omitempty,min=1,max=200"`
}
