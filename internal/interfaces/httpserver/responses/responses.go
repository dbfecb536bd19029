// Package responses contains HTTP response DTOs for the chat-api.
package responses

import (
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// ErrorResponse is the error body of every endpoint.
type ErrorResponse = platformerrors.HTTPErrorResponse

// ConversationResponse wraps a single conversation.
type ConversationResponse struct {
	Data    *conversation.ConversationView `json:"data"`
	Created bool                           `json:"created,omitempty"`
}

// ConversationListResponse is one page of conversations.
type ConversationListResponse struct {
	Data   []*conversation.ConversationView `json:"data"`
	Limit  int                              `json:"limit"`
	Offset int                              `json:"offset"`
}

// MessageListResponse is one page of messages, newest first. NextCursor is the
// value to pass as before for the following page.
type MessageListResponse struct {
	Data       []*conversation.MessageView `json:"data"`
	NextCursor string                      `json:"next_cursor,omitempty"`
	HasMore    bool                        `json:"has_more"`
}

// MessageResponse wraps a dispatched message.
type MessageResponse struct {
	Data     *conversation.MessageView `json:"data"`
	ClientID string                    `json:"client_id,omitempty"`
}

// ReadReceiptResponse wraps the result of a read acknowledgement.
type ReadReceiptResponse struct {
	Data *conversation.ReadReceipt `json:"data"`
}

// UnreadResponse carries the caller's badge count.
type UnreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

// InboxListResponse is the caller's inbox.
type InboxListResponse struct {
	Data []*inbox.Notification `json:"data"`
}

// StatusResponse acknowledges a mutation with no payload.
type StatusResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationListResponse builds a conversation page, never with a null data array.
func NewConversationListResponse(views []*conversation.ConversationView, limit, offset int) ConversationListResponse {
	if views == nil {
		views = []*conversation.ConversationView{}
	}
	return ConversationListResponse{Data: views, Limit: limit, Offset: offset}
}

// NewMessageListResponse builds a message page. A full page may have more behind it.
func NewMessageListResponse(views []*conversation.MessageView, limit int) MessageListResponse {
	if views == nil {
		views = []*conversation.MessageView{}
	}
	resp := MessageListResponse{Data: views}
	if len(views) > 0 && limit > 0 && len(views) >= limit {
		resp.HasMore = true
		resp.NextCursor = views[len(views)-1].ID
	}
	return resp
}

// NewInboxListResponse builds an inbox page.
func NewInboxListResponse(items []*inbox.Notification) InboxListResponse {
	if items == nil {
		items = []*inbox.Notification{}
	}
	return InboxListResponse{Data: items}
}
