package handlers

import (
	"context"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/interfaces/httpserver/requests"
)

// ConversationHandler adapts REST requests to the conversation service.
type ConversationHandler struct {
	service conversation.Service
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(service conversation.Service) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// CreateConversation opens a conversation or returns the existing one. The
// boolean is true when a new conversation was stored.
func (h *ConversationHandler) CreateConversation(ctx context.Context, userID string, req requests.CreateConversationRequest) (*conversation.ConversationView, bool, error) {
	return h.service.CreateConversation(ctx, conversation.CreateConversationInput{
		CreatorID:      userID,
		ParticipantIDs: req.ParticipantIDs,
		ListingID:      req.ListingID,
	})
}

// GetConversation returns one conversation the caller participates in.
func (h *ConversationHandler) GetConversation(ctx context.Context, userID, conversationID string) (*conversation.ConversationView, error) {
	return h.service.GetConversation(ctx, conversationID, userID)
}

// ListConversations pages the caller's conversations.
func (h *ConversationHandler) ListConversations(ctx context.Context, userID string, query requests.ListConversationsQuery) ([]*conversation.ConversationView, error) {
	return h.service.ListConversations(ctx, conversation.ListConversationsInput{
		UserID:          userID,
		IncludeArchived: query.IncludeArchived,
		Limit:           query.Limit,
		Offset:          query.Offset,
	})
}

// TotalUnread returns the caller's badge count.
func (h *ConversationHandler) TotalUnread(ctx context.Context, userID string) (int, error) {
	return h.service.TotalUnread(ctx, userID)
}

// ListMessages acknowledges unread messages and pages the history.
func (h *ConversationHandler) ListMessages(ctx context.Context, userID, conversationID string, query requests.ListMessagesQuery) ([]*conversation.MessageView, error) {
	return h.service.ListMessages(ctx, conversation.ListMessagesInput{
		ConversationID: conversationID,
		UserID:         userID,
		Before:         query.Before,
		Limit:          query.Limit,
	})
}

// SendMessage dispatches a message posted over REST.
func (h *ConversationHandler) SendMessage(ctx context.Context, userID, conversationID string, req requests.SendMessageRequest) (*conversation.MessageView, error) {
	return h.service.SendMessage(ctx, conversation.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       userID,
		Body:           req.Body,
		Attachments:    req.Attachments,
		Origin:         conversation.OriginREST,
	})
}

// MarkRead acknowledges everything other participants sent.
func (h *ConversationHandler) MarkRead(ctx context.Context, userID, conversationID string) (*conversation.ReadReceipt, error) {
	return h.service.MarkRead(ctx, conversation.MarkReadInput{
		ConversationID: conversationID,
		UserID:         userID,
	})
}

// Archive soft-deletes the conversation.
func (h *ConversationHandler) Archive(ctx context.Context, userID, conversationID string) error {
	return h.service.Archive(ctx, conversationID, userID)
}
