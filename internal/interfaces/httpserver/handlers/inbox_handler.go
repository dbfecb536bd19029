package handlers

import (
	"context"

	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/interfaces/httpserver/requests"
)

// InboxHandler serves the durable notification inbox.
type InboxHandler struct {
	service *inbox.Service
}

// NewInboxHandler creates a new inbox handler.
func NewInboxHandler(service *inbox.Service) *InboxHandler {
	return &InboxHandler{service: service}
}

// List returns the caller's notifications, newest first.
func (h *InboxHandler) List(ctx context.Context, userID string, query requests.ListInboxQuery) ([]*inbox.Notification, error) {
	return h.service.List(ctx, userID, inbox.Filter{UnreadOnly: query.UnreadOnly, Limit: query.Limit})
}

// MarkRead marks one notification read.
func (h *InboxHandler) MarkRead(ctx context.Context, userID, id string) error {
	return h.service.MarkRead(ctx, userID, id)
}
