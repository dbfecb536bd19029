package handlers

import (
	"github.com/google/wire"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/inbox"
)

// Provider holds all HTTP handlers.
type Provider struct {
	Conversation *ConversationHandler
	Inbox        *InboxHandler
	Socket       *SocketHandler
}

// NewProvider creates a new handler provider.
func NewProvider(conversationService conversation.Service, inboxService *inbox.Service, socket *SocketHandler) *Provider {
	return &Provider{
		Conversation: NewConversationHandler(conversationService),
		Inbox:        NewInboxHandler(inboxService),
		Socket:       socket,
	}
}

// HandlerProvider provides all handlers for wire.
var HandlerProvider = wire.NewSet(
	NewSocketConfig,
	NewSocketHandler,
	NewProvider,
)
