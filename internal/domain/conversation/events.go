package conversation

import (
	"context"
	"time"

	"jan-server/services/chat-api/internal/domain/inbox"
)

// EventType names a server-originated realtime event.
type EventType string

const (
	EventNewMessage          EventType = "new-message"
	EventMessageNotification EventType = "message-notification"
	EventUserTyping          EventType = "user-typing"
	EventUserStopTyping      EventType = "user-stop-typing"
	EventMessagesRead        EventType = "messages-read"
)

// Event is the envelope written to connections.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Data           any       `json:"data,omitempty"`
}

// MessageNotification tells a participant outside the channel about a new message.
type MessageNotification struct {
	Message     *MessageView `json:"message"`
	UnreadCount int          `json:"unread_count"`
}

// TypingNotice is the payload of typing events.
type TypingNotice struct {
	UserID string `json:"user_id"`
}

// ReadReceipt is the result of a read acknowledgement and the payload of messages-read.
type ReadReceipt struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
	Count          int64     `json:"count"`
}

// Exclusion removes connections from a channel broadcast.
type Exclusion struct {
	ConnectionID string
	UserID       string
}

// Publisher delivers events to live connections. Delivery never blocks and
// returns the number of connections that accepted the event.
type Publisher interface {
	PublishToConversation(conversationID string, event Event, exclude Exclusion) int
	PublishToUser(userID string, event Event) int
}

// NotificationEnqueuer hands inbox notifications to background delivery without blocking.
type NotificationEnqueuer interface {
	Enqueue(ctx context.Context, n inbox.Notification) error
}

// TextSanitizer renders message text safe for logs.
type TextSanitizer interface {
	SanitizeText(input string) string
}
