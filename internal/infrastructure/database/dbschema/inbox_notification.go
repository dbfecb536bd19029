package dbschema

import (
	"time"

	"jan-server/services/chat-api/internal/domain/inbox"
)

// InboxNotification is one entry of a user's durable notification inbox.
type InboxNotification struct {
	ID             string `gorm:"type:varchar(64);primaryKey"`
	UserID         string `gorm:"type:varchar(64);not null;uniqueIndex:idx_inbox_notifications_user_message"`
	Kind           string `gorm:"type:varchar(32);not null"`
	ConversationID string `gorm:"type:varchar(64);not null"`
	MessageID      string `gorm:"type:varchar(64);not null;uniqueIndex:idx_inbox_notifications_user_message"`
	SenderID       string `gorm:"type:varchar(64);not null"`
	SenderName     string `gorm:"type:varchar(255);not null;default:''"`
	Preview        string `gorm:"type:text;not null;default:''"`
	Read           bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

// NewSchemaInboxNotification converts a domain notification into a schema instance.
func NewSchemaInboxNotification(n *inbox.Notification) *InboxNotification {
	return &InboxNotification{
		ID:             n.ID,
		UserID:         n.UserID,
		Kind:           string(n.Kind),
		ConversationID: n.ConversationID,
		MessageID:      n.MessageID,
		SenderID:       n.SenderID,
		SenderName:     n.SenderName,
		Preview:        n.Preview,
		Read:           n.Read,
		CreatedAt:      n.CreatedAt,
	}
}

// EtoD converts the schema back to the domain representation.
func (n *InboxNotification) EtoD() *inbox.Notification {
	return &inbox.Notification{
		ID:             n.ID,
		UserID:         n.UserID,
		Kind:           inbox.Kind(n.Kind),
		ConversationID: n.ConversationID,
		MessageID:      n.MessageID,
		SenderID:       n.SenderID,
		SenderName:     n.SenderName,
		Preview:        n.Preview,
		Read:           n.Read,
		CreatedAt:      n.CreatedAt,
	}
}
