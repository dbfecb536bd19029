package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind classifies an inbox notification.
type Kind string

const (
	KindNewMessage Kind = "new_message"
)

const previewMaxRunes = 140

// Notification is an entry on a user's durable notification inbox.
type Notification struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Kind           Kind      `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Preview        string    `json:"preview"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows inbox listings.
type Filter struct {
	UnreadOnly bool
	Limit      int
}

// Repository persists notifications on the user record.
type Repository interface {
	// Create stores n. Storing a second notification for the same user and
	// message is a no-op so redelivered queue tasks stay idempotent.
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, filter Filter) ([]*Notification, error)
	// MarkRead returns a NOT_FOUND platform error when id does not belong to userID.
	MarkRead(ctx context.Context, userID, id string) error
}

// Preview renders the short text shown on an inbox entry.
func Preview(body string, attachments int) string {
	body = strings.TrimSpace(strings.Join(strings.Fields(body), " "))
	if body == "" {
		switch attachments {
		case 0:
			return ""
		case 1:
			return "Sent an attachment"
		default:
			return fmt.Sprintf("Sent %d attachments", attachments)
		}
	}
	if utf8.RuneCountInString(body) <= previewMaxRunes {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewMaxRunes-1]) + "…"
}
