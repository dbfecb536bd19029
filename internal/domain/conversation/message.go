package conversation

import (
	"time"

	"jan-server/services/chat-api/internal/domain/user"
)

// AttachmentKind classifies an attachment descriptor.
type AttachmentKind string

const (
	AttachmentKindImage    AttachmentKind = "image"
	AttachmentKindVideo    AttachmentKind = "video"
	AttachmentKindAudio    AttachmentKind = "audio"
	AttachmentKindDocument AttachmentKind = "document"
)

// Attachment describes a file already uploaded by the media service.
type Attachment struct {
	Kind      AttachmentKind `json:"kind" validate:"required,oneof=image video audio document"`
	URL       string         `json:"url" validate:"required,url,max=2048"`
	MediaType string         `json:"media_type" validate:"required,max=255"`
	Name      string         `json:"name,omitempty" validate:"max=255"`
	Size      int64          `json:"size,omitempty" validate:"gte=0"`
}

// Message is immutable once persisted except for Read and ReadAt. Seq is the
// message's position in its conversation, starting at 1; it is assigned under
// the conversation lock and orders the thread independently of clocks.
type Message struct {
	ID             string
	ConversationID string
	Seq            int64
	SenderID       string
	Body           string
	Attachments    []Attachment
	Read           bool
	ReadAt         *time.Time
	CreatedAt      time.Time
}

// MessageView is a message with its sender's display identity resolved.
type MessageView struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         user.Profile `json:"sender"`
	Body           string       `json:"body"`
	Attachments    []Attachment `json:"attachments"`
	Read           bool         `json:"read"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewMessageView pairs a message with its sender profile.
func NewMessageView(msg *Message, sender user.Profile) *MessageView {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	return &MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         sender,
		Body:           msg.Body,
		Attachments:    attachments,
		Read:           msg.Read,
		ReadAt:         msg.ReadAt,
		CreatedAt:      msg.CreatedAt,
	}
}

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	ID           string         `json:"id"`
	Participants []user.Profile `json:"participants"`
	ListingID    *string        `json:"listing_id,omitempty"`
	LastMessage  *MessageView   `json:"last_message,omitempty"`
	UnreadCount  int            `json:"unread_count"`
	Active       bool           `json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
