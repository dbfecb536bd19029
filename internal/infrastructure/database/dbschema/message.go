package dbschema

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"jan-server/services/chat-api/internal/domain/conversation"
)

// Message represents the database schema for messages
type Message struct {
	ID             string         `gorm:"type:varchar(64);primaryKey"`
	ConversationID string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_messages_conversation_seq"`
	Seq            int64          `gorm:"not null;uniqueIndex:idx_messages_conversation_seq"`
	SenderID       string         `gorm:"type:varchar(64);not null"`
	Body           string         `gorm:"type:text;not null;default:''"`
	Attachments    datatypes.JSON `gorm:"type:jsonb;not null"`
	Read           bool           `gorm:"not null;default:false"`
	ReadAt         *time.Time     `gorm:"type:timestamptz"`
	CreatedAt      time.Time
}

// NewSchemaMessage creates a database schema from a domain message
func NewSchemaMessage(m *conversation.Message) (*Message, error) {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []conversation.Attachment{}
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Body:           m.Body,
		Attachments:    datatypes.JSON(raw),
		Read:           m.Read,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// EtoD converts database schema to a domain message
func (m *Message) EtoD() (*conversation.Message, error) {
	var attachments []conversation.Attachment
	if len(m.Attachments) > 0 {
		if err := json.Unmarshal(m.Attachments, &attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of message %s: %w", m.ID, err)
		}
	}
	return &conversation.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Body:           m.Body,
		Attachments:    attachments,
		Read:           m.Read,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}, nil
}
