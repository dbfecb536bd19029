package dbschema

import (
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
)

// Conversation represents the database schema for conversations
type Conversation struct {
	ID             string     `gorm:"type:varchar(64);primaryKey"`
	ParticipantKey string     `gorm:"type:text;not null;uniqueIndex:idx_conversations_participants_listing"`
	ListingID      string     `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_conversations_participants_listing"`
	LastMessageID  *string    `gorm:"type:varchar(64)"`
	LastMessageAt  *time.Time `gorm:"type:timestamptz"`
	LastMessageSeq int64      `gorm:"not null;default:0"`
	Active         bool       `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID"`
}

// ConversationParticipant holds one participant's unread counter and read cursor.
type ConversationParticipant struct {
	ConversationID    string     `gorm:"type:varchar(64);primaryKey"`
	UserID            string     `gorm:"type:varchar(64);primaryKey;index"`
	UnreadCount       int        `gorm:"not null;default:0"`
	LastReadMessageID string     `gorm:"type:varchar(64);not null;default:''"`
	LastReadAt        *time.Time `gorm:"type:timestamptz"`
	JoinedAt          time.Time  `gorm:"not null"`
}

// NewSchemaConversation creates a database schema from domain conversation
func NewSchemaConversation(c *conversation.Conversation) *Conversation {
	participants := make([]ConversationParticipant, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, ConversationParticipant{
			ConversationID:    c.ID,
			UserID:            p,
			UnreadCount:       c.UnreadFor(p),
			LastReadMessageID: c.ReadCursors[p],
			JoinedAt:          c.CreatedAt,
		})
	}
	return &Conversation{
		ID:             c.ID,
		ParticipantKey: c.Key(),
		ListingID:      conversation.ListingKey(c.ListingID),
		LastMessageID:  c.LastMessageID,
		LastMessageAt:  c.LastMessageAt,
		LastMessageSeq: c.LastSeq,
		Active:         c.Active,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		Participants:   participants,
	}
}

// EtoD converts database schema to domain conversation (Entity to Domain)
func (c *Conversation) EtoD() *conversation.Conversation {
	conv := &conversation.Conversation{
		ID:            c.ID,
		Participants:  make([]string, 0, len(c.Participants)),
		LastMessageID: c.LastMessageID,
		LastMessageAt: c.LastMessageAt,
		LastSeq:       c.LastMessageSeq,
		UnreadCounts:  make(map[string]int, len(c.Participants)),
		ReadCursors:   make(map[string]string, len(c.Participants)),
		Active:        c.Active,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.ListingID != "" {
		listing := c.ListingID
		conv.ListingID = &listing
	}
	for _, p := range c.Participants {
		conv.Participants = append(conv.Participants, p.UserID)
		conv.UnreadCounts[p.UserID] = p.UnreadCount
		if p.LastReadMessageID != "" {
			conv.ReadCursors[p.UserID] = p.LastReadMessageID
		}
	}
	conv.Participants = conversation.NormalizeParticipants(conv.Participants)
	return conv
}
