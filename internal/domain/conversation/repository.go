package conversation

import (
	"context"
	"time"
)

// Transactor runs fn in a storage transaction carried by the context.
// Repository calls made with the inner context join that transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ConversationFilter narrows conversation listings.
type ConversationFilter struct {
	ParticipantID   string
	IncludeArchived bool
	UpdatedSince    *time.Time
}

// Pagination is offset based paging for conversation listings.
type Pagination struct {
	Limit  int
	Offset int
}

// MessageFilter pages messages newest first by Seq. Before is an exclusive
// message id cursor; an id outside the conversation yields an empty page.
type MessageFilter struct {
	Before string
	Limit  int
}

// ConversationRepository persists conversations and their per-participant state.
// Lookups of unknown ids return a NOT_FOUND platform error.
type ConversationRepository interface {
	// Create returns a CONFLICT platform error when the participant set and
	// listing already have a conversation.
	Create(ctx context.Context, conv *Conversation) error
	FindByID(ctx context.Context, id string) (*Conversation, error)
	// FindByIDForUpdate also locks the conversation until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*Conversation, error)
	FindByParticipantKey(ctx context.Context, participantKey string, listingID *string) (*Conversation, error)
	// FindByFilter orders by most recent activity first.
	FindByFilter(ctx context.Context, filter ConversationFilter, pagination *Pagination) ([]*Conversation, error)
	// RecordMessage moves the last-message pointer and sequence and reactivates the conversation.
	RecordMessage(ctx context.Context, msg *Message) error
	// IncrementUnread adds one to every participant counter except the sender's, in one statement.
	IncrementUnread(ctx context.Context, conversationID, senderID string) error
	// MarkParticipantRead zeroes the participant's counter and moves their read cursor.
	MarkParticipantRead(ctx context.Context, conversationID, userID, cursor string, at time.Time) error
	SetUnread(ctx context.Context, conversationID, userID string, count int) error
	SetActive(ctx context.Context, conversationID string, active bool) error
	// SumUnread totals the user's counters across active conversations.
	SumUnread(ctx context.Context, userID string) (int, error)
}

// MessageRepository persists messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	FindByID(ctx context.Context, id string) (*Message, error)
	ListByConversation(ctx context.Context, conversationID string, filter MessageFilter) ([]*Message, error)
	// MarkReadFromOthers flips read on every unread message not sent by readerID and
	// returns how many rows changed.
	MarkReadFromOthers(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	// CountFromOthersAfter counts messages not sent by userID whose Seq is above
	// the cursor message's. An empty or unknown cursor counts every such message.
	CountFromOthersAfter(ctx context.Context, conversationID, userID, cursor string) (int64, error)
}

// Locker serializes mutations of one conversation.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
