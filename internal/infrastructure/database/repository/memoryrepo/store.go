// Package memoryrepo keeps every repository in process memory. It backs
// DB_DRIVER=memory and the service tests.
package memoryrepo

import (
	"context"
	"sync"
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/domain/user"
)

type txKey struct{}

// undoLog records how to revert the writes of one transaction.
type undoLog struct {
	steps []func()
}

type conversationRecord struct {
	id             string
	participantKey string
	listingID      string
	lastMessageID  *string
	lastMessageAt  *time.Time
	lastSeq        int64
	active         bool
	createdAt      time.Time
	updatedAt      time.Time
}

type participantRecord struct {
	userID            string
	unreadCount       int
	lastReadMessageID string
	lastReadAt        *time.Time
}

// Store holds the data shared by the memory repositories.
type Store struct {
	mu sync.RWMutex

	conversations map[string]*conversationRecord
	byKey         map[string]string
	participants  map[string]map[string]*participantRecord
	messages      map[string]*conversation.Message
	// threads lists message ids per conversation in Seq order.
	threads       map[string][]string
	users         map[string]*user.User
	notifications map[string]*inbox.Notification
	inboxKeys     map[string]string
}

var _ conversation.Transactor = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		conversations: map[string]*conversationRecord{},
		byKey:         map[string]string{},
		participants:  map[string]map[string]*participantRecord{},
		messages:      map[string]*conversation.Message{},
		threads:       map[string][]string{},
		users:         map[string]*user.User{},
		notifications: map[string]*inbox.Notification{},
		inboxKeys:     map[string]string{},
	}
}

// WithinTransaction runs fn and reverts every write it made when it fails.
// Isolation between concurrent transactions on one conversation comes from the
// conversation lock, not from the store.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*undoLog); ok {
		return fn(ctx)
	}
	log := &undoLog{}
	if err := fn(context.WithValue(ctx, txKey{}, log)); err != nil {
		s.mu.Lock()
		for i := len(log.steps) - 1; i >= 0; i-- {
			log.steps[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// onRollback registers an undo step. Callers hold s.mu.
func onRollback(ctx context.Context, step func()) {
	if log, ok := ctx.Value(txKey{}).(*undoLog); ok {
		log.steps = append(log.steps, step)
	}
}

func uniqueKey(participantKey, listingID string) string {
	return participantKey + "|" + listingID
}

func (s *Store) toDomain(rec *conversationRecord) *conversation.Conversation {
	conv := &conversation.Conversation{
		ID:            rec.id,
		LastMessageID: copyString(rec.lastMessageID),
		LastMessageAt: copyTime(rec.lastMessageAt),
		LastSeq:       rec.lastSeq,
		UnreadCounts:  map[string]int{},
		ReadCursors:   map[string]string{},
		Active:        rec.active,
		CreatedAt:     rec.createdAt,
		UpdatedAt:     rec.updatedAt,
	}
	if rec.listingID != "" {
		listing := rec.listingID
		conv.ListingID = &listing
	}
	ids := make([]string, 0, len(s.participants[rec.id]))
	for id, p := range s.participants[rec.id] {
		ids = append(ids, id)
		conv.UnreadCounts[id] = p.unreadCount
		if p.lastReadMessageID != "" {
			conv.ReadCursors[id] = p.lastReadMessageID
		}
	}
	conv.Participants = conversation.NormalizeParticipants(ids)
	return conv
}

// position returns the index of id in thread, or -1.
func position(thread []string, id string) int {
	for i, candidate := range thread {
		if candidate == id {
			return i
		}
	}
	return -1
}

func copyMessage(m *conversation.Message) *conversation.Message {
	cp := *m
	cp.Attachments = append([]conversation.Attachment(nil), m.Attachments...)
	cp.ReadAt = copyTime(m.ReadAt)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
