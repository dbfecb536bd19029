package memoryrepo

import (
	"context"
	"sort"
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type MessageRepository struct {
	store *Store
}

var _ conversation.MessageRepository = (*MessageRepository)(nil)

func NewMessageRepository(store *Store) *MessageRepository {
	return &MessageRepository{store: store}
}

func (r *MessageRepository) Create(ctx context.Context, msg *conversation.Message) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return notFound(ctx, "conversation not found")
	}
	if _, exists := s.messages[msg.ID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"message id already used", nil, "3f8b2c71-9e4d-4a06-b5c3-d71e0a9f2b68")
	}

	thread := s.threads[msg.ConversationID]
	for _, id := range thread {
		if msg.Seq != 0 && s.messages[id].Seq == msg.Seq {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"message sequence already used", nil, "3f8b2c71-9e4d-4a06-b5c3-d71e0a9f2b69")
		}
	}

	s.messages[msg.ID] = copyMessage(msg)
	i := sort.Search(len(thread), func(i int) bool { return s.messages[thread[i]].Seq > msg.Seq })
	thread = append(thread, "")
	copy(thread[i+1:], thread[i:])
	thread[i] = msg.ID
	s.threads[msg.ConversationID] = thread

	id, convID := msg.ID, msg.ConversationID
	onRollback(ctx, func() {
		delete(s.messages, id)
		ids := s.threads[convID]
		if j := position(ids, id); j >= 0 {
			s.threads[convID] = append(ids[:j], ids[j+1:]...)
		}
	})
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*conversation.Message, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, notFound(ctx, "message not found")
	}
	return copyMessage(m), nil
}

// ListByConversation walks the thread newest first.
func (r *MessageRepository) ListByConversation(_ context.Context, conversationID string, filter conversation.MessageFilter) ([]*conversation.Message, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread := s.threads[conversationID]
	end := len(thread)
	if filter.Before != "" {
		end = position(thread, filter.Before)
	}
	result := make([]*conversation.Message, 0)
	for i := end - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
		result = append(result, copyMessage(s.messages[thread[i]]))
	}
	return result, nil
}

func (r *MessageRepository) MarkReadFromOthers(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for _, id := range s.threads[conversationID] {
		m := s.messages[id]
		if m.Read || m.SenderID == readerID {
			continue
		}
		ts := at
		m.Read = true
		m.ReadAt = &ts
		changed++
		onRollback(ctx, func() {
			m.Read = false
			m.ReadAt = nil
		})
	}
	return changed, nil
}

func (r *MessageRepository) CountFromOthersAfter(_ context.Context, conversationID, userID, cursor string) (int64, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread := s.threads[conversationID]
	if cursor != "" {
		thread = thread[position(thread, cursor)+1:]
	}
	var count int64
	for _, id := range thread {
		if s.messages[id].SenderID != userID {
			count++
		}
	}
	return count, nil
}
