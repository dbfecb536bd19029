package memoryrepo

import (
	"context"
	"sort"

	"jan-server/services/chat-api/internal/domain/inbox"
)

type InboxRepository struct {
	store *Store
}

var _ inbox.Repository = (*InboxRepository)(nil)

func NewInboxRepository(store *Store) *InboxRepository {
	return &InboxRepository{store: store}
}

func (r *InboxRepository) Create(_ context.Context, n *inbox.Notification) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := n.UserID + "|" + n.MessageID
	if _, exists := s.inboxKeys[key]; exists {
		return nil
	}
	cp := *n
	s.notifications[n.ID] = &cp
	s.inboxKeys[key] = n.ID
	return nil
}

func (r *InboxRepository) ListByUser(_ context.Context, userID string, filter inbox.Filter) ([]*inbox.Notification, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*inbox.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID != userID || (filter.UnreadOnly && n.Read) {
			continue
		}
		cp := *n
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *InboxRepository) MarkRead(ctx context.Context, userID, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return notFound(ctx, "inbox notification not found")
	}
	n.Read = true
	return nil
}
