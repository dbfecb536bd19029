package memoryrepo

import (
	"context"
	"sort"
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type ConversationRepository struct {
	store *Store
}

var _ conversation.ConversationRepository = (*ConversationRepository)(nil)

func NewConversationRepository(store *Store) *ConversationRepository {
	return &ConversationRepository{store: store}
}

func notFound(ctx context.Context, message string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
		message, nil, "e4a1c9d2-6b3f-4e8a-9d17-5c2b0f8e3a41")
}

func (r *ConversationRepository) Create(ctx context.Context, conv *conversation.Conversation) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := uniqueKey(conv.Key(), conversation.ListingKey(conv.ListingID))
	if _, exists := s.byKey[key]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"conversation already exists for participants and listing", nil, "a7d3e1f0-2c84-4b59-8e6a-1f9c3d5b7e20")
	}
	if _, exists := s.conversations[conv.ID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"conversation id already used", nil, "a7d3e1f0-2c84-4b59-8e6a-1f9c3d5b7e21")
	}

	s.conversations[conv.ID] = &conversationRecord{
		id:             conv.ID,
		participantKey: conv.Key(),
		listingID:      conversation.ListingKey(conv.ListingID),
		lastMessageID:  copyString(conv.LastMessageID),
		lastMessageAt:  copyTime(conv.LastMessageAt),
		lastSeq:        conv.LastSeq,
		active:         conv.Active,
		createdAt:      conv.CreatedAt,
		updatedAt:      conv.UpdatedAt,
	}
	s.byKey[key] = conv.ID
	members := make(map[string]*participantRecord, len(conv.Participants))
	for _, p := range conv.Participants {
		members[p] = &participantRecord{
			userID:            p,
			unreadCount:       conv.UnreadFor(p),
			lastReadMessageID: conv.ReadCursors[p],
		}
	}
	s.participants[conv.ID] = members

	id := conv.ID
	onRollback(ctx, func() {
		delete(s.conversations, id)
		delete(s.byKey, key)
		delete(s.participants, id)
	})
	return nil
}

func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*conversation.Conversation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.conversations[id]
	if !ok {
		return nil, notFound(ctx, "conversation not found")
	}
	return s.toDomain(rec), nil
}

// FindByIDForUpdate relies on the conversation lock for exclusivity.
func (r *ConversationRepository) FindByIDForUpdate(ctx context.Context, id string) (*conversation.Conversation, error) {
	return r.FindByID(ctx, id)
}

func (r *ConversationRepository) FindByParticipantKey(ctx context.Context, participantKey string, listingID *string) (*conversation.Conversation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[uniqueKey(participantKey, conversation.ListingKey(listingID))]
	if !ok {
		return nil, notFound(ctx, "conversation not found")
	}
	return s.toDomain(s.conversations[id]), nil
}

func (r *ConversationRepository) FindByFilter(ctx context.Context, filter conversation.ConversationFilter, pagination *conversation.Pagination) ([]*conversation.Conversation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*conversationRecord, 0)
	for _, rec := range s.conversations {
		if filter.ParticipantID != "" {
			if _, ok := s.participants[rec.id][filter.ParticipantID]; !ok {
				continue
			}
		}
		if !filter.IncludeArchived && !rec.active {
			continue
		}
		if filter.UpdatedSince != nil && rec.updatedAt.Before(*filter.UpdatedSince) {
			continue
		}
		matches = append(matches, rec)
	}
	sort.Slice(matches, func(i, j int) bool {
		ai, aj := activity(matches[i]), activity(matches[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return matches[i].id > matches[j].id
	})

	if pagination != nil {
		if pagination.Offset > 0 {
			if pagination.Offset >= len(matches) {
				matches = nil
			} else {
				matches = matches[pagination.Offset:]
			}
		}
		if pagination.Limit > 0 && len(matches) > pagination.Limit {
			matches = matches[:pagination.Limit]
		}
	}

	result := make([]*conversation.Conversation, 0, len(matches))
	for _, rec := range matches {
		result = append(result, s.toDomain(rec))
	}
	return result, nil
}

func activity(rec *conversationRecord) time.Time {
	if rec.lastMessageAt != nil {
		return *rec.lastMessageAt
	}
	return rec.createdAt
}

func (r *ConversationRepository) RecordMessage(ctx context.Context, msg *conversation.Message) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conversations[msg.ConversationID]
	if !ok {
		return notFound(ctx, "conversation not found")
	}
	prev := *rec
	id, ts := msg.ID, msg.CreatedAt
	rec.lastMessageID = &id
	rec.lastMessageAt = &ts
	rec.lastSeq = msg.Seq
	rec.active = true
	rec.updatedAt = ts
	onRollback(ctx, func() { *rec = prev })
	return nil
}

func (r *ConversationRepository) IncrementUnread(ctx context.Context, conversationID, senderID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.participants[conversationID]
	if !ok {
		return notFound(ctx, "conversation not found")
	}
	for id, p := range members {
		if id == senderID {
			continue
		}
		p.unreadCount++
		p := p
		onRollback(ctx, func() { p.unreadCount-- })
	}
	return nil
}

func (r *ConversationRepository) MarkParticipantRead(ctx context.Context, conversationID, userID, cursor string, at time.Time) error {
	return r.updateParticipant(ctx, conversationID, userID, func(p *participantRecord) {
		ts := at
		p.unreadCount = 0
		p.lastReadMessageID = cursor
		p.lastReadAt = &ts
	})
}

func (r *ConversationRepository) SetUnread(ctx context.Context, conversationID, userID string, count int) error {
	return r.updateParticipant(ctx, conversationID, userID, func(p *participantRecord) {
		p.unreadCount = count
	})
}

func (r *ConversationRepository) updateParticipant(ctx context.Context, conversationID, userID string, mutate func(p *participantRecord)) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[conversationID][userID]
	if !ok {
		return notFound(ctx, "participant not found")
	}
	prev := *p
	mutate(p)
	onRollback(ctx, func() { *p = prev })
	return nil
}

func (r *ConversationRepository) SetActive(ctx context.Context, conversationID string, active bool) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return notFound(ctx, "conversation not found")
	}
	prev := *rec
	rec.active = active
	rec.updatedAt = time.Now().UTC()
	onRollback(ctx, func() { *rec = prev })
	return nil
}

func (r *ConversationRepository) SumUnread(_ context.Context, userID string) (int, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for id, members := range s.participants {
		if rec, ok := s.conversations[id]; !ok || !rec.active {
			continue
		}
		if p, ok := members[userID]; ok {
			total += p.unreadCount
		}
	}
	return total, nil
}
