package memoryrepo

import (
	"context"

	"jan-server/services/chat-api/internal/domain/user"
)

type UserRepository struct {
	store *Store
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository(store *Store) *UserRepository {
	return &UserRepository{store: store}
}

// Upsert stores or replaces a user record.
func (r *UserRepository) Upsert(u *user.User) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound(ctx, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) FindByIDs(_ context.Context, ids []string) ([]*user.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			users = append(users, &cp)
		}
	}
	return users, nil
}
