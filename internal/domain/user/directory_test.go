package user_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/domain/user"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type countingRepo struct {
	users map[string]*user.User
	calls atomic.Int32
	err   error
}

func (r *countingRepo) FindByID(ctx context.Context, id string) (*user.User, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "user not found", nil, "")
	}
	return u, nil
}

func (r *countingRepo) FindByIDs(_ context.Context, ids []string) ([]*user.User, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	var out []*user.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func newRepo() *countingRepo {
	return &countingRepo{users: map[string]*user.User{
		"alice": {ID: "alice", DisplayName: "Alice", AvatarURL: "https://cdn.example.com/a.png"},
		"bob":   {ID: "bob", DisplayName: "Bob"},
	}}
}

func TestDirectoryCachesLookups(t *testing.T) {
	repo := newRepo()
	dir, err := user.NewDirectory(repo, 8, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	profile, found, err := dir.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Alice", profile.DisplayName)

	_, _, err = dir.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.calls.Load())

	dir.Invalidate("alice")
	_, _, err = dir.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestDirectoryMissingUser(t *testing.T) {
	dir, err := user.NewDirectory(newRepo(), 8, zerolog.Nop())
	require.NoError(t, err)

	profile, found, err := dir.Lookup(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "ghost", profile.ID)
}

func TestDirectoryProfilesPreserveOrderAndDegrade(t *testing.T) {
	repo := newRepo()
	dir, err := user.NewDirectory(repo, 8, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	profiles := dir.Profiles(ctx, []string{"bob", "ghost", "alice"})
	require.Len(t, profiles, 3)
	assert.Equal(t, "Bob", profiles[0].DisplayName)
	assert.Equal(t, user.Profile{ID: "ghost"}, profiles[1])
	assert.Equal(t, "Alice", profiles[2].DisplayName)

	repo.err = errors.New("replica unavailable")
	assert.Equal(t, "Bob", dir.Profile(ctx, "bob").DisplayName, "cached profiles survive repository failures")
	assert.Equal(t, user.Profile{ID: "carol"}, dir.Profile(ctx, "carol"))
}
