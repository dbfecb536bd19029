package user

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const defaultCacheSize = 1024

// Directory resolves display identities with an in-process LRU in front of the repository.
type Directory struct {
	repo  Repository
	cache *lru.Cache
	log   zerolog.Logger
}

// NewDirectory creates a directory caching up to size profiles.
func NewDirectory(repo Repository, size int, log zerolog.Logger) (*Directory, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Directory{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("component", "user-directory").Logger(),
	}, nil
}

// Lookup returns the profile for id. found is false when the user record does not exist.
func (d *Directory) Lookup(ctx context.Context, id string) (Profile, bool, error) {
	if cached, ok := d.cache.Get(id); ok {
		return cached.(Profile), true, nil
	}

	u, err := d.repo.FindByID(ctx, id)
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
			return Profile{ID: id}, false, nil
		}
		return Profile{ID: id}, false, err
	}

	profile := ProfileOf(u)
	d.cache.Add(id, profile)
	return profile, true, nil
}

// Profile resolves a display identity, degrading to the bare id when the
// record is missing or the lookup fails.
func (d *Directory) Profile(ctx context.Context, id string) Profile {
	profile, _, err := d.Lookup(ctx, id)
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", id).Msg("failed to resolve user profile")
	}
	return profile
}

// Profiles resolves many identities, preserving input order.
func (d *Directory) Profiles(ctx context.Context, ids []string) []Profile {
	result := make([]Profile, len(ids))
	missing := make([]string, 0, len(ids))
	for i, id := range ids {
		if cached, ok := d.cache.Get(id); ok {
			result[i] = cached.(Profile)
			continue
		}
		result[i] = Profile{ID: id}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result
	}

	users, err := d.repo.FindByIDs(ctx, missing)
	if err != nil {
		d.log.Warn().Err(err).Int("count", len(missing)).Msg("failed to resolve user profiles")
		return result
	}

	found := make(map[string]Profile, len(users))
	for _, u := range users {
		profile := ProfileOf(u)
		found[u.ID] = profile
		d.cache.Add(u.ID, profile)
	}
	for i, id := range ids {
		if profile, ok := found[id]; ok {
			result[i] = profile
		}
	}
	return result
}

// Invalidate drops a cached profile, e.g. after the account service reports a rename.
func (d *Directory) Invalidate(id string) {
	d.cache.Remove(id)
}
