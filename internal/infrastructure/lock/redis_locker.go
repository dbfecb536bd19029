package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "chat-api:lock:"

// RedisLocker takes a redsync mutex in Redis around the in-process keyed
// mutex, so writers in other processes sharing the database are serialized too.
type RedisLocker struct {
	rs    *redsync.Redsync
	local *KeyedMutex
	ttl   time.Duration
	log   zerolog.Logger
}

// NewRedisLocker creates a locker over an existing Redis client.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		rs:    redsync.New(goredis.NewPool(client)),
		local: NewKeyedMutex(),
		ttl:   ttl,
		log:   log.With().Str("component", "redis-locker").Logger(),
	}
}

// Lock acquires the local then the distributed lock for key.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	mutex := l.rs.NewMutex(keyPrefix+key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(64),
		redsync.WithRetryDelay(25*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		unlockLocal()
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	return func() {
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("failed to release distributed lock")
		}
		unlockLocal()
	}, nil
}
