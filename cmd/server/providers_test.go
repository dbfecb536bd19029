package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/config"
)

func TestParseSeedUsers(t *testing.T) {
	users, err := parseSeedUsers([]string{"alice:Alice Smith", " bob ", "", "carol:"})
	require.NoError(t, err)
	require.Len(t, users, 3)

	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "Alice Smith", users[0].DisplayName)
	assert.Equal(t, "bob", users[1].DisplayName)
	assert.Equal(t, "carol", users[2].DisplayName)

	_, err = parseSeedUsers([]string{":Nobody"})
	assert.Error(t, err)
}

func TestProvideStorageMemory(t *testing.T) {
	cfg := &config.Config{
		DBDriver:        config.DBDriverMemory,
		MemorySeedUsers: []string{"alice:Alice"},
		UserCacheSize:   16,
	}
	storage, err := ProvideStorage(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, storage.Ready(context.Background()))

	directory, err := ProvideDirectory(storage, cfg, zerolog.Nop())
	require.NoError(t, err)
	profile := directory.Profile(context.Background(), "alice")
	assert.Equal(t, "Alice", profile.DisplayName)
}

func TestProvideLockerLocal(t *testing.T) {
	cfg := &config.Config{LockBackend: config.LockBackendLocal}
	locker, cleanup, err := ProvideLocker(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer cleanup()

	unlock, err := locker.Lock(context.Background(), "conv-1")
	require.NoError(t, err)
	unlock()
}
