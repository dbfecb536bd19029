package redisclient

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUniversal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		addrs    []string
		password string
		db       int
		tls      bool
		wantErr  bool
	}{
		{name: "single url", raw: "redis://:secret@redis:6379/2", addrs: []string{"redis:6379"}, password: "secret", db: 2},
		{name: "tls url", raw: "rediss://redis:6380", addrs: []string{"redis:6380"}, tls: true},
		{name: "bare addresses", raw: "redis-1:6379, redis-2:6379", addrs: []string{"redis-1:6379", "redis-2:6379"}},
		{name: "mixed", raw: "redis://:pw@redis-1:6379,redis-2:6379", addrs: []string{"redis-1:6379", "redis-2:6379"}, password: "pw"},
		{name: "empty", raw: " , ", wantErr: true},
		{name: "bad url", raw: "redis://redis:notaport", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseUniversal(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addrs, opts.Addrs)
			assert.Equal(t, tt.password, opts.Password)
			assert.Equal(t, tt.db, opts.DB)
			assert.Equal(t, tt.tls, opts.TLSConfig != nil)
		})
	}
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(context.Background(), "", zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoAddress)
}
