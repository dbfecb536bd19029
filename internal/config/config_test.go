package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("AUTH_HMAC_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "chat-api", cfg.ServiceName)
	assert.Equal(t, ":8190", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 128, cfg.WSSendBuffer)
	assert.Contains(t, cfg.AttachmentAllowedTypes, "image/png")
	assert.Equal(t, LockBackendLocal, cfg.LockBackend)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DBDriver:               DBDriverMemory,
			AuthEnabled:            true,
			AuthHMACSecret:         "secret",
			LockBackend:            LockBackendLocal,
			NotifyBackend:          NotifyBackendLocal,
			AttachmentAllowedTypes: []string{"image/png"},
			WSPingPeriod:           30 * time.Second,
			WSPongWait:             60 * time.Second,
			OperationTimeout:       time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "auth without verifier",
			mutate:  func(c *Config) { c.AuthHMACSecret = "" },
			wantErr: "JWKS_URL or AUTH_HMAC_SECRET",
		},
		{
			name:    "jwks without issuer",
			mutate:  func(c *Config) { c.AuthJWKSURL = "http://keycloak/certs" },
			wantErr: "ISSUER is required",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.DBDriver = DBDriverPostgres },
			wantErr: "DB_POSTGRESQL_WRITE_DSN",
		},
		{
			name:    "redis lock without url",
			mutate:  func(c *Config) { c.LockBackend = LockBackendRedis },
			wantErr: "LOCK_BACKEND is redis",
		},
		{
			name:    "asynq without url",
			mutate:  func(c *Config) { c.NotifyBackend = NotifyBackendAsynq },
			wantErr: "NOTIFY_BACKEND is asynq",
		},
		{
			name:    "ping slower than pong",
			mutate:  func(c *Config) { c.WSPingPeriod = 2 * time.Minute },
			wantErr: "WS_PING_PERIOD",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.DBDriver = "mysql" },
			wantErr: "unsupported DB_DRIVER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
