package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverMemory   = "memory"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"

	NotifyBackendLocal = "local"
	NotifyBackendAsynq = "asynq"
)

// Config holds all configuration for the chat-api service.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"chat-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"CHAT_API_PORT" envDefault:"8190"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// OpenTelemetry
	EnableTracing bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// Database
	DBDriver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL       string        `env:"DB_POSTGRESQL_WRITE_DSN"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate       bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	// MemorySeedUsers lists "id:Display Name" entries loaded when DB_DRIVER is memory.
	MemorySeedUsers []string `env:"MEMORY_SEED_USERS" envSeparator:","`

	// Auth (Keycloak) - uses global auth vars
	AuthEnabled    bool   `env:"AUTH_ENABLED" envDefault:"true"`
	AuthIssuer     string `env:"ISSUER"`
	AuthAudience   string `env:"AUDIENCE"`
	AuthJWKSURL    string `env:"JWKS_URL"`
	AuthHMACSecret string `env:"AUTH_HMAC_SECRET"`

	// Redis backed locking and notification queue
	RedisURL        string        `env:"REDIS_URL"`
	LockBackend     string        `env:"LOCK_BACKEND" envDefault:"local"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	NotifyBackend   string        `env:"NOTIFY_BACKEND" envDefault:"local"`
	NotifyQueueName string        `env:"NOTIFY_QUEUE_NAME" envDefault:"chat-inbox"`
	NotifyQueueSize int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"1024"`
	NotifyWorkers   int           `env:"NOTIFY_WORKERS" envDefault:"4"`

	// Realtime
	OperationTimeout   time.Duration `env:"OPERATION_TIMEOUT" envDefault:"5s"`
	WSHandshakeTimeout time.Duration `env:"WS_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WSWriteWait        time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	WSPongWait         time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WSPingPeriod       time.Duration `env:"WS_PING_PERIOD" envDefault:"30s"`
	WSMaxMessageBytes  int64         `env:"WS_MAX_MESSAGE_BYTES" envDefault:"1048576"`
	WSSendBuffer       int           `env:"WS_SEND_BUFFER" envDefault:"128"`
	WSAllowedOrigins   []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`

	// Messages and attachments
	MessageMaxBodyLength   int      `env:"MESSAGE_MAX_BODY_LENGTH" envDefault:"4000"`
	AttachmentMaxCount     int      `env:"ATTACHMENT_MAX_COUNT" envDefault:"10"`
	AttachmentMaxBytes     int64    `env:"ATTACHMENT_MAX_BYTES" envDefault:"26214400"`
	AttachmentAllowedTypes []string `env:"ATTACHMENT_ALLOWED_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png,image/webp,image/gif,video/mp4,application/pdf"`

	// Users
	UserCacheSize int `env:"USER_CACHE_SIZE" envDefault:"4096"`

	// Unread counter reconciliation
	ReconcileEnabled bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	ReconcileCron    string        `env:"RECONCILE_CRON" envDefault:"*/10 * * * *"`
	ReconcileWindow  time.Duration `env:"RECONCILE_WINDOW" envDefault:"1h"`

	// Telemetry sanitization for inbox previews
	PreviewPIILevel string `env:"PREVIEW_PII_LEVEL" envDefault:"hashed"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	if c.AuthEnabled {
		if strings.TrimSpace(c.AuthJWKSURL) == "" && strings.TrimSpace(c.AuthHMACSecret) == "" {
			return fmt.Errorf("JWKS_URL or AUTH_HMAC_SECRET is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(c.AuthJWKSURL) != "" && strings.TrimSpace(c.AuthIssuer) == "" {
			return fmt.Errorf("ISSUER is required when JWKS_URL is set")
		}
	}

	switch c.DBDriver {
	case DBDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DB_POSTGRESQL_WRITE_DSN is required when DB_DRIVER is postgres")
		}
	case DBDriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.LockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when LOCK_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend)
	}

	switch c.NotifyBackend {
	case NotifyBackendLocal:
	case NotifyBackendAsynq:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when NOTIFY_BACKEND is asynq")
		}
	default:
		return fmt.Errorf("unsupported NOTIFY_BACKEND %q", c.NotifyBackend)
	}

	if len(c.AttachmentAllowedTypes) == 0 {
		return fmt.Errorf("ATTACHMENT_ALLOWED_TYPES must not be empty")
	}
	if c.WSPingPeriod >= c.WSPongWait {
		return fmt.Errorf("WS_PING_PERIOD must be shorter than WS_PONG_WAIT")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}
	return nil
}

// Addr returns the HTTP server address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
