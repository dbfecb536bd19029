// Package redisclient opens the Redis connection shared by the distributed
// conversation lock.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const pingTimeout = 5 * time.Second

var ErrNoAddress = errors.New("redis: no address configured")

// New parses redisURL, connects and pings. Several comma separated entries
// select cluster mode.
func New(ctx context.Context, redisURL string, log zerolog.Logger) (redis.UniversalClient, error) {
	opts, err := ParseUniversal(redisURL)
	if err != nil {
		return nil, err
	}

	log = log.With().Str("component", "redis").Strs("addrs", opts.Addrs).Logger()
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Int("db", opts.DB).Msg("cluster mode has a single keyspace, using db 0")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("redis: ping: %w", err), client.Close())
	}

	log.Info().Msg("redis connected")
	return client, nil
}

// ParseUniversal accepts redis:// or rediss:// URLs and bare host:port
// entries. Connection settings come from the first URL that sets them.
func ParseUniversal(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case strings.Contains(entry, "://"):
			parsed, err := redis.ParseURL(entry)
			if err != nil {
				return nil, fmt.Errorf("redis: parse url: %w", err)
			}
			opts.Addrs = append(opts.Addrs, parsed.Addr)
			inherit(opts, parsed)
		default:
			opts.Addrs = append(opts.Addrs, entry)
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, ErrNoAddress
	}
	return opts, nil
}

func inherit(dst *redis.UniversalOptions, src *redis.Options) {
	if dst.Username == "" {
		dst.Username = src.Username
	}
	if dst.Password == "" {
		dst.Password = src.Password
	}
	if dst.DB == 0 {
		dst.DB = src.DB
	}
	if dst.TLSConfig == nil {
		dst.TLSConfig = src.TLSConfig
	}
	if dst.DialTimeout == 0 {
		dst.DialTimeout = src.DialTimeout
	}
	if dst.PoolSize == 0 {
		dst.PoolSize = src.PoolSize
	}
}
