package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/config"
)

var (
	mu           sync.RWMutex
	globalLogger *zerolog.Logger
)

// GetLogger returns the global logger instance
func GetLogger() zerolog.Logger {
	mu.RLock()
	if globalLogger != nil {
		defer mu.RUnlock()
		return *globalLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		l := zerolog.New(consoleWriter).With().Timestamp().Logger().Level(zerolog.InfoLevel)
		globalLogger = &l
	}
	return *globalLogger
}

// New constructs the service logger from configuration and installs it as the global logger.
// Unknown levels fall back to info, unknown formats to console.
func New(cfg *config.Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(cfg *config.Config, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var base zerolog.Logger
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		base = zerolog.New(out)
	default:
		base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	log := base.With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger().
		Level(lvl)

	mu.Lock()
	globalLogger = &log
	mu.Unlock()
	return log
}
