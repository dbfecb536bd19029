package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerTrace(t *testing.T) {
	sql := func() (string, int64) { return `SELECT * FROM "chat_api"."messages" WHERE id = $1`, 1 }

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		elapsed time.Duration
		err     error
		want    string
	}{
		{name: "slow query", level: gormlogger.Warn, elapsed: time.Second, want: "slow query"},
		{name: "failure", level: gormlogger.Warn, err: errors.New("deadlock detected"), want: "query failed"},
		{name: "missing row is not an error", level: gormlogger.Warn, err: gorm.ErrRecordNotFound},
		{name: "fast query below info", level: gormlogger.Warn},
		{name: "silent", level: gormlogger.Silent, elapsed: time.Second},
		{name: "info logs every query", level: gormlogger.Info, want: `"message":"query"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := newGormLogger(zerolog.New(&buf).Level(zerolog.DebugLevel), tt.level, 200*time.Millisecond)
			l.Trace(context.Background(), time.Now().Add(-tt.elapsed), sql, tt.err)
			if tt.want == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestGormLoggerDropsBoundValues(t *testing.T) {
	l := &zerologGormLogger{log: zerolog.Nop()}
	sql, params := l.ParamsFilter(context.Background(), "INSERT INTO messages (body) VALUES ($1)", "my phone is 555-0100")
	assert.Equal(t, "INSERT INTO messages (body) VALUES ($1)", sql)
	assert.Empty(t, params)
}
