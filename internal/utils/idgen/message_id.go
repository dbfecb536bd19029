package idgen

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const MessagePrefix = "msg_"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	lastMs    uint64
)

// NewMessageID returns a msg_* ULID. The timestamp never goes below the last
// one issued, so a clock stepping back cannot produce a smaller id in this
// process. Thread order comes from Message.Seq, not from ids.
func NewMessageID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	ms := ulid.Timestamp(now)
	if ms < lastMs {
		ms = lastMs
	}
	lastMs = ms
	return MessagePrefix + strings.ToLower(ulid.MustNew(ms, entropy).String())
}

// IsValidMessageID reports whether value is a msg_* ULID.
func IsValidMessageID(value string) bool {
	if !strings.HasPrefix(value, MessagePrefix) {
		return false
	}
	_, err := ParseMessageID(value)
	return err == nil
}

// ParseMessageID strips the msg_ prefix and returns the ULID.
func ParseMessageID(value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, MessagePrefix)
	return ulid.ParseStrict(strings.ToUpper(value))
}
