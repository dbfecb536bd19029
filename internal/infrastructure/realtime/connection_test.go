package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnection_Expiry(t *testing.T) {
	conn := NewConnection("conn_1", "alice", nil, ConnectionOptions{})
	now := time.Now()

	assert.False(t, conn.Expired(now), "no expiry means never expires")

	conn.SetExpiry(now.Add(time.Minute))
	assert.False(t, conn.Expired(now))
	assert.True(t, conn.Expired(now.Add(2*time.Minute)))

	conn.SetExpiry(time.Time{})
	assert.False(t, conn.Expired(now.Add(time.Hour)))
}

func TestConnectionOptions_Defaults(t *testing.T) {
	opts := ConnectionOptions{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second}.withDefaults()
	assert.Equal(t, 128, opts.SendBuffer)
	assert.Less(t, opts.PingPeriod, opts.PongWait)
	assert.EqualValues(t, 1<<20, opts.MaxMessageBytes)
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	conn := NewConnection("conn_1", "alice", nil, ConnectionOptions{})
	conn.Close(CloseNormal, "bye")
	conn.Close(CloseGoingAway, "again")

	<-conn.Done()
	assert.Equal(t, CloseNormal, conn.closeCode)
	assert.Equal(t, "bye", conn.closeReason)
}
