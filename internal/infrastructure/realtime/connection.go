package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used by the chat socket.
const (
	CloseUnauthenticated = 4401
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseGoingAway       = websocket.CloseGoingAway
	CloseNormal          = websocket.CloseNormalClosure
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("connection send buffer exceeded")
)

// ConnectionOptions bound a connection's buffers and timers.
type ConnectionOptions struct {
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageBytes int64
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 128
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	return o
}

// Connection wraps an authenticated websocket and serializes outbound writes
// through a bounded buffer. It is safe for concurrent use.
type Connection struct {
	ID     string
	UserID string

	ws   *websocket.Conn
	opts ConnectionOptions
	send chan []byte
	done chan struct{}
	once sync.Once

	closeCode   int
	closeReason string
	expiresAt   atomic.Int64
}

// NewConnection constructs a Connection for an authenticated user. ws may be nil in tests.
func NewConnection(id, userID string, ws *websocket.Conn, opts ConnectionOptions) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		ID:     id,
		UserID: userID,
		ws:     ws,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Start launches the write loop. It must be called at most once.
func (c *Connection) Start() {
	if c.ws != nil {
		go c.writeLoop()
	}
}

// Send enqueues payload for delivery without blocking. A full buffer closes
// the connection so one slow client cannot stall fan-out.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(ClosePolicyViolation, "send buffer full")
		return ErrSlowConsumer
	}
}

// Close flushes queued frames, sends a close frame with code and reason, and
// releases the socket. Only the first call has an effect.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// Done is closed once the connection starts shutting down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// SetExpiry records when the credential that opened the connection stops being valid.
func (c *Connection) SetExpiry(t time.Time) {
	if t.IsZero() {
		c.expiresAt.Store(0)
		return
	}
	c.expiresAt.Store(t.UnixNano())
}

// Expired reports whether the connection's credential has lapsed at now.
func (c *Connection) Expired(now time.Time) bool {
	exp := c.expiresAt.Load()
	return exp != 0 && now.UnixNano() >= exp
}

// ReadLoop reads frames until the peer disconnects or the read deadline
// passes, calling handle for each text frame on the calling goroutine.
func (c *Connection) ReadLoop(handle func(payload []byte)) error {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason),
				time.Now().Add(c.opts.WriteWait))
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.abort()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.abort()
				return
			}
		}
	}
}

// flush writes whatever is still buffered, e.g. an error frame queued just before Close.
func (c *Connection) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) abort() {
	c.once.Do(func() {
		c.closeCode = websocket.CloseAbnormalClosure
		close(c.done)
	})
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
