package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/config"
	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/infrastructure/auth"
	"jan-server/services/chat-api/internal/infrastructure/metrics"
	"jan-server/services/chat-api/internal/infrastructure/realtime"
	"jan-server/services/chat-api/internal/utils/idgen"
)

// SocketConfig holds the websocket limits and timers.
type SocketConfig struct {
	AllowedOrigins   []string
	HandshakeTimeout time.Duration
	OperationTimeout time.Duration
	Connection       realtime.ConnectionOptions
}

// NewSocketConfig reads the websocket settings from the service configuration.
func NewSocketConfig(cfg *config.Config) SocketConfig {
	return SocketConfig{
		AllowedOrigins:   cfg.WSAllowedOrigins,
		HandshakeTimeout: cfg.WSHandshakeTimeout,
		OperationTimeout: cfg.OperationTimeout,
		Connection: realtime.ConnectionOptions{
			SendBuffer:      cfg.WSSendBuffer,
			WriteWait:       cfg.WSWriteWait,
			PongWait:        cfg.WSPongWait,
			PingPeriod:      cfg.WSPingPeriod,
			MaxMessageBytes: cfg.WSMaxMessageBytes,
		},
	}
}

// SocketHandler upgrades authenticated clients to websockets and routes their
// frames to the conversation service.
type SocketHandler struct {
	service   conversation.Service
	hub       *realtime.Hub
	validator *auth.Validator
	upgrader  websocket.Upgrader
	cfg       SocketConfig
	now       func() time.Time
	log       zerolog.Logger
}

// NewSocketHandler creates the websocket endpoint handler.
func NewSocketHandler(service conversation.Service, hub *realtime.Hub, validator *auth.Validator, cfg SocketConfig, log zerolog.Logger) *SocketHandler {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	h := &SocketHandler{
		service:   service,
		hub:       hub,
		validator: validator,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("component", "socket-handler").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Serve handles GET /v1/ws. The credential comes from the Authorization header
// or access_token query parameter, otherwise from an authenticate frame sent
// within the handshake timeout.
func (h *SocketHandler) Serve(c *gin.Context) {
	ctx := c.Request.Context()

	principal, authErr := h.validator.Authenticate(ctx, c.Request)
	deferred := authErr != nil && errors.Is(authErr, auth.ErrMissingCredential)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		metrics.RecordHandshakeRejected("upgrade_failed")
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(h.cfg.Connection.MaxMessageBytes)

	switch {
	case deferred:
		principal, err = h.awaitAuthenticate(ctx, ws)
		if err != nil {
			h.reject(ws, err)
			return
		}
	case authErr != nil:
		h.reject(ws, handshakeError{reason: "invalid_credential", message: "invalid credential", err: authErr})
		return
	}

	connectionID, err := idgen.NewConnectionID()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to generate connection id")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	conn := realtime.NewConnection(connectionID, principal.UserID, ws, h.cfg.Connection)
	conn.SetExpiry(principal.ExpiresAt)
	conn.Start()
	if !h.hub.Register(conn) {
		metrics.RecordHandshakeRejected("shutdown")
		conn.Close(realtime.CloseGoingAway, "server shutting down")
		return
	}
	defer func() {
		h.hub.Unregister(conn)
		conn.Close(realtime.CloseNormal, "")
	}()

	log := h.log.With().Str("connection_id", conn.ID).Str("user_id", conn.UserID).Logger()
	log.Info().Msg("socket connected")

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-sessionCtx.Done():
		}
	}()

	h.reply(conn, serverFrame{
		Type: frameConnected,
		Data: connectedPayload{ConnectionID: conn.ID, UserID: conn.UserID},
	})

	s := &socketSession{handler: h, conn: conn, ctx: sessionCtx, log: log}
	err = conn.ReadLoop(s.handle)
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		log.Debug().Err(err).Msg("socket read ended")
	}
	log.Info().Msg("socket disconnected")
}

// awaitAuthenticate reads the first frame, which must carry a credential.
func (h *SocketHandler) awaitAuthenticate(ctx context.Context, ws *websocket.Conn) (auth.Principal, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return auth.Principal{}, handshakeError{reason: "timeout", message: "authentication timed out", err: err}
		}
		return auth.Principal{}, handshakeError{reason: "closed", message: "connection closed before authentication", err: err}
	}

	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != frameAuthenticate {
		return auth.Principal{}, handshakeError{reason: "missing_credential", message: "first frame must be authenticate", err: err}
	}
	if strings.TrimSpace(frame.Token) == "" {
		return auth.Principal{}, handshakeError{reason: "missing_credential", message: "missing credential"}
	}
	principal, err := h.validator.Verify(ctx, frame.Token)
	if err != nil {
		return auth.Principal{}, handshakeError{reason: "invalid_credential", message: "invalid credential", err: err}
	}
	return principal, nil
}

// reject closes an unauthenticated socket. The connection was never registered.
func (h *SocketHandler) reject(ws *websocket.Conn, err error) {
	reason, message := "invalid_credential", "authentication failed"
	var hsErr handshakeError
	if errors.As(err, &hsErr) {
		reason, message = hsErr.reason, hsErr.message
	}
	metrics.RecordHandshakeRejected(reason)
	h.log.Debug().Err(err).Str("reason", reason).Msg("socket handshake rejected")

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(realtime.CloseUnauthenticated, message),
		time.Now().Add(h.cfg.Connection.WriteWait+time.Second))
	_ = ws.Close()
}

func (h *SocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, allowed := range h.cfg.AllowedOrigins {
		allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// reply encodes frame and queues it on conn. A full buffer closes the connection.
func (h *SocketHandler) reply(conn *realtime.Connection, frame serverFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().Err(err).Str("type", frame.Type).Msg("failed to encode frame")
		return
	}
	if err := conn.Send(payload); err != nil {
		h.log.Debug().Err(err).Str("connection_id", conn.ID).Str("type", frame.Type).Msg("frame dropped")
	}
}

type handshakeError struct {
	reason  string
	message string
	err     error
}

func (e handshakeError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e handshakeError) Unwrap() error { return e.err }
