package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/infrastructure/realtime"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// Client frame types.
const (
	frameAuthenticate = "authenticate"
	frameJoin         = "join-conversation"
	frameLeave        = "leave-conversation"
	frameSend         = "send-message"
	frameTyping       = "typing"
	frameStopTyping   = "stop-typing"
	frameMarkRead     = "mark-read"
	frameArchive      = "archive-conversation"
	framePing         = "ping"
)

// Server frame types that are not conversation events.
const (
	frameConnected = "connected"
	frameAck       = "ack"
	frameError     = "error"
	framePong      = "pong"
)

// Error codes carried by error frames.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeTransient        = "TRANSIENT"
	CodeBadRequest       = "BAD_REQUEST"
)

type clientFrame struct {
	Type           string                    `json:"type"`
	ConversationID string                    `json:"conversation_id,omitempty"`
	Body           string                    `json:"body,omitempty"`
	Attachments    []conversation.Attachment `json:"attachments,omitempty"`
	ClientID       string                    `json:"client_id,omitempty"`
	Token          string                    `json:"token,omitempty"`
}

// serverFrame shares the envelope of conversation events.
type serverFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Data           any    `json:"data,omitempty"`
}

type connectedPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

type ackPayload struct {
	Event    string                    `json:"event"`
	ClientID string                    `json:"client_id,omitempty"`
	Message  *conversation.MessageView `json:"message,omitempty"`
	Receipt  *conversation.ReadReceipt `json:"receipt,omitempty"`
}

type errorPayload struct {
	Event    string `json:"event"`
	Code     string `json:"code"`
	Error    string `json:"error"`
	ClientID string `json:"client_id,omitempty"`
}

// socketSession processes the frames of one connection sequentially.
type socketSession struct {
	handler *SocketHandler
	conn    *realtime.Connection
	ctx     context.Context
	log     zerolog.Logger
}

func (s *socketSession) handle(data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil || strings.TrimSpace(frame.Type) == "" {
		s.fail(clientFrame{Type: "unknown"}, CodeBadRequest, "malformed frame")
		return
	}

	if frame.Type == frameAuthenticate {
		s.reauthenticate(frame)
		return
	}
	if s.conn.Expired(s.handler.now()) {
		s.fail(frame, CodeUnauthenticated, "credential expired")
		s.conn.Close(realtime.CloseUnauthenticated, "credential expired")
		return
	}

	if frame.Type == framePing {
		s.handler.reply(s.conn, serverFrame{Type: framePong})
		return
	}

	switch frame.Type {
	case frameJoin, frameLeave, frameSend, frameTyping, frameStopTyping, frameMarkRead, frameArchive:
	default:
		s.fail(frame, CodeBadRequest, "unknown frame type "+frame.Type)
		return
	}
	if strings.TrimSpace(frame.ConversationID) == "" {
		s.fail(frame, CodeValidationFailed, "conversation_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.handler.cfg.OperationTimeout)
	defer cancel()

	switch frame.Type {
	case frameJoin:
		if err := s.handler.hub.Join(ctx, s.conn, frame.ConversationID); err != nil {
			s.failWith(frame, err)
			return
		}
		s.ack(frame, ackPayload{})

	case frameLeave:
		s.handler.hub.Leave(s.conn, frame.ConversationID)
		s.ack(frame, ackPayload{})

	case frameSend:
		view, err := s.handler.service.SendMessage(ctx, conversation.SendMessageInput{
			ConversationID: frame.ConversationID,
			SenderID:       s.conn.UserID,
			Body:           frame.Body,
			Attachments:    frame.Attachments,
			Origin:         conversation.OriginSocket,
			ConnectionID:   s.conn.ID,
		})
		if err != nil {
			s.failWith(frame, err)
			return
		}
		s.ack(frame, ackPayload{Message: view})

	case frameTyping, frameStopTyping:
		err := s.handler.service.Typing(ctx, conversation.TypingInput{
			ConversationID: frame.ConversationID,
			UserID:         s.conn.UserID,
			ConnectionID:   s.conn.ID,
			Typing:         frame.Type == frameTyping,
		})
		switch {
		case err == nil:
		case platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden),
			platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound):
			s.failWith(frame, err)
		default:
			s.log.Debug().Err(err).Str("conversation_id", frame.ConversationID).Msg("typing indicator dropped")
		}

	case frameMarkRead:
		receipt, err := s.handler.service.MarkRead(ctx, conversation.MarkReadInput{
			ConversationID: frame.ConversationID,
			UserID:         s.conn.UserID,
			ConnectionID:   s.conn.ID,
		})
		if err != nil {
			s.failWith(frame, err)
			return
		}
		s.ack(frame, ackPayload{Receipt: receipt})

	case frameArchive:
		if err := s.handler.service.Archive(ctx, frame.ConversationID, s.conn.UserID); err != nil {
			s.failWith(frame, err)
			return
		}
		s.ack(frame, ackPayload{})
	}
}

// reauthenticate extends a live connection with a fresh credential for the same user.
func (s *socketSession) reauthenticate(frame clientFrame) {
	principal, err := s.handler.validator.Verify(s.ctx, frame.Token)
	if err != nil {
		s.fail(frame, CodeUnauthenticated, "invalid credential")
		s.conn.Close(realtime.CloseUnauthenticated, "invalid credential")
		return
	}
	if principal.UserID != s.conn.UserID {
		s.fail(frame, CodeUnauthenticated, "credential belongs to another user")
		s.conn.Close(realtime.CloseUnauthenticated, "credential belongs to another user")
		return
	}
	s.conn.SetExpiry(principal.ExpiresAt)
	s.ack(frame, ackPayload{})
}

func (s *socketSession) ack(frame clientFrame, payload ackPayload) {
	payload.Event = frame.Type
	payload.ClientID = frame.ClientID
	s.handler.reply(s.conn, serverFrame{Type: frameAck, ConversationID: frame.ConversationID, Data: payload})
}

func (s *socketSession) failWith(frame clientFrame, err error) {
	code := ErrorCode(err)
	message := "internal error"
	if platformErr := platformerrors.GetPlatformError(err); platformErr != nil {
		message = platformErr.Message
	}
	event := s.log.Warn()
	if code == CodeUnauthorized || code == CodeNotFound || code == CodeValidationFailed {
		event = s.log.Debug()
	}
	event.Err(err).Str("event", frame.Type).Str("conversation_id", frame.ConversationID).Str("code", code).Msg("socket event failed")
	s.fail(frame, code, message)
}

func (s *socketSession) fail(frame clientFrame, code, message string) {
	s.handler.reply(s.conn, serverFrame{
		Type:           frameError,
		ConversationID: frame.ConversationID,
		Data: errorPayload{
			Event:    frame.Type,
			Code:     code,
			Error:    message,
			ClientID: frame.ClientID,
		},
	})
}

// ErrorCode maps an error to the code sent to socket clients.
func ErrorCode(err error) string {
	switch platformerrors.TypeOf(err) {
	case platformerrors.ErrorTypeUnauthorized:
		return CodeUnauthenticated
	case platformerrors.ErrorTypeForbidden:
		return CodeUnauthorized
	case platformerrors.ErrorTypeNotFound:
		return CodeNotFound
	case platformerrors.ErrorTypeValidation, platformerrors.ErrorTypeConflict:
		return CodeValidationFailed
	default:
		return CodeTransient
	}
}
