package inbox

import (
	"context"

	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service writes and reads inbox notifications.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

// NewService creates an inbox service.
func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "inbox-service").Logger(),
	}
}

// Deliver persists a notification taken off the queue.
func (s *Service) Deliver(ctx context.Context, n Notification) error {
	if n.UserID == "" || n.MessageID == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"notification requires user and message", nil, "4b8f3f0e-1d3a-4a5e-9d0e-6c1f1f2b7a10")
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to store inbox notification")
	}
	s.log.Debug().
		Str("user_id", n.UserID).
		Str("conversation_id", n.ConversationID).
		Str("message_id", n.MessageID).
		Msg("inbox notification stored")
	return nil
}

// List returns the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]*Notification, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	items, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list inbox notifications")
	}
	return items, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to mark inbox notification read")
	}
	return nil
}
