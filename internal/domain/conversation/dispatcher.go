package conversation

import (
	"context"
	"time"

	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/infrastructure/metrics"
	"jan-server/services/chat-api/internal/infrastructure/observability"
	"jan-server/services/chat-api/internal/utils/idgen"
)

// SendMessage persists a message and its counter updates atomically, fans it
// out in commit order, then hands inbox notifications to the background queue.
// Persistence either completes or fails before this returns; fan-out and
// notifications never change the result.
func (s *service) SendMessage(ctx context.Context, input SendMessageInput) (*MessageView, error) {
	ctx, span := observability.StartOperation(ctx, "send", input.ConversationID,
		observability.AttrOrigin.String(string(input.Origin)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	start := time.Now()

	var (
		conv *Conversation
		view *MessageView
	)
	err := s.withLock(ctx, lockKey(input.ConversationID), func() error {
		var err error
		conv, view, err = s.persistMessage(ctx, input)
		if err != nil {
			return err
		}
		s.fanOutMessage(conv, view)
		return nil
	})
	err = deadline(ctx, err)
	metrics.RecordDispatch("send", err, time.Since(start).Seconds())
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}

	metrics.MessagesDispatched.WithLabelValues(string(input.Origin)).Inc()
	s.log.Debug().
		Str("conversation_id", conv.ID).
		Str("message_id", view.ID).
		Str("sender_id", input.SenderID).
		Str("origin", string(input.Origin)).
		Str("preview", s.preview(view.Body)).
		Msg("message dispatched")

	s.enqueueNotifications(ctx, conv, view)
	return view, nil
}

// persistMessage runs resolve, authorize, insert and counter update in one transaction.
func (s *service) persistMessage(ctx context.Context, input SendMessageInput) (*Conversation, *MessageView, error) {
	attachments := append([]Attachment(nil), input.Attachments...)

	var (
		conv *Conversation
		msg  *Message
	)
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		c, err := s.conversations.FindByIDForUpdate(txCtx, input.ConversationID)
		if err != nil {
			return storeError(txCtx, err, "failed to load conversation")
		}
		if !c.HasParticipant(input.SenderID) {
			return errNotParticipant(txCtx)
		}
		if err := s.validator.Validate(txCtx, input.Body, attachments); err != nil {
			return err
		}

		now := s.now()
		m := &Message{
			ID:             idgen.NewMessageID(now),
			ConversationID: c.ID,
			Seq:            c.LastSeq + 1,
			SenderID:       input.SenderID,
			Body:           input.Body,
			Attachments:    attachments,
			CreatedAt:      now,
		}
		if err := s.messages.Create(txCtx, m); err != nil {
			return storeError(txCtx, err, "failed to persist message")
		}
		if err := s.conversations.RecordMessage(txCtx, m); err != nil {
			return storeError(txCtx, err, "failed to update last message")
		}
		if err := s.conversations.IncrementUnread(txCtx, c.ID, input.SenderID); err != nil {
			return storeError(txCtx, err, "failed to update unread counters")
		}

		c.ApplyMessage(m)
		conv, msg = c, m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, NewMessageView(msg, s.directory.Profile(ctx, msg.SenderID)), nil
}

// fanOutMessage runs under the conversation lock so subscribers see commit order.
func (s *service) fanOutMessage(conv *Conversation, view *MessageView) {
	s.publisher.PublishToConversation(conv.ID, Event{
		Type:           EventNewMessage,
		ConversationID: conv.ID,
		Data:           view,
	}, Exclusion{})

	for _, participant := range conv.OtherParticipants(view.Sender.ID) {
		s.publisher.PublishToUser(participant, Event{
			Type:           EventMessageNotification,
			ConversationID: conv.ID,
			Data: &MessageNotification{
				Message:     view,
				UnreadCount: conv.UnreadFor(participant),
			},
		})
	}
}

// enqueueNotifications is best effort: failures are logged and counted only.
func (s *service) enqueueNotifications(ctx context.Context, conv *Conversation, view *MessageView) {
	if s.notifier == nil {
		return
	}
	preview := inbox.Preview(view.Body, len(view.Attachments))
	for _, participant := range conv.OtherParticipants(view.Sender.ID) {
		id, err := idgen.NewNotificationID()
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to generate notification id")
			metrics.NotificationsEnqueued.WithLabelValues("failed").Inc()
			continue
		}
		n := inbox.Notification{
			ID:             id,
			UserID:         participant,
			Kind:           inbox.KindNewMessage,
			ConversationID: conv.ID,
			MessageID:      view.ID,
			SenderID:       view.Sender.ID,
			SenderName:     view.Sender.DisplayName,
			Preview:        preview,
			CreatedAt:      view.CreatedAt,
		}
		if err := s.notifier.Enqueue(context.WithoutCancel(ctx), n); err != nil {
			s.log.Warn().Err(err).
				Str("conversation_id", conv.ID).
				Str("message_id", view.ID).
				Str("recipient_id", participant).
				Msg("failed to enqueue inbox notification")
			metrics.NotificationsEnqueued.WithLabelValues("failed").Inc()
			continue
		}
		metrics.NotificationsEnqueued.WithLabelValues("enqueued").Inc()
	}
}

// MarkRead flips every unread message from other senders to read, zeroes the
// caller's counter and tells the rest of the channel. Calling it again with
// nothing new changes nothing and broadcasts nothing.
func (s *service) MarkRead(ctx context.Context, input MarkReadInput) (*ReadReceipt, error) {
	ctx, span := observability.StartOperation(ctx, "mark_read", input.ConversationID)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	start := time.Now()

	var receipt *ReadReceipt
	err := s.withLock(ctx, lockKey(input.ConversationID), func() error {
		var changed bool
		err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			conv, err := s.conversations.FindByIDForUpdate(txCtx, input.ConversationID)
			if err != nil {
				return storeError(txCtx, err, "failed to load conversation")
			}
			if !conv.HasParticipant(input.UserID) {
				return errNotParticipant(txCtx)
			}

			now := s.now()
			count, err := s.messages.MarkReadFromOthers(txCtx, conv.ID, input.UserID, now)
			if err != nil {
				return storeError(txCtx, err, "failed to mark messages read")
			}

			cursor := ""
			if conv.LastMessageID != nil {
				cursor = *conv.LastMessageID
			}
			receipt = &ReadReceipt{ConversationID: conv.ID, UserID: input.UserID, ReadAt: now, Count: count}
			if count == 0 && conv.UnreadFor(input.UserID) == 0 {
				return nil
			}
			if err := s.conversations.MarkParticipantRead(txCtx, conv.ID, input.UserID, cursor, now); err != nil {
				return storeError(txCtx, err, "failed to reset unread counter")
			}
			changed = true
			return nil
		})
		if err != nil {
			return err
		}
		if changed {
			s.publisher.PublishToConversation(input.ConversationID, Event{
				Type:           EventMessagesRead,
				ConversationID: input.ConversationID,
				Data:           receipt,
			}, Exclusion{ConnectionID: input.ConnectionID})
		}
		return nil
	})
	err = deadline(ctx, err)
	metrics.RecordDispatch("mark_read", err, time.Since(start).Seconds())
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}
	return receipt, nil
}
