package conversation

import (
	"context"
	"time"

	"jan-server/services/chat-api/internal/infrastructure/metrics"
)

const reconcileBatchSize = 200

// ReconcileUnread recomputes the unread counters of conversations active since
// the given time from persisted messages and returns how many counters changed.
// It repairs drift left by writers that bypass the dispatcher.
func (s *service) ReconcileUnread(ctx context.Context, since time.Time) (int, error) {
	corrected := 0
	for offset := 0; ; offset += reconcileBatchSize {
		batch, err := s.conversations.FindByFilter(ctx, ConversationFilter{
			IncludeArchived: true,
			UpdatedSince:    &since,
		}, &Pagination{Limit: reconcileBatchSize, Offset: offset})
		if err != nil {
			return corrected, storeError(ctx, err, "failed to list conversations for reconciliation")
		}

		for _, conv := range batch {
			n, err := s.reconcileConversation(ctx, conv.ID)
			if err != nil {
				s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to reconcile unread counters")
				continue
			}
			corrected += n
		}
		if len(batch) < reconcileBatchSize {
			return corrected, nil
		}
	}
}

func (s *service) reconcileConversation(ctx context.Context, conversationID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	corrected := 0
	err := s.withLock(ctx, lockKey(conversationID), func() error {
		return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			conv, err := s.conversations.FindByIDForUpdate(txCtx, conversationID)
			if err != nil {
				return storeError(txCtx, err, "failed to load conversation")
			}
			for _, participant := range conv.Participants {
				actual, err := s.messages.CountFromOthersAfter(txCtx, conv.ID, participant, conv.ReadCursors[participant])
				if err != nil {
					return storeError(txCtx, err, "failed to count unread messages")
				}
				if int(actual) == conv.UnreadFor(participant) {
					continue
				}
				if err := s.conversations.SetUnread(txCtx, conv.ID, participant, int(actual)); err != nil {
					return storeError(txCtx, err, "failed to correct unread counter")
				}
				s.log.Warn().
					Str("conversation_id", conv.ID).
					Str("user_id", participant).
					Int("stored", conv.UnreadFor(participant)).
					Int64("actual", actual).
					Msg("unread counter corrected")
				corrected++
			}
			return nil
		})
	})
	if err != nil {
		return 0, deadline(ctx, err)
	}
	metrics.ReconciledCounters.Add(float64(corrected))
	return corrected, nil
}
