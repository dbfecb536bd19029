package conversationrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/infrastructure/database/dbschema"
	"jan-server/services/chat-api/internal/infrastructure/database/transaction"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type ConversationGormRepository struct {
	db *transaction.Database
}

var _ conversation.ConversationRepository = (*ConversationGormRepository)(nil)

func NewConversationGormRepository(db *transaction.Database) conversation.ConversationRepository {
	return &ConversationGormRepository{db}
}

// Create implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) Create(ctx context.Context, conv *conversation.Conversation) error {
	model := dbschema.NewSchemaConversation(conv)
	err := repo.db.GetTx(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
			"conversation already exists for participants and listing", err, "5e2b7d90-3c41-4f8a-b6d2-91a7e0c4f3b5")
	}
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create conversation")
	}
	return nil
}

// FindByID implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByID(ctx context.Context, id string) (*conversation.Conversation, error) {
	var model dbschema.Conversation
	err := repo.db.GetTx(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find conversation by ID")
	}
	return model.EtoD(), nil
}

// FindByIDForUpdate implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByIDForUpdate(ctx context.Context, id string) (*conversation.Conversation, error) {
	var model dbschema.Conversation
	err := repo.db.GetTx(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to lock conversation")
	}
	if err := repo.db.GetTx(ctx).
		Where("conversation_id = ?", id).
		Find(&model.Participants).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load participants")
	}
	return model.EtoD(), nil
}

// FindByParticipantKey implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByParticipantKey(ctx context.Context, participantKey string, listingID *string) (*conversation.Conversation, error) {
	var model dbschema.Conversation
	err := repo.db.GetTx(ctx).
		Preload("Participants").
		Where("participant_key = ? AND listing_id = ?", participantKey, conversation.ListingKey(listingID)).
		First(&model).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find conversation by participants")
	}
	return model.EtoD(), nil
}

// FindByFilter implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) FindByFilter(ctx context.Context, filter conversation.ConversationFilter, pagination *conversation.Pagination) ([]*conversation.Conversation, error) {
	db := repo.db.GetTx(ctx)
	sql := db.Model(&dbschema.Conversation{}).Preload("Participants")
	if filter.ParticipantID != "" {
		members := db.Model(&dbschema.ConversationParticipant{}).
			Select("conversation_id").
			Where("user_id = ?", filter.ParticipantID)
		sql = sql.Where("id IN (?)", members)
	}
	if !filter.IncludeArchived {
		sql = sql.Where("active = ?", true)
	}
	if filter.UpdatedSince != nil {
		sql = sql.Where("updated_at >= ?", *filter.UpdatedSince)
	}
	sql = sql.Order("COALESCE(last_message_at, created_at) DESC").Order("id DESC")
	if pagination != nil {
		if pagination.Limit > 0 {
			sql = sql.Limit(pagination.Limit)
		}
		if pagination.Offset > 0 {
			sql = sql.Offset(pagination.Offset)
		}
	}

	var rows []*dbschema.Conversation
	if err := sql.Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find conversations")
	}
	result := make([]*conversation.Conversation, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.EtoD())
	}
	return result, nil
}

// RecordMessage implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) RecordMessage(ctx context.Context, msg *conversation.Message) error {
	res := repo.db.GetTx(ctx).
		Model(&dbschema.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Updates(map[string]any{
			"last_message_id":  msg.ID,
			"last_message_at":  msg.CreatedAt,
			"last_message_seq": msg.Seq,
			"active":           true,
			"updated_at":       msg.CreatedAt,
		})
	return rowsOrNotFound(ctx, res, "failed to record last message")
}

// IncrementUnread implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) IncrementUnread(ctx context.Context, conversationID, senderID string) error {
	err := repo.db.GetTx(ctx).
		Model(&dbschema.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, senderID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to increment unread counters")
	}
	return nil
}

// MarkParticipantRead implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) MarkParticipantRead(ctx context.Context, conversationID, userID, cursor string, at time.Time) error {
	res := repo.db.GetTx(ctx).
		Model(&dbschema.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]any{
			"unread_count":         0,
			"last_read_message_id": cursor,
			"last_read_at":         at,
		})
	return rowsOrNotFound(ctx, res, "failed to mark participant read")
}

// SetUnread implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) SetUnread(ctx context.Context, conversationID, userID string, count int) error {
	res := repo.db.GetTx(ctx).
		Model(&dbschema.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("unread_count", count)
	return rowsOrNotFound(ctx, res, "failed to set unread counter")
}

// SetActive implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) SetActive(ctx context.Context, conversationID string, active bool) error {
	res := repo.db.GetTx(ctx).
		Model(&dbschema.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"active":     active,
			"updated_at": time.Now().UTC(),
		})
	return rowsOrNotFound(ctx, res, "failed to update conversation state")
}

// SumUnread implements conversation.ConversationRepository.
func (repo *ConversationGormRepository) SumUnread(ctx context.Context, userID string) (int, error) {
	db := repo.db.GetTx(ctx)
	active := db.Model(&dbschema.Conversation{}).Select("id").Where("active = ?", true)

	var total int64
	err := db.Model(&dbschema.ConversationParticipant{}).
		Select("COALESCE(SUM(unread_count), 0)").
		Where("user_id = ? AND conversation_id IN (?)", userID, active).
		Scan(&total).Error
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to sum unread counters")
	}
	return int(total), nil
}

func rowsOrNotFound(ctx context.Context, res *gorm.DB, message string) error {
	if res.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, message)
	}
	if res.RowsAffected == 0 {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, gorm.ErrRecordNotFound, message)
	}
	return nil
}
