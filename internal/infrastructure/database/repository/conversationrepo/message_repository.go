package conversationrepo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/infrastructure/database/dbschema"
	"jan-server/services/chat-api/internal/infrastructure/database/transaction"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type MessageGormRepository struct {
	db *transaction.Database
}

var _ conversation.MessageRepository = (*MessageGormRepository)(nil)

func NewMessageGormRepository(db *transaction.Database) conversation.MessageRepository {
	return &MessageGormRepository{db}
}

// Create implements conversation.MessageRepository.
func (repo *MessageGormRepository) Create(ctx context.Context, msg *conversation.Message) error {
	model, err := dbschema.NewSchemaMessage(msg)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to encode message")
	}
	if err := repo.db.GetTx(ctx).Create(model).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create message")
	}
	return nil
}

// FindByID implements conversation.MessageRepository.
func (repo *MessageGormRepository) FindByID(ctx context.Context, id string) (*conversation.Message, error) {
	var model dbschema.Message
	if err := repo.db.GetTx(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find message by ID")
	}
	msg, err := model.EtoD()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode message")
	}
	return msg, nil
}

// ListByConversation implements conversation.MessageRepository.
func (repo *MessageGormRepository) ListByConversation(ctx context.Context, conversationID string, filter conversation.MessageFilter) ([]*conversation.Message, error) {
	db := repo.db.GetTx(ctx)
	sql := db.Where("conversation_id = ?", conversationID)
	if filter.Before != "" {
		sql = sql.Where("seq < (?)", repo.seqOf(db, conversationID, filter.Before))
	}
	if filter.Limit > 0 {
		sql = sql.Limit(filter.Limit)
	}

	var rows []*dbschema.Message
	if err := sql.Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list messages")
	}
	result := make([]*conversation.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.EtoD()
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode message")
		}
		result = append(result, msg)
	}
	return result, nil
}

// MarkReadFromOthers implements conversation.MessageRepository.
func (repo *MessageGormRepository) MarkReadFromOthers(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	res := repo.db.GetTx(ctx).
		Model(&dbschema.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read = ?", conversationID, readerID, false).
		Updates(map[string]any{
			"read":    true,
			"read_at": at,
		})
	if res.Error != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, "failed to mark messages read")
	}
	return res.RowsAffected, nil
}

// CountFromOthersAfter implements conversation.MessageRepository.
func (repo *MessageGormRepository) CountFromOthersAfter(ctx context.Context, conversationID, userID, cursor string) (int64, error) {
	db := repo.db.GetTx(ctx)
	sql := db.Model(&dbschema.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID)
	if cursor != "" {
		sql = sql.Where("seq > COALESCE((?), 0)", repo.seqOf(db, conversationID, cursor))
	}
	var count int64
	if err := sql.Count(&count).Error; err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to count messages")
	}
	return count, nil
}

// seqOf is a subquery for the sequence of messageID within the conversation.
// It yields NULL for an unknown id.
func (repo *MessageGormRepository) seqOf(db *gorm.DB, conversationID, messageID string) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Model(&dbschema.Message{}).
		Select("seq").
		Where("conversation_id = ? AND id = ?", conversationID, messageID)
}
