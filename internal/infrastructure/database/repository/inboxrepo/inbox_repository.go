package inboxrepo

import (
	"context"

	"gorm.io/gorm/clause"

	"jan-server/services/chat-api/internal/domain/inbox"
	"jan-server/services/chat-api/internal/infrastructure/database/dbschema"
	"jan-server/services/chat-api/internal/infrastructure/database/transaction"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type InboxGormRepository struct {
	db *transaction.Database
}

var _ inbox.Repository = (*InboxGormRepository)(nil)

func NewInboxGormRepository(db *transaction.Database) inbox.Repository {
	return &InboxGormRepository{db: db}
}

// Create implements inbox.Repository.
func (repo *InboxGormRepository) Create(ctx context.Context, n *inbox.Notification) error {
	model := dbschema.NewSchemaInboxNotification(n)
	err := repo.db.GetTx(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(model).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create inbox notification")
	}
	return nil
}

// ListByUser implements inbox.Repository.
func (repo *InboxGormRepository) ListByUser(ctx context.Context, userID string, filter inbox.Filter) ([]*inbox.Notification, error) {
	sql := repo.db.GetTx(ctx).Where("user_id = ?", userID)
	if filter.UnreadOnly {
		sql = sql.Where("read = ?", false)
	}
	if filter.Limit > 0 {
		sql = sql.Limit(filter.Limit)
	}

	var rows []*dbschema.InboxNotification
	if err := sql.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list inbox notifications")
	}
	result := make([]*inbox.Notification, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.EtoD())
	}
	return result, nil
}

// MarkRead implements inbox.Repository.
func (repo *InboxGormRepository) MarkRead(ctx context.Context, userID, id string) error {
	res := repo.db.GetTx(ctx).
		Model(&dbschema.InboxNotification{}).
		Where("id = ? AND user_id = ?", id, userID).
		UpdateColumn("read", true)
	if res.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, res.Error, "failed to mark inbox notification read")
	}
	if res.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
			"inbox notification not found", nil, "c81e4a27-6f3d-4b90-a5d2-0e9b7c1f3a64")
	}
	return nil
}
