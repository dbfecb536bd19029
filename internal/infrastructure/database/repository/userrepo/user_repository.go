package userrepo

import (
	"context"

	"jan-server/services/chat-api/internal/domain/user"
	"jan-server/services/chat-api/internal/infrastructure/database/dbschema"
	"jan-server/services/chat-api/internal/infrastructure/database/transaction"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type UserGormRepository struct {
	db *transaction.Database
}

var _ user.Repository = (*UserGormRepository)(nil)

func NewUserGormRepository(db *transaction.Database) user.Repository {
	return &UserGormRepository{db: db}
}

func (repo *UserGormRepository) FindByID(ctx context.Context, id string) (*user.User, error) {
	var entity dbschema.User
	if err := repo.db.GetTx(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find user by ID")
	}
	return entity.EtoD(), nil
}

func (repo *UserGormRepository) FindByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var entities []*dbschema.User
	if err := repo.db.GetTx(ctx).Where("id IN ?", ids).Find(&entities).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeTransient,
			"failed to find users by ID",
			err,
			"7d1f0a3c-92e4-4b6d-8c5a-e3f1b2d4a690",
		)
	}
	users := make([]*user.User, 0, len(entities))
	for _, e := range entities {
		users = append(users, e.EtoD())
	}
	return users, nil
}
