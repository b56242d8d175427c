package users

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/adboardhq/moderation-backend/internal/repo"
	dbpkg "github.com/adboardhq/moderation-backend/pkg/db"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
)

// Repository exposes persistence helpers for seller accounts.
type Repository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a users repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

// ErrDuplicate signals the user id is already taken.
var ErrDuplicate = errors.New("user already exists")

func (r *repositoryImpl) Create(ctx context.Context, user *models.User) error {
	if err := r.DB(ctx).Create(user).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "users_pkey") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.DB(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
