package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/adboardhq/moderation-backend/pkg/db/models"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
)

// Service exposes seller account operations.
type Service interface {
	Create(ctx context.Context, input CreateUserInput) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// CreateUserInput carries the client-assigned identity and verification flag.
type CreateUserInput struct {
	ID               int64
	IsVerifiedSeller bool
}

type service struct {
	repo Repository
}

// NewService builds a users service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	if input.ID < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id must be non-negative")
	}
	user := &models.User{
		ID:               input.ID,
		IsVerifiedSeller: input.IsVerifiedSeller,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "user already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	return user, nil
}

func (s *service) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}
