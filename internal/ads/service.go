package ads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/adboardhq/moderation-backend/pkg/db/models"
	pkgerrors "github.com/adboardhq/moderation-backend/pkg/errors"
	"github.com/adboardhq/moderation-backend/pkg/logger"
)

// txRunner is the transactional surface of pkg/db.Client used by the close flow.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// resultCache invalidates derived moderation state for a closed item. It is
// called before Close returns so no later read can observe a stale hit.
type resultCache interface {
	InvalidateItem(ctx context.Context, itemID int64) error
	InvalidateTasks(ctx context.Context, taskIDs []int64) error
}

// CreateAdInput captures the fields required to list an advertisement.
type CreateAdInput struct {
	ItemID      int64
	SellerID    int64
	Name        string
	Description string
	Category    int
	ImagesQty   int
}

// Service exposes advertisement operations.
type Service interface {
	Create(ctx context.Context, input CreateAdInput) (*models.Advertisement, error)
	GetSnapshot(ctx context.Context, itemID int64) (*Snapshot, error)
	Close(ctx context.Context, itemID int64) (*CloseResult, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	cache resultCache
	logg  *logger.Logger
}

// NewService builds an advertisements service.
func NewService(repo Repository, tx txRunner, cache resultCache, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("advertisements repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cache == nil {
		return nil, fmt.Errorf("result cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, cache: cache, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateAdInput) (*models.Advertisement, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}
	ad := &models.Advertisement{
		ItemID:      input.ItemID,
		SellerID:    input.SellerID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		ImagesQty:   input.ImagesQty,
	}
	if err := s.repo.Create(ctx, ad); err != nil {
		switch {
		case errors.Is(err, ErrSellerNotFound):
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller not found")
		case errors.Is(err, ErrDuplicate):
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "advertisement already exists")
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create advertisement")
		}
	}
	return ad, nil
}

func (s *service) GetSnapshot(ctx context.Context, itemID int64) (*Snapshot, error) {
	snapshot, err := s.repo.FindSnapshot(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load advertisement")
	}
	if snapshot == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "advertisement not found")
	}
	return snapshot, nil
}

// Close deletes the advertisement and its moderation history in one
// transaction, then invalidates cache entries before acknowledging the caller.
func (s *service) Close(ctx context.Context, itemID int64) (*CloseResult, error) {
	var result *CloseResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		closed, err := s.repo.CloseTx(tx, itemID)
		if err != nil {
			return err
		}
		result = closed
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close advertisement")
	}
	if result == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "advertisement not found")
	}

	invalidationErr := multierr.Combine(
		s.cache.InvalidateItem(ctx, itemID),
		s.cache.InvalidateTasks(ctx, result.ModerationResultIDs),
	)
	if invalidationErr != nil {
		// The store is already consistent; a cache miss is the worst outcome.
		logCtx := s.logg.WithItemID(ctx, itemID)
		s.logg.Error(logCtx, "cache invalidation incomplete after close", invalidationErr)
	}

	return result, nil
}

func validateCreateInput(input CreateAdInput) error {
	details := map[string]string{}
	if input.ItemID < 0 {
		details["item_id"] = "must be non-negative"
	}
	if input.SellerID < 0 {
		details["seller_id"] = "must be non-negative"
	}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "is required"
	}
	if strings.TrimSpace(input.Description) == "" {
		details["description"] = "is required"
	}
	if input.ImagesQty < 0 {
		details["images_qty"] = "must be non-negative"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}
