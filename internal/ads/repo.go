package ads

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/adboardhq/moderation-backend/internal/repo"
	dbpkg "github.com/adboardhq/moderation-backend/pkg/db"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
)

// Snapshot is an advertisement joined with its seller's verification flag,
// the payload the scoring collaborator consumes.
type Snapshot struct {
	ItemID           int64  `json:"item_id"`
	SellerID         int64  `json:"seller_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Category         int    `json:"category"`
	ImagesQty        int    `json:"images_qty"`
	IsVerifiedSeller bool   `json:"is_verified_seller"`
	IsClosed         bool   `json:"is_closed"`
}

// CloseResult reports what a cascade close removed.
type CloseResult struct {
	ItemID              int64
	ModerationResultIDs []int64
}

// Repository exposes persistence helpers for advertisements.
type Repository interface {
	Create(ctx context.Context, ad *models.Advertisement) error
	FindSnapshot(ctx context.Context, itemID int64) (*Snapshot, error)
	CloseTx(tx *gorm.DB, itemID int64) (*CloseResult, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns an advertisements repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

// Sentinel errors translated by the service layer.
var (
	ErrDuplicate      = errors.New("advertisement already exists")
	ErrSellerNotFound = errors.New("seller not found")
)

func (r *repositoryImpl) Create(ctx context.Context, ad *models.Advertisement) error {
	var sellerCount int64
	if err := r.DB(ctx).Model(&models.User{}).Where("id = ?", ad.SellerID).Count(&sellerCount).Error; err != nil {
		return err
	}
	if sellerCount == 0 {
		return ErrSellerNotFound
	}
	if err := r.DB(ctx).Create(ad).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "advertisements_pkey") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *repositoryImpl) FindSnapshot(ctx context.Context, itemID int64) (*Snapshot, error) {
	var snapshot Snapshot
	err := r.DB(ctx).
		Model(&models.Advertisement{}).
		Select("advertisements.item_id, advertisements.seller_id, advertisements.name, advertisements.description, advertisements.category, advertisements.images_qty, advertisements.is_closed, users.is_verified_seller").
		Joins("JOIN users ON users.id = advertisements.seller_id").
		Where("advertisements.item_id = ?", itemID).
		Take(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}

// CloseTx deletes the advertisement inside the supplied transaction. The FK
// cascade removes its moderation results, which cascade their ledger entries;
// the result ids are collected first so callers can invalidate caches.
func (r *repositoryImpl) CloseTx(tx *gorm.DB, itemID int64) (*CloseResult, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}

	var resultIDs []int64
	if err := tx.Model(&models.ModerationResult{}).
		Where("item_id = ?", itemID).
		Order("id ASC").
		Pluck("id", &resultIDs).Error; err != nil {
		return nil, err
	}

	deletion := tx.Where("item_id = ?", itemID).Delete(&models.Advertisement{})
	if deletion.Error != nil {
		return nil, deletion.Error
	}
	if deletion.RowsAffected == 0 {
		return nil, nil
	}

	return &CloseResult{ItemID: itemID, ModerationResultIDs: resultIDs}, nil
}
