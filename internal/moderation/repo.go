package moderation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	baserepo "github.com/adboardhq/moderation-backend/internal/repo"
	dbpkg "github.com/adboardhq/moderation-backend/pkg/db"
	"github.com/adboardhq/moderation-backend/pkg/db/models"
	"github.com/adboardhq/moderation-backend/pkg/enums"
	"github.com/adboardhq/moderation-backend/pkg/pagination"
)

// Sentinel errors translated by the service layer.
var (
	// ErrAlreadyPending means the item already holds the single pending slot.
	ErrAlreadyPending = errors.New("item already has a pending moderation task")
	// ErrDuplicateEvent means this event id or result id is already in the ledger.
	ErrDuplicateEvent = errors.New("event already recorded in the ledger")
	// ErrResultGone means the moderation result row no longer exists, which
	// happens when the advertisement was closed mid-flight.
	ErrResultGone = errors.New("moderation result no longer exists")
	// ErrNotFound is returned by point lookups.
	ErrNotFound = errors.New("moderation result not found")
)

// ListQuery narrows a moderation history listing.
type ListQuery struct {
	ItemID int64
	Limit  int
	Cursor *pagination.Cursor
}

// Repository exposes persistence for moderation results and the dedup ledger.
type Repository interface {
	ReservePending(ctx context.Context, itemID int64) (*models.ModerationResult, error)
	GetByID(ctx context.Context, id int64) (*models.ModerationResult, error)
	LatestByItem(ctx context.Context, itemID int64) (*models.ModerationResult, error)
	List(ctx context.Context, query ListQuery) ([]models.ModerationResult, *pagination.Cursor, error)
	CompleteTx(tx *gorm.DB, id int64, isViolation bool, probability float64, processedAt time.Time) (bool, error)
	FailTx(tx *gorm.DB, id int64, message string, processedAt time.Time) (bool, error)
	InsertProcessedEventTx(tx *gorm.DB, event models.ProcessedEvent) error
	SeenEvent(ctx context.Context, eventID string) (bool, error)
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.ModerationResult, error)
	PruneLedger(ctx context.Context, before time.Time) (int64, error)
}

type repositoryImpl struct {
	baserepo.Base
}

// NewRepository returns a moderation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: baserepo.NewBase(db)}
}

// ReservePending inserts a new pending row for the item. The partial unique
// index on (item_id) WHERE status = 'pending' is the concurrency guard: losing
// the race surfaces here as ErrAlreadyPending.
func (r *repositoryImpl) ReservePending(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
	row := models.ModerationResult{
		ItemID: itemID,
		Status: enums.ModerationPending,
	}
	if err := r.DB(ctx).Create(&row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_moderation_results_pending") {
			return nil, ErrAlreadyPending
		}
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) GetByID(ctx context.Context, id int64) (*models.ModerationResult, error) {
	var row models.ModerationResult
	err := r.DB(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) LatestByItem(ctx context.Context, itemID int64) (*models.ModerationResult, error) {
	var row models.ModerationResult
	err := r.DB(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) List(ctx context.Context, query ListQuery) ([]models.ModerationResult, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(query.Limit)
	limit := pagination.LimitWithBuffer(query.Limit)

	q := r.DB(ctx).Model(&models.ModerationResult{}).Where("item_id = ?", query.ItemID)
	if query.Cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []models.ModerationResult
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

// CompleteTx moves a pending row to completed. The status guard in the WHERE
// clause keeps a late consumer from overwriting a verdict another path already
// committed; callers treat zero rows affected as a stale update.
func (r *repositoryImpl) CompleteTx(tx *gorm.DB, id int64, isViolation bool, probability float64, processedAt time.Time) (bool, error) {
	result := tx.Model(&models.ModerationResult{}).
		Where("id = ? AND status = ?", id, enums.ModerationPending).
		Updates(map[string]any{
			"status":       enums.ModerationCompleted,
			"is_violation": isViolation,
			"probability":  probability,
			"processed_at": processedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) FailTx(tx *gorm.DB, id int64, message string, processedAt time.Time) (bool, error) {
	result := tx.Model(&models.ModerationResult{}).
		Where("id = ? AND status = ?", id, enums.ModerationPending).
		Updates(map[string]any{
			"status":        enums.ModerationFailed,
			"error_message": message,
			"processed_at":  processedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// InsertProcessedEventTx writes the dedup ledger row. A unique violation on
// either the event id or the result id means another delivery of this task has
// already committed; a foreign key violation means the result row was cascade
// deleted by an advertisement close.
func (r *repositoryImpl) InsertProcessedEventTx(tx *gorm.DB, event models.ProcessedEvent) error {
	if err := tx.Create(&event).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "processed_events_pkey") ||
			dbpkg.IsUniqueViolation(err, "ux_processed_events_result") {
			return ErrDuplicateEvent
		}
		if dbpkg.IsForeignKeyViolation(err) {
			return ErrResultGone
		}
		return err
	}
	return nil
}

func (r *repositoryImpl) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.ProcessedEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindStalePending returns pending rows created before the cutoff. A pending
// row never has a ledger entry, so age alone identifies tasks whose publish
// was lost or whose consumer never committed.
func (r *repositoryImpl) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.ModerationResult, error) {
	var rows []models.ModerationResult
	err := r.DB(ctx).
		Where("status = ? AND created_at < ?", enums.ModerationPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) PruneLedger(ctx context.Context, before time.Time) (int64, error) {
	result := r.DB(ctx).
		Where("created_at < ?", before).
		Delete(&models.ProcessedEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
