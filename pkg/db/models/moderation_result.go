package models

import (
	"time"

	"github.com/adboardhq/moderation-backend/pkg/enums"
)

// ModerationResult is one moderation task for an advertisement. At most one
// pending row may exist per item (partial unique index); terminal rows
// accumulate as history.
type ModerationResult struct {
	ID           int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	ItemID       int64                  `gorm:"column:item_id;not null;index"`
	Status       enums.ModerationStatus `gorm:"column:status;type:text;not null"`
	IsViolation  *bool                  `gorm:"column:is_violation"`
	Probability  *float64               `gorm:"column:probability"`
	ErrorMessage *string                `gorm:"column:error_message"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt  *time.Time             `gorm:"column:processed_at"`
}

func (ModerationResult) TableName() string { return "moderation_results" }
