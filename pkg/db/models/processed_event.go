package models

import "time"

// ProcessedEvent is the dedup ledger: one row per consumed queue message,
// mapped one-to-one onto the moderation result it committed. The unique
// event_id and unique moderation_result_id together make the worker's commit
// exactly-once under at-least-once delivery.
type ProcessedEvent struct {
	EventID            string    `gorm:"column:event_id;type:uuid;primaryKey"`
	ItemID             int64     `gorm:"column:item_id;not null"`
	ModerationResultID int64     `gorm:"column:moderation_result_id;not null;uniqueIndex:ux_processed_events_result"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
