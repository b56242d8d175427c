package models

import "time"

// Advertisement is a seller listing. item_id is the primary moderation identity;
// deleting the row cascades to its moderation results and their ledger entries.
type Advertisement struct {
	ItemID      int64     `gorm:"column:item_id;primaryKey" json:"item_id"`
	SellerID    int64     `gorm:"column:seller_id;not null;index" json:"seller_id"`
	Name        string    `gorm:"column:name;type:text;not null" json:"name"`
	Description string    `gorm:"column:description;type:text;not null" json:"description"`
	Category    int       `gorm:"column:category;not null" json:"category"`
	ImagesQty   int       `gorm:"column:images_qty;not null" json:"images_qty"`
	IsClosed    bool      `gorm:"column:is_closed;not null;default:false" json:"is_closed"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

func (Advertisement) TableName() string { return "advertisements" }
