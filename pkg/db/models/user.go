package models

import "time"

// User is a seller account. Identity is client-assigned and immutable.
type User struct {
	ID               int64     `gorm:"column:id;primaryKey" json:"id"`
	IsVerifiedSeller bool      `gorm:"column:is_verified_seller;not null;default:false" json:"is_verified_seller"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

func (User) TableName() string { return "users" }
