package model

import (
	"time"
)

const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ProfileID     string    `gorm:"size:64;not null;index" json:"profile_id"`
	Plan          string    `gorm:"size:20;not null" json:"plan"`  // weekly, monthly, yearly
	Store         string    `gorm:"size:20;not null" json:"store"` // app_store, play_store, web
	TransactionID string    `gorm:"size:100;uniqueIndex" json:"transaction_id"`
	StartedAt     time.Time `gorm:"not null" json:"started_at"`
	ExpiresAt     time.Time `gorm:"not null;index" json:"expires_at"`
	Status        string    `gorm:"size:20;default:active;index" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
