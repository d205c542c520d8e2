package model

import (
	"time"
)

const (
	CategoryReply = "reply"
	CategoryBio   = "bio"
)

type SavedItem struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ProfileID string    `gorm:"size:64;not null;index" json:"profile_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Category  string    `gorm:"size:20;not null" json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

func (SavedItem) TableName() string {
	return "saved_items"
}
