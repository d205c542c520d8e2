package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/internal/model"
)

// TestProfile 创建测试账户，默认 5 点额度、今日已重置
func TestProfile(t *testing.T, db *gorm.DB, opts ...func(*model.Profile)) *model.Profile {
	t.Helper()

	email := fmt.Sprintf("test_%d@example.com", time.Now().UnixNano())
	profile := &model.Profile{
		ID:             uuid.NewString(),
		Email:          &email,
		Credits:        5,
		LastDailyReset: time.Now().Format("2006-01-02"),
	}

	for _, opt := range opts {
		opt(profile)
	}

	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("Failed to create test profile: %v", err)
	}

	return profile
}

// WithProfileID 设置账户 ID
func WithProfileID(id string) func(*model.Profile) {
	return func(p *model.Profile) {
		p.ID = id
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.Profile) {
	return func(p *model.Profile) {
		p.Email = &email
	}
}

// WithPasswordHash 设置密码哈希
func WithPasswordHash(hash string) func(*model.Profile) {
	return func(p *model.Profile) {
		p.PasswordHash = &hash
	}
}

// WithCredits 设置余额
func WithCredits(credits int) func(*model.Profile) {
	return func(p *model.Profile) {
		p.Credits = credits
	}
}

// WithPremium 设置会员
func WithPremium(premium bool) func(*model.Profile) {
	return func(p *model.Profile) {
		p.IsPremium = premium
	}
}

// WithLastDailyReset 设置上次重置日期
func WithLastDailyReset(date string) func(*model.Profile) {
	return func(p *model.Profile) {
		p.LastDailyReset = date
	}
}

// TestSavedItem 创建测试收藏
func TestSavedItem(t *testing.T, db *gorm.DB, profileID, content string) *model.SavedItem {
	t.Helper()

	item := &model.SavedItem{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Content:   content,
		Category:  model.CategoryReply,
	}

	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to create test saved item: %v", err)
	}

	return item
}

// TestSubscription 创建测试订阅
func TestSubscription(t *testing.T, db *gorm.DB, profileID string, expiresAt time.Time) *model.Subscription {
	t.Helper()

	sub := &model.Subscription{
		ProfileID:     profileID,
		Plan:          "monthly",
		Store:         "app_store",
		TransactionID: uuid.NewString(),
		StartedAt:     expiresAt.Add(-30 * 24 * time.Hour),
		ExpiresAt:     expiresAt,
		Status:        model.SubscriptionActive,
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithPremiumExpiresAt 设置会员到期时间
func WithPremiumExpiresAt(t time.Time) func(*model.Profile) {
	return func(p *model.Profile) {
		p.IsPremium = true
		p.PremiumExpiresAt = &t
	}
}
