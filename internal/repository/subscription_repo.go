package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByTransactionID(transactionID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("transaction_id = ?", transactionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByProfileID 最晚到期的有效订阅
func (r *SubscriptionRepository) GetActiveByProfileID(profileID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("profile_id = ? AND status = ?", profileID, model.SubscriptionActive).
		Order("expires_at DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&model.Subscription{}).Where("id = ?", id).Update("status", status).Error
}

// CancelActive 取消某账户的全部有效订阅
func (r *SubscriptionRepository) CancelActive(profileID string) error {
	return r.db.Model(&model.Subscription{}).
		Where("profile_id = ? AND status = ?", profileID, model.SubscriptionActive).
		Update("status", model.SubscriptionCancelled).Error
}

// ListExpired 到期但仍标记为 active 的订阅
func (r *SubscriptionRepository) ListExpired(now time.Time) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.Where("status = ? AND expires_at <= ?", model.SubscriptionActive, now).Find(&subs).Error
	return subs, err
}

// HasActive 是否还有未到期订阅
func (r *SubscriptionRepository) HasActive(profileID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&model.Subscription{}).
		Where("profile_id = ? AND status = ? AND expires_at > ?", profileID, model.SubscriptionActive, now).
		Count(&count).Error
	return count > 0, err
}

// WithTx 在事务中复用仓储
func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}
