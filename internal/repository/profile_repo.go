package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/rizz_server/internal/model"
)

// ErrInsufficientCredits 原子扣减会让余额变为负数
var ErrInsufficientCredits = errors.New("insufficient credits")

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(profile *model.Profile) error {
	return r.db.Create(profile).Error
}

// CreateIfAbsent 不存在时插入，存在时保持原记录；返回库中的最终记录
func (r *ProfileRepository) CreateIfAbsent(profile *model.Profile) (*model.Profile, error) {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(profile).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(profile.ID)
}

func (r *ProfileRepository) GetByID(id string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.Where("id = ?", id).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) GetByEmail(email string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.Where("email = ?", email).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Profile{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

// SetCredits 直接覆盖余额（后写覆盖先写）
func (r *ProfileRepository) SetCredits(id string, credits int) error {
	if credits < 0 {
		credits = 0
	}
	return r.db.Model(&model.Profile{}).Where("id = ?", id).
		UpdateColumn("credits", credits).Error
}

// ResetDaily 当日首次读取时补满额度。条件更新保证同一天只补一次
func (r *ProfileRepository) ResetDaily(id string, allowance int, today string) (bool, error) {
	result := r.db.Model(&model.Profile{}).
		Where("id = ? AND (last_daily_reset IS NULL OR last_daily_reset <> ?)", id, today).
		UpdateColumns(map[string]interface{}{
			"credits":          allowance,
			"last_daily_reset": today,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ResetAllDaily 批量补满所有尚未在 today 重置过的账户
func (r *ProfileRepository) ResetAllDaily(allowance int, today string) (int64, error) {
	result := r.db.Model(&model.Profile{}).
		Where("last_daily_reset IS NULL OR last_daily_reset <> ?", today).
		UpdateColumns(map[string]interface{}{
			"credits":          allowance,
			"last_daily_reset": today,
		})
	return result.RowsAffected, result.Error
}

// DebitCredits 服务端原子扣减，余额不足时返回 ErrInsufficientCredits
func (r *ProfileRepository) DebitCredits(id string, cost int) (int, error) {
	var balance int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Profile{}).
			Where("id = ? AND credits >= ?", id, cost).
			UpdateColumn("credits", gorm.Expr("credits - ?", cost))
		if result.Error != nil {
			return result.Error
		}

		var p model.Profile
		if err := tx.Select("credits").Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		balance = p.Credits

		if result.RowsAffected == 0 {
			return ErrInsufficientCredits
		}
		return nil
	})
	return balance, err
}

// RefundCredits 原子退还
func (r *ProfileRepository) RefundCredits(id string, amount int) (int, error) {
	var balance int
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Profile{}).Where("id = ?", id).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var p model.Profile
		if err := tx.Select("credits").Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		balance = p.Credits
		return nil
	})
	return balance, err
}

func (r *ProfileRepository) SetPremium(id string, premium bool, expiresAt *time.Time) error {
	return r.db.Model(&model.Profile{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_premium":         premium,
		"premium_expires_at": expiresAt,
	}).Error
}

// WithTx 在事务中复用仓储
func (r *ProfileRepository) WithTx(tx *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: tx}
}
