package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/internal/model"
)

type SavedItemRepository struct {
	db *gorm.DB
}

func NewSavedItemRepository(db *gorm.DB) *SavedItemRepository {
	return &SavedItemRepository{db: db}
}

func (r *SavedItemRepository) Create(item *model.SavedItem) error {
	return r.db.Create(item).Error
}

// ListByProfileID 按创建时间倒序
func (r *SavedItemRepository) ListByProfileID(profileID string, limit int) ([]*model.SavedItem, error) {
	var items []*model.SavedItem
	query := r.db.Where("profile_id = ?", profileID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&items).Error
	return items, err
}

// Delete 只删除属于 profileID 的记录，返回是否删除成功
func (r *SavedItemRepository) Delete(id, profileID string) (bool, error) {
	result := r.db.Where("id = ? AND profile_id = ?", id, profileID).Delete(&model.SavedItem{})
	return result.RowsAffected > 0, result.Error
}
