package dto

// CreateSavedItemRequest 收藏请求
type CreateSavedItemRequest struct {
	Content  string `json:"content" binding:"required,max=4000"`
	Category string `json:"category" binding:"required,oneof=reply bio"`
}

// SavedItemInfo 收藏项
type SavedItemInfo struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	CreatedAt string `json:"created_at"`
}
