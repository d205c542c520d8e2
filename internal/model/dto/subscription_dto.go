package dto

// SubscriptionEvent 应用商店回调事件
type SubscriptionEvent struct {
	ProfileID     string `json:"profile_id" binding:"required"`
	Event         string `json:"event" binding:"required,oneof=purchased renewed cancelled"`
	Plan          string `json:"plan" binding:"required"`
	Store         string `json:"store" binding:"required,oneof=app_store play_store web"`
	TransactionID string `json:"transaction_id" binding:"required,max=100"`
}

// SubscriptionInfo 订阅信息
type SubscriptionInfo struct {
	ProfileID string `json:"profile_id"`
	Plan      string `json:"plan"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}
