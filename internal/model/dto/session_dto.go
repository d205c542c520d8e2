package dto

// StartSessionRequest 开启会话请求
type StartSessionRequest struct {
	Platform string `json:"platform" binding:"required,oneof=web ios android"`
	DeviceID string `json:"device_id,omitempty" binding:"omitempty,max=64"`
}

// SessionInfo 会话信息
type SessionInfo struct {
	SessionID string       `json:"session_id"`
	Platform  string       `json:"platform"`
	StartedAt string       `json:"started_at"`
	Profile   *ProfileInfo `json:"profile"`
}

// BannerRequest 横幅广告显示/隐藏
type BannerRequest struct {
	Visible bool `json:"visible"`
}
