package dto

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=64"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 注册/登录响应
type AuthResponse struct {
	Token   string       `json:"token"`
	Profile *ProfileInfo `json:"profile"`
}

// ProfileInfo 额度与会员信息（返回给前端）
type ProfileInfo struct {
	ID               string `json:"id"`
	Email            string `json:"email,omitempty"`
	Guest            bool   `json:"guest"`
	Credits          int    `json:"credits"`
	DailyAllowance   int    `json:"daily_allowance"`
	IsPremium        bool   `json:"is_premium"`
	PremiumExpiresAt string `json:"premium_expires_at,omitempty"`
	LastDailyReset   string `json:"last_daily_reset"`
	NextResetAt      string `json:"next_reset_at"`
}
