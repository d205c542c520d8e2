package dto

import "github.com/qs3c/rizz_server/internal/model"

// GenerateRequest 生成请求，图片为 base64
type GenerateRequest struct {
	Mode          string `json:"mode" binding:"required,oneof=reply bio"`
	Text          string `json:"text" binding:"max=4000"`
	ImageBase64   string `json:"image_base64,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty" binding:"omitempty,oneof=image/jpeg image/png image/webp"`
	Style         string `json:"style,omitempty" binding:"omitempty,max=40"`
}

// GenerateResponse 生成结果
type GenerateResponse struct {
	Status      string                  `json:"status"` // success, blocked, failed
	Result      *model.GenerationResult `json:"result"`
	Cost        int                     `json:"cost"`
	Charged     bool                    `json:"charged"`
	Credits     int                     `json:"credits"`
	IsPremium   bool                    `json:"is_premium"`
	AdScheduled bool                    `json:"ad_scheduled"`
}

// PaywallInfo 额度不足时返回，前端据此弹出升级提示
type PaywallInfo struct {
	Hard        bool `json:"hard"`
	Credits     int  `json:"credits"`
	Cost        int  `json:"cost"`
	ShowPaywall bool `json:"show_paywall"`
}
