package model

import (
	"time"
)

// GuestID 未登录用户的哨兵 ID，数据只保存在访客 KV 存储中
const GuestID = "guest"

type Profile struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	Email            *string    `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	PasswordHash     *string    `gorm:"size:255" json:"-"`
	Credits          int        `gorm:"not null" json:"credits"`
	IsPremium        bool       `gorm:"default:false" json:"is_premium"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
	LastDailyReset   string     `gorm:"size:10;index" json:"last_daily_reset"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// Clone 返回副本，避免调用方修改共享快照
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Identity 请求方身份。UserID 为 GuestID 时按 DeviceID 路由到访客存储
type Identity struct {
	UserID   string
	DeviceID string
}

func (i Identity) IsGuest() bool {
	return i.UserID == GuestID
}

// Key 唯一标识一个账本（访客按设备区分）
func (i Identity) Key() string {
	if i.IsGuest() {
		return GuestID + ":" + i.DeviceID
	}
	return i.UserID
}

func GuestIdentity(deviceID string) Identity {
	return Identity{UserID: GuestID, DeviceID: deviceID}
}

func UserIdentity(userID string) Identity {
	return Identity{UserID: userID}
}
