package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/pkg/kv"
	"github.com/qs3c/rizz_server/internal/repository"
)

// ErrInsufficientCredits 存储层拒绝扣减（余额不会低于 0）
var ErrInsufficientCredits = repository.ErrInsufficientCredits

// ProfileStore 额度账本的唯一数据源，屏蔽访客（KV）与登录用户（数据库）两种存储
type ProfileStore interface {
	// Load 读取或创建账户；跨日首次读取时先补满额度，不会返回过期的重置日期
	Load(ctx context.Context, id model.Identity) (*model.Profile, error)
	// CommitCredits 覆盖写入余额，后写覆盖先写
	CommitCredits(ctx context.Context, id model.Identity, credits int) error
	// Debit 原子扣减，返回扣减后的余额
	Debit(ctx context.Context, id model.Identity, cost int) (int, error)
	// Refund 原子退还，返回退还后的余额
	Refund(ctx context.Context, id model.Identity, amount int) (int, error)
}

type CreditStore struct {
	profileRepo *repository.ProfileRepository
	guests      *kv.Store
	clock       clock.Clock
	allowance   int
	logger      *slog.Logger
}

func NewCreditStore(
	profileRepo *repository.ProfileRepository,
	guests *kv.Store,
	clk clock.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *CreditStore {
	allowance := cfg.Credits.DailyAllowance
	if allowance <= 0 {
		allowance = 5
	}
	return &CreditStore{
		profileRepo: profileRepo,
		guests:      guests,
		clock:       clk,
		allowance:   allowance,
		logger:      logger,
	}
}

func guestProfileKey(id model.Identity) string {
	return id.DeviceID + ":profile"
}

func (s *CreditStore) newProfile(id string) *model.Profile {
	now := s.clock.Now()
	return &model.Profile{
		ID:             id,
		Credits:        s.allowance,
		LastDailyReset: now.UTC().Format(clock.DateLayout),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// applyDailyReset 返回是否发生了重置
func (s *CreditStore) applyDailyReset(p *model.Profile, today string) bool {
	if p.LastDailyReset == today {
		return false
	}
	p.Credits = s.allowance
	p.LastDailyReset = today
	p.UpdatedAt = s.clock.Now()
	return true
}

func (s *CreditStore) Load(ctx context.Context, id model.Identity) (*model.Profile, error) {
	if id.IsGuest() {
		return s.loadGuest(ctx, id), nil
	}
	return s.loadUser(id), nil
}

func (s *CreditStore) loadGuest(ctx context.Context, id model.Identity) *model.Profile {
	today := clock.Today(s.clock)

	var loaded *model.Profile
	err := s.guests.Update(ctx, guestProfileKey(id), func(current []byte) ([]byte, error) {
		p, err := s.decodeGuest(current)
		if err != nil {
			return nil, err
		}
		s.applyDailyReset(p, today)
		loaded = p
		return json.Marshal(p)
	})
	if err == nil {
		return loaded
	}

	s.logger.Warn("guest profile store unavailable, using fresh profile",
		"device_id", id.DeviceID, "error", err)
	fresh := s.newProfile(model.GuestID)
	if err := s.guests.SetJSON(ctx, guestProfileKey(id), fresh); err != nil {
		s.logger.Warn("persist fallback guest profile failed", "device_id", id.DeviceID, "error", err)
	}
	return fresh
}

func (s *CreditStore) decodeGuest(current []byte) (*model.Profile, error) {
	if current == nil {
		return s.newProfile(model.GuestID), nil
	}
	var p model.Profile
	if err := json.Unmarshal(current, &p); err != nil {
		return nil, err
	}
	p.ID = model.GuestID
	if p.Credits < 0 {
		p.Credits = 0
	}
	return &p, nil
}

func (s *CreditStore) loadUser(id model.Identity) *model.Profile {
	today := clock.Today(s.clock)

	p, err := s.profileRepo.GetByID(id.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p, err = s.profileRepo.CreateIfAbsent(s.newProfile(id.UserID))
	}
	if err != nil {
		s.logger.Warn("profile store unavailable, using fresh profile",
			"user_id", id.UserID, "error", err)
		return s.newProfile(id.UserID)
	}

	if p.LastDailyReset != today {
		p = s.resetUser(p, today)
	}
	s.expirePremium(p)
	return p
}

func (s *CreditStore) resetUser(p *model.Profile, today string) *model.Profile {
	if _, err := s.profileRepo.ResetDaily(p.ID, s.allowance, today); err != nil {
		s.logger.Warn("daily reset not persisted", "user_id", p.ID, "error", err)
		s.applyDailyReset(p, today)
		return p
	}

	// 重新读取：并发请求可能已完成重置并消费了额度
	fresh, err := s.profileRepo.GetByID(p.ID)
	if err != nil {
		s.applyDailyReset(p, today)
		return p
	}
	return fresh
}

// expirePremium 会员已过到期时间但到期任务尚未处理时，按非会员对待并落库
func (s *CreditStore) expirePremium(p *model.Profile) {
	if !p.IsPremium || p.PremiumExpiresAt == nil || s.clock.Now().Before(*p.PremiumExpiresAt) {
		return
	}
	if err := s.profileRepo.SetPremium(p.ID, false, nil); err != nil {
		s.logger.Warn("premium expiry not persisted", "user_id", p.ID, "error", err)
	}
	p.IsPremium = false
	p.PremiumExpiresAt = nil
}

func (s *CreditStore) CommitCredits(ctx context.Context, id model.Identity, credits int) error {
	if credits < 0 {
		credits = 0
	}

	var err error
	if id.IsGuest() {
		err = s.updateGuest(ctx, id, func(p *model.Profile) error {
			p.Credits = credits
			return nil
		})
	} else {
		err = s.profileRepo.SetCredits(id.UserID, credits)
	}
	if err != nil {
		s.logger.Warn("commit credits failed", "identity", id.Key(), "credits", credits, "error", err)
	}
	return err
}

func (s *CreditStore) Debit(ctx context.Context, id model.Identity, cost int) (int, error) {
	if !id.IsGuest() {
		balance, err := s.profileRepo.DebitCredits(id.UserID, cost)
		if err != nil && !errors.Is(err, ErrInsufficientCredits) {
			s.logger.Warn("debit credits failed", "user_id", id.UserID, "cost", cost, "error", err)
		}
		return balance, err
	}

	var balance int
	err := s.updateGuest(ctx, id, func(p *model.Profile) error {
		balance = p.Credits
		if p.Credits < cost {
			return ErrInsufficientCredits
		}
		p.Credits -= cost
		balance = p.Credits
		return nil
	})
	if err != nil && !errors.Is(err, ErrInsufficientCredits) {
		s.logger.Warn("debit guest credits failed", "device_id", id.DeviceID, "cost", cost, "error", err)
	}
	return balance, err
}

func (s *CreditStore) Refund(ctx context.Context, id model.Identity, amount int) (int, error) {
	if !id.IsGuest() {
		balance, err := s.profileRepo.RefundCredits(id.UserID, amount)
		if err != nil {
			s.logger.Warn("refund credits failed", "user_id", id.UserID, "amount", amount, "error", err)
		}
		return balance, err
	}

	var balance int
	err := s.updateGuest(ctx, id, func(p *model.Profile) error {
		p.Credits += amount
		balance = p.Credits
		return nil
	})
	if err != nil {
		s.logger.Warn("refund guest credits failed", "device_id", id.DeviceID, "amount", amount, "error", err)
	}
	return balance, err
}

// updateGuest 访客账户的读改写，期间同样执行跨日重置
func (s *CreditStore) updateGuest(ctx context.Context, id model.Identity, mutate func(*model.Profile) error) error {
	today := clock.Today(s.clock)
	return s.guests.Update(ctx, guestProfileKey(id), func(current []byte) ([]byte, error) {
		p, err := s.decodeGuest(current)
		if err != nil {
			return nil, err
		}
		s.applyDailyReset(p, today)
		if err := mutate(p); err != nil {
			return nil, err
		}
		p.UpdatedAt = s.clock.Now()
		return json.Marshal(p)
	})
}

// Allowance 每日额度
func (s *CreditStore) Allowance() int {
	return s.allowance
}

// Info 组装返回给前端的额度信息
func (s *CreditStore) Info(p *model.Profile, guest bool) *dto.ProfileInfo {
	now := s.clock.Now()
	nextReset := clock.NextMidnight(now)

	info := &dto.ProfileInfo{
		ID:             p.ID,
		Guest:          guest,
		Credits:        p.Credits,
		DailyAllowance: s.allowance,
		IsPremium:      p.IsPremium,
		LastDailyReset: p.LastDailyReset,
		NextResetAt:    nextReset.Format(time.RFC3339),
	}
	if p.Email != nil {
		info.Email = *p.Email
	}
	if p.PremiumExpiresAt != nil {
		info.PremiumExpiresAt = p.PremiumExpiresAt.Format(time.RFC3339)
	}
	return info
}

// ResetAll 批量补满（定时任务调用）
func (s *CreditStore) ResetAll() (int64, error) {
	return s.profileRepo.ResetAllDaily(s.allowance, clock.Today(s.clock))
}
