package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/repository"
)

var (
	ErrUnknownPlan      = errors.New("unknown subscription plan")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrNoSubscription   = errors.New("no active subscription")
	ErrInvalidSignature = errors.New("invalid webhook secret")
)

// 应用商店回调事件
const (
	EventPurchased = "purchased"
	EventRenewed   = "renewed"
	EventCancelled = "cancelled"
)

type SubscriptionService struct {
	db       *gorm.DB
	subRepo  *repository.SubscriptionRepository
	profiles *repository.ProfileRepository
	clock    clock.Clock
	cfg      config.SubscriptionConfig
	logger   *slog.Logger
}

func NewSubscriptionService(
	db *gorm.DB,
	subRepo *repository.SubscriptionRepository,
	profiles *repository.ProfileRepository,
	clk clock.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		db:       db,
		subRepo:  subRepo,
		profiles: profiles,
		clock:    clk,
		cfg:      cfg.Subscription,
		logger:   logger,
	}
}

// VerifySecret 校验回调共享密钥；未配置密钥时拒绝所有回调
func (s *SubscriptionService) VerifySecret(secret string) error {
	if s.cfg.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WebhookSecret)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// HandleEvent 处理购买、续费与取消。同一 transaction_id 重复投递只生效一次
func (s *SubscriptionService) HandleEvent(ctx context.Context, ev *dto.SubscriptionEvent) (*dto.SubscriptionInfo, error) {
	if _, err := s.profiles.GetByID(ev.ProfileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	switch ev.Event {
	case EventPurchased, EventRenewed:
		return s.activate(ctx, ev)
	case EventCancelled:
		return s.cancel(ctx, ev)
	default:
		return nil, errors.New("unknown subscription event")
	}
}

func (s *SubscriptionService) activate(ctx context.Context, ev *dto.SubscriptionEvent) (*dto.SubscriptionInfo, error) {
	days, ok := s.cfg.Plans[ev.Plan]
	if !ok || days <= 0 {
		return nil, ErrUnknownPlan
	}

	existing, err := s.subRepo.GetByTransactionID(ev.TransactionID)
	if err == nil {
		return toSubscriptionInfo(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	start := now
	// 续费从当前订阅到期时间顺延
	if current, err := s.subRepo.GetActiveByProfileID(ev.ProfileID); err == nil && current.ExpiresAt.After(now) {
		start = current.ExpiresAt
	}

	sub := &model.Subscription{
		ProfileID:     ev.ProfileID,
		Plan:          ev.Plan,
		Store:         ev.Store,
		TransactionID: ev.TransactionID,
		StartedAt:     now,
		ExpiresAt:     start.AddDate(0, 0, days),
		Status:        model.SubscriptionActive,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.subRepo.WithTx(tx).Create(sub); err != nil {
			return err
		}
		return s.profiles.WithTx(tx).SetPremium(ev.ProfileID, true, &sub.ExpiresAt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription activated",
		"profile_id", ev.ProfileID, "plan", ev.Plan, "event", ev.Event, "expires_at", sub.ExpiresAt)
	return toSubscriptionInfo(sub), nil
}

// cancel 立即撤销会员（退款或撤销授权）
func (s *SubscriptionService) cancel(ctx context.Context, ev *dto.SubscriptionEvent) (*dto.SubscriptionInfo, error) {
	current, err := s.subRepo.GetActiveByProfileID(ev.ProfileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.subRepo.WithTx(tx).CancelActive(ev.ProfileID); err != nil {
			return err
		}
		return s.profiles.WithTx(tx).SetPremium(ev.ProfileID, false, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription cancelled", "profile_id", ev.ProfileID, "transaction_id", ev.TransactionID)
	current.Status = model.SubscriptionCancelled
	return toSubscriptionInfo(current), nil
}

// ExpireDue 将到期订阅标记为 expired，没有其他有效订阅的账户取消会员
func (s *SubscriptionService) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	subs, err := s.subRepo.ListExpired(now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sub := range subs {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.subRepo.WithTx(tx)
			if err := repo.UpdateStatus(sub.ID, model.SubscriptionExpired); err != nil {
				return err
			}
			active, err := repo.HasActive(sub.ProfileID, now)
			if err != nil || active {
				return err
			}
			return s.profiles.WithTx(tx).SetPremium(sub.ProfileID, false, nil)
		})
		if err != nil {
			s.logger.Warn("expire subscription failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// Get 当前有效订阅
func (s *SubscriptionService) Get(profileID string) (*dto.SubscriptionInfo, error) {
	sub, err := s.subRepo.GetActiveByProfileID(profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	return toSubscriptionInfo(sub), nil
}

func toSubscriptionInfo(sub *model.Subscription) *dto.SubscriptionInfo {
	return &dto.SubscriptionInfo{
		ProfileID: sub.ProfileID,
		Plan:      sub.Plan,
		Status:    sub.Status,
		ExpiresAt: sub.ExpiresAt.Format(time.RFC3339),
	}
}
