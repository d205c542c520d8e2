package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qs3c/rizz_server/internal/pkg/clock"
)

// CreditResetter 批量补满每日额度
type CreditResetter interface {
	ResetAll() (int64, error)
}

// SubscriptionExpirer 处理到期订阅
type SubscriptionExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

type Service struct {
	credits       CreditResetter
	subscriptions SubscriptionExpirer
	clock         clock.Clock
	expireEvery   time.Duration
	logger        *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewService(
	credits CreditResetter,
	subscriptions SubscriptionExpirer,
	clk clock.Clock,
	expireEvery time.Duration,
	logger *slog.Logger,
) *Service {
	if expireEvery <= 0 {
		expireEvery = time.Hour
	}
	return &Service{
		credits:       credits,
		subscriptions: subscriptions,
		clock:         clk,
		expireEvery:   expireEvery,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runDailyReset()
	go s.runExpiry()
	s.logger.Info("cron service started", "expire_every", s.expireEvery.String())
}

// Stop 停止定时任务，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("cron service stopped")
	})
}

// untilMidnight 距离下一个 UTC 日历日开始的时长
func untilMidnight(now time.Time) time.Duration {
	return clock.NextMidnight(now).Sub(now)
}

// runDailyReset 每日零点批量补满。读取账户时也会按日期补满，这里只是提前落库
func (s *Service) runDailyReset() {
	timer := time.NewTimer(untilMidnight(s.clock.Now()))
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
			s.resetDailyCredits()
			timer.Reset(untilMidnight(s.clock.Now()))
		}
	}
}

func (s *Service) resetDailyCredits() int64 {
	if s.credits == nil {
		return 0
	}
	n, err := s.credits.ResetAll()
	if err != nil {
		s.logger.Error("daily credit reset failed", "error", err)
		return 0
	}
	s.logger.Info("daily credit reset completed", "profiles", n)
	return n
}

func (s *Service) runExpiry() {
	ticker := time.NewTicker(s.expireEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.expireSubscriptions()
		}
	}
}

func (s *Service) expireSubscriptions() int {
	if s.subscriptions == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.subscriptions.ExpireDue(ctx)
	if err != nil {
		s.logger.Error("subscription expiry failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("subscriptions expired", "count", n)
	}
	return n
}

// RunNow 立即执行一次补满与到期处理（手动触发或测试）
func (s *Service) RunNow() (int64, int) {
	s.logger.Info("manual cron run triggered")
	return s.resetDailyCredits(), s.expireSubscriptions()
}
