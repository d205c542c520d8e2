package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
)

// ErrAdBusy 已有广告操作在进行，新请求被丢弃
var ErrAdBusy = errors.New("another ad operation is in progress")

// AdSDK 原生广告 SDK，由 App 外壳实现
type AdSDK interface {
	ShowInterstitial(ctx context.Context, placementID string) (bool, error)
	ShowBanner(ctx context.Context, placementID string) error
	HideBanner(ctx context.Context) error
}

// NoopAdSDK Web 端没有广告
type NoopAdSDK struct{}

func (NoopAdSDK) ShowInterstitial(context.Context, string) (bool, error) { return false, nil }
func (NoopAdSDK) ShowBanner(context.Context, string) error               { return nil }
func (NoopAdSDK) HideBanner(context.Context) error                       { return nil }

// AdGate 插屏广告节流：启动宽限期 + 两次展示间的冷却时间。每个会话一个实例
type AdGate struct {
	sdk                   AdSDK
	clock                 clock.Clock
	native                bool
	interstitialPlacement string
	bannerPlacement       string
	grace                 time.Duration
	cooldown              time.Duration
	logger                *slog.Logger

	mu         sync.Mutex
	launchTime time.Time
	lastShown  time.Time

	inFlight atomic.Bool
}

func NewAdGate(sdk AdSDK, clk clock.Clock, native bool, cfg config.AdsConfig, logger *slog.Logger) *AdGate {
	if sdk == nil || !native {
		sdk = NoopAdSDK{}
	}
	now := clk.Now()
	return &AdGate{
		sdk:                   sdk,
		clock:                 clk,
		native:                native,
		interstitialPlacement: cfg.InterstitialPlacement,
		bannerPlacement:       cfg.BannerPlacement,
		grace:                 secondsOr(cfg.GraceSeconds, 120),
		cooldown:              secondsOr(cfg.CooldownSeconds, 180),
		logger:                logger,
		launchTime:            now,
		lastShown:             now,
	}
}

func secondsOr(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

// ShouldShowInterstitial 宽限期内或冷却中返回 false
func (g *AdGate) ShouldShowInterstitial() bool {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Sub(g.launchTime) < g.grace {
		return false
	}
	return now.Sub(g.lastShown) >= g.cooldown
}

// MaybeShowInterstitial 生成成功后调用，返回是否真正展示了广告
func (g *AdGate) MaybeShowInterstitial(ctx context.Context, premium bool) (bool, error) {
	if !g.native || premium {
		return false, nil
	}
	if !g.ShouldShowInterstitial() {
		return false, nil
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		return false, ErrAdBusy
	}
	defer g.inFlight.Store(false)

	completed, err := g.sdk.ShowInterstitial(ctx, g.interstitialPlacement)
	if err != nil {
		g.logger.Warn("interstitial failed", "error", err)
		return false, err
	}
	if !completed {
		return false, nil
	}

	g.mu.Lock()
	g.lastShown = g.clock.Now()
	g.mu.Unlock()
	return true, nil
}

// ShowBanner 显示横幅
func (g *AdGate) ShowBanner(ctx context.Context) error {
	return g.exclusive(func() error {
		return g.sdk.ShowBanner(ctx, g.bannerPlacement)
	})
}

// HideBanner 隐藏横幅
func (g *AdGate) HideBanner(ctx context.Context) error {
	return g.exclusive(func() error {
		return g.sdk.HideBanner(ctx)
	})
}

func (g *AdGate) exclusive(op func() error) error {
	if !g.native {
		return nil
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		return ErrAdBusy
	}
	defer g.inFlight.Store(false)
	return op()
}

// LastShown 最近一次展示插屏的时间（初始为会话开始时间）
func (g *AdGate) LastShown() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastShown
}

func (g *AdGate) Native() bool {
	return g.native
}
