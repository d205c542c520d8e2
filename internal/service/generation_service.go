package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
)

var (
	ErrEmptyInput           = errors.New("please enter some text or attach a screenshot")
	ErrGenerationInProgress = errors.New("a generation is already in progress")
)

// AffordabilityError 余额不足。Hard 为 true 表示余额为 0（付费墙），否则只是提示
type AffordabilityError struct {
	Hard    bool
	Credits int
	Cost    int
}

func (e *AffordabilityError) Error() string {
	if e.Hard {
		return "no credits left today"
	}
	return fmt.Sprintf("this needs %d credits but only %d left", e.Cost, e.Credits)
}

// ContentGenerator 内容生成客户端
type ContentGenerator interface {
	GenerateReply(ctx context.Context, text string, image *model.Image, style string) (*model.GenerationResult, error)
	GenerateBio(ctx context.Context, text, style string) (*model.GenerationResult, error)
}

type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusBlocked OutcomeStatus = "blocked"
	StatusFailed  OutcomeStatus = "failed"
)

type SideEffects struct {
	AdCheckScheduled bool
	Charged          bool
}

type GenerationOutcome struct {
	Result    *model.GenerationResult
	Status    OutcomeStatus
	Cost      int
	Credits   int
	IsPremium bool
	SideEffects
}

// GenerationService 额度与生成的编排：校验、计费、预扣、调用、按结果对账、延迟广告检查
type GenerationService struct {
	store     ProfileStore
	generator ContentGenerator
	clock     clock.Clock
	credits   config.CreditsConfig
	adDelay   time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGenerationService(
	store ProfileStore,
	generator ContentGenerator,
	clk clock.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *GenerationService {
	credits := cfg.Credits
	if credits.ReplyCost <= 0 {
		credits.ReplyCost = 1
	}
	if credits.ImageReplyCost <= 0 {
		credits.ImageReplyCost = 2
	}
	if credits.BioCost <= 0 {
		credits.BioCost = 1
	}
	delay := time.Duration(cfg.Ads.DelayMillis) * time.Millisecond
	if delay <= 0 {
		delay = 4 * time.Second
	}
	return &GenerationService{
		store:     store,
		generator: generator,
		clock:     clk,
		credits:   credits,
		adDelay:   delay,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
	}
}

// Validate 回复需要文字或截图，简介需要文字
func (s *GenerationService) Validate(req *model.GenerationRequest) error {
	switch req.Mode {
	case model.ModeReply:
		if !req.HasText() && !req.HasImage() {
			return ErrEmptyInput
		}
	case model.ModeBio:
		if !req.HasText() {
			return ErrEmptyInput
		}
	default:
		return fmt.Errorf("unknown generation mode %q", req.Mode)
	}
	return nil
}

// Cost 带截图的回复 2 点，其余 1 点
func (s *GenerationService) Cost(req *model.GenerationRequest) int {
	if req.Mode == model.ModeBio {
		return s.credits.BioCost
	}
	if req.HasImage() {
		return s.credits.ImageReplyCost
	}
	return s.credits.ReplyCost
}

func (s *GenerationService) acquire(sess *Session) bool {
	if !sess.tryAcquire() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sess.Identity.Key()
	if _, ok := s.inFlight[key]; ok {
		sess.release()
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *GenerationService) release(sess *Session) {
	s.mu.Lock()
	delete(s.inFlight, sess.Identity.Key())
	s.mu.Unlock()
	sess.release()
}

// Generate 单次生成。净额度变化：真实成功为 -cost，其余情况为 0；会员不变
func (s *GenerationService) Generate(ctx context.Context, sess *Session, req *model.GenerationRequest) (*GenerationOutcome, error) {
	if !sess.Active() {
		return nil, ErrSessionEnded
	}
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	cost := s.Cost(req)

	if !s.acquire(sess) {
		return nil, ErrGenerationInProgress
	}
	released := false
	defer func() {
		if !released {
			s.release(sess)
		}
	}()

	// 开始后不随请求取消，保证对账一定完成
	ctx = context.WithoutCancel(ctx)

	profile, err := s.store.Load(ctx, sess.Identity)
	if err != nil {
		return nil, err
	}
	if !sess.setProfile(profile) {
		return nil, ErrSessionEnded
	}

	premium := profile.IsPremium
	if !premium && profile.Credits < cost {
		return nil, &AffordabilityError{Hard: profile.Credits == 0, Credits: profile.Credits, Cost: cost}
	}

	balance := profile.Credits
	debited := false
	if !premium {
		balance, debited, err = s.debit(ctx, sess, profile.Credits, cost)
		if err != nil {
			return nil, err
		}
		sess.setCredits(balance)
	}

	result := s.call(ctx, req)

	outcome := &GenerationOutcome{
		Result:    result,
		Cost:      cost,
		IsPremium: premium,
	}
	switch {
	case result.Kind == model.ResultBlocked:
		outcome.Status = StatusBlocked
	case result.Genuine():
		outcome.Status = StatusSuccess
	default:
		outcome.Status = StatusFailed
	}

	if !premium {
		if outcome.Status == StatusSuccess {
			outcome.Charged = true
		} else {
			balance = s.refund(ctx, sess, balance, cost, debited)
		}
		sess.setCredits(balance)
	}
	outcome.Credits = balance

	s.logger.Info("generation finished",
		"session_id", sess.ID, "identity", sess.Identity.Key(), "mode", req.Mode,
		"status", outcome.Status, "cost", cost, "charged", outcome.Charged, "credits", balance)

	s.release(sess)
	released = true

	if outcome.Status == StatusSuccess && !premium {
		outcome.AdCheckScheduled = s.scheduleAdCheck(sess)
	}
	return outcome, nil
}

// debit 预扣。存储拒绝（并发下余额已不足）时返回 AffordabilityError；
// 其他存储错误只记录，内存快照仍按扣减处理
func (s *GenerationService) debit(ctx context.Context, sess *Session, credits, cost int) (int, bool, error) {
	balance, err := s.store.Debit(ctx, sess.Identity, cost)
	switch {
	case err == nil:
		return balance, true, nil
	case errors.Is(err, ErrInsufficientCredits):
		sess.setCredits(balance)
		return balance, false, &AffordabilityError{Hard: balance == 0, Credits: balance, Cost: cost}
	default:
		s.logger.Warn("debit not persisted, continuing with in-memory balance",
			"identity", sess.Identity.Key(), "cost", cost, "error", err)
		return credits - cost, false, nil
	}
}

func (s *GenerationService) refund(ctx context.Context, sess *Session, balance, cost int, debited bool) int {
	if !debited {
		return balance + cost
	}
	refunded, err := s.store.Refund(ctx, sess.Identity, cost)
	if err != nil {
		s.logger.Warn("refund not persisted",
			"identity", sess.Identity.Key(), "cost", cost, "error", err)
		return balance + cost
	}
	return refunded
}

// call 调用生成客户端；错误与 panic 都按 service_error 处理
func (s *GenerationService) call(ctx context.Context, req *model.GenerationRequest) (result *model.GenerationResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("generation panicked", "mode", req.Mode, "panic", r)
			result = &model.GenerationResult{Kind: model.ResultServiceError, Reason: fmt.Sprint(r)}
		}
	}()

	var err error
	if req.Mode == model.ModeBio {
		result, err = s.generator.GenerateBio(ctx, req.Text, req.Style)
	} else {
		result, err = s.generator.GenerateReply(ctx, req.Text, req.Image, req.Style)
	}
	if err != nil {
		s.logger.Warn("generation call failed", "mode", req.Mode, "error", err)
		return &model.GenerationResult{Kind: model.ResultServiceError, Reason: err.Error()}
	}
	if result == nil {
		return &model.GenerationResult{Kind: model.ResultServiceError, Reason: "empty result"}
	}
	return result
}

// scheduleAdCheck 结果返回后延迟检查插屏广告，不阻塞响应
func (s *GenerationService) scheduleAdCheck(sess *Session) bool {
	if !sess.Native() || !sess.Active() {
		return false
	}
	timer := s.clock.AfterFunc(s.adDelay, func() {
		if !sess.Active() {
			return
		}
		premium := false
		if p := sess.Profile(); p != nil {
			premium = p.IsPremium
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		shown, err := sess.Ads.MaybeShowInterstitial(ctx, premium)
		if err != nil && !errors.Is(err, ErrAdBusy) {
			s.logger.Warn("interstitial check failed", "session_id", sess.ID, "error", err)
			return
		}
		if shown {
			s.logger.Info("interstitial shown", "session_id", sess.ID)
		}
	})
	sess.scheduleAd(timer)
	return true
}
