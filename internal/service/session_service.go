package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/pkg/clock"
	"github.com/qs3c/rizz_server/internal/pkg/pubsub"
	"github.com/qs3c/rizz_server/internal/pkg/ws"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session is no longer active")
)

// 客户端运行环境
const (
	PlatformWeb     = "web"
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Session 一次 App 运行期：持有额度快照、忙碌标记与广告节流状态
type Session struct {
	ID        string
	Identity  model.Identity
	Platform  string
	StartedAt time.Time
	Ads       *AdGate

	mu      sync.Mutex
	profile *model.Profile
	busy    bool
	adTimer clock.Stopper

	active atomic.Bool
}

// Active 会话被替换或结束后返回 false
func (s *Session) Active() bool {
	return s.active.Load()
}

func (s *Session) Native() bool {
	return s.Platform == PlatformIOS || s.Platform == PlatformAndroid
}

// Profile 返回快照副本
func (s *Session) Profile() *model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// setProfile 仅在会话仍有效时更新快照
func (s *Session) setProfile(p *model.Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Active() {
		return false
	}
	s.profile = p.Clone()
	return true
}

func (s *Session) setCredits(credits int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Active() || s.profile == nil {
		return false
	}
	s.profile.Credits = credits
	return true
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Session) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// scheduleAd 记录待执行的广告检查，新的检查替换旧的；会话已结束时直接取消
func (s *Session) scheduleAd(timer clock.Stopper) {
	s.mu.Lock()
	if !s.Active() {
		s.mu.Unlock()
		timer.Stop()
		return
	}
	old := s.adTimer
	s.adTimer = timer
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

func (s *Session) end() bool {
	s.mu.Lock()
	if !s.active.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return false
	}
	timer := s.adTimer
	s.adTimer = nil
	s.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return true
}

// SessionNotifier 通知客户端（WebSocket Hub）
type SessionNotifier interface {
	SendToSession(sessionID string, msg *ws.Message) error
	Disconnect(sessionID string)
}

// SessionManager 同一身份同时只保留一个有效会话，新会话替换旧会话（跨实例通过 Redis 广播）
type SessionManager struct {
	store      ProfileStore
	clock      clock.Clock
	adsCfg     config.AdsConfig
	adSDK      func(sessionID string) AdSDK
	notifier   SessionNotifier
	publisher  *pubsub.Publisher
	instanceID string
	logger     *slog.Logger

	mu         sync.Mutex
	sessions   map[string]*Session
	byIdentity map[string]*Session
}

func NewSessionManager(
	store ProfileStore,
	clk clock.Clock,
	cfg *config.Config,
	adSDK func(sessionID string) AdSDK,
	notifier SessionNotifier,
	publisher *pubsub.Publisher,
	logger *slog.Logger,
) *SessionManager {
	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &SessionManager{
		store:      store,
		clock:      clk,
		adsCfg:     cfg.Ads,
		adSDK:      adSDK,
		notifier:   notifier,
		publisher:  publisher,
		instanceID: instanceID,
		logger:     logger,
		sessions:   make(map[string]*Session),
		byIdentity: make(map[string]*Session),
	}
}

// Start 加载账户并开启新会话，同一身份的旧会话失效
func (m *SessionManager) Start(ctx context.Context, id model.Identity, platform string) (*Session, error) {
	profile, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Identity:  id,
		Platform:  platform,
		StartedAt: m.clock.Now(),
		profile:   profile,
	}
	var sdk AdSDK
	if m.adSDK != nil && sess.Native() {
		sdk = m.adSDK(sess.ID)
	}
	sess.Ads = NewAdGate(sdk, m.clock, sess.Native(), m.adsCfg, m.logger)
	sess.active.Store(true)

	m.mu.Lock()
	old := m.byIdentity[id.Key()]
	m.sessions[sess.ID] = sess
	m.byIdentity[id.Key()] = sess
	m.mu.Unlock()

	if old != nil {
		m.retire(old, true)
	}

	if m.publisher != nil {
		err := m.publisher.PublishSession(ctx, &pubsub.SessionMessage{
			Type:        pubsub.EventSessionStarted,
			InstanceID:  m.instanceID,
			IdentityKey: id.Key(),
			SessionID:   sess.ID,
		})
		if err != nil {
			m.logger.Warn("publish session start failed", "session_id", sess.ID, "error", err)
		}
	}

	m.logger.Info("session started",
		"session_id", sess.ID, "identity", id.Key(), "platform", platform)
	return sess, nil
}

// Get 返回仍有效的会话
func (m *SessionManager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !sess.Active() {
		return nil, ErrSessionEnded
	}
	return sess, nil
}

// Lookup 身份当前在本实例上的有效会话
func (m *SessionManager) Lookup(id model.Identity) (*Session, bool) {
	m.mu.Lock()
	sess, ok := m.byIdentity[id.Key()]
	m.mu.Unlock()
	if !ok || !sess.Active() {
		return nil, false
	}
	return sess, true
}

// End 客户端主动结束会话
func (m *SessionManager) End(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.retire(sess, false)
	return nil
}

// Refresh 重新读取账户（含跨日重置）并更新快照
func (m *SessionManager) Refresh(ctx context.Context, sess *Session) (*model.Profile, error) {
	profile, err := m.store.Load(ctx, sess.Identity)
	if err != nil {
		return nil, err
	}
	if !sess.setProfile(profile) {
		return nil, ErrSessionEnded
	}
	return profile, nil
}

func (m *SessionManager) retire(sess *Session, superseded bool) {
	m.mu.Lock()
	delete(m.sessions, sess.ID)
	if cur := m.byIdentity[sess.Identity.Key()]; cur == sess {
		delete(m.byIdentity, sess.Identity.Key())
	}
	m.mu.Unlock()

	if !sess.end() {
		return
	}

	if m.notifier != nil {
		if superseded {
			_ = m.notifier.SendToSession(sess.ID, &ws.Message{
				Type: ws.TypeSessionSuperseded,
				Data: map[string]string{"session_id": sess.ID},
			})
		}
		m.notifier.Disconnect(sess.ID)
	}
	m.logger.Info("session ended", "session_id", sess.ID, "superseded", superseded)
}

// HandleRemote 处理其他实例广播的会话事件
func (m *SessionManager) HandleRemote(msg *pubsub.SessionMessage) {
	if msg.InstanceID == m.instanceID || msg.Type != pubsub.EventSessionStarted {
		return
	}

	m.mu.Lock()
	sess, ok := m.byIdentity[msg.IdentityKey]
	m.mu.Unlock()
	if !ok || sess.ID == msg.SessionID {
		return
	}
	m.retire(sess, true)
}

// Run 订阅跨实例会话事件，阻塞直到 ctx 结束
func (m *SessionManager) Run(ctx context.Context, subscriber *pubsub.Subscriber) error {
	return subscriber.Subscribe(ctx, m.HandleRemote)
}

// Shutdown 结束全部会话
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.mu.Unlock()

	for _, sess := range all {
		m.retire(sess, false)
	}
}

// Count 有效会话数
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
