package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAckTimeout 客户端未在超时时间内回执
var ErrAckTimeout = errors.New("ad command not acknowledged in time")

// 广告指令
const (
	ActionShowInterstitial = "show_interstitial"
	ActionShowBanner       = "show_banner"
	ActionHideBanner       = "hide_banner"
)

type AdCommand struct {
	RequestID   string `json:"request_id"`
	Action      string `json:"action"`
	PlacementID string `json:"placement_id,omitempty"`
}

type AdAck struct {
	RequestID string `json:"request_id"`
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

type incoming struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AdBridge 通过会话的 WebSocket 驱动 App 外壳里的原生广告 SDK。
// 每条指令带 request_id，客户端以 ad_ack 回执
type AdBridge struct {
	hub     *Hub
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan *AdAck
}

func NewAdBridge(hub *Hub, timeout time.Duration) *AdBridge {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AdBridge{
		hub:     hub,
		timeout: timeout,
		pending: make(map[string]chan *AdAck),
	}
}

func (b *AdBridge) request(ctx context.Context, sessionID, action, placementID string) (*AdAck, error) {
	if !b.hub.IsOnline(sessionID) {
		return nil, ErrNotConnected
	}
	cmd := &AdCommand{
		RequestID:   uuid.NewString(),
		Action:      action,
		PlacementID: placementID,
	}

	ch := make(chan *AdAck, 1)
	b.mu.Lock()
	b.pending[cmd.RequestID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, cmd.RequestID)
		b.mu.Unlock()
	}()

	if err := b.hub.SendToSession(sessionID, &Message{Type: TypeAdCommand, Data: cmd}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, errors.New(ack.Error)
		}
		return ack, nil
	case <-timer.C:
		return nil, ErrAckTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve 交付回执，未知或已超时的 request_id 返回 false
func (b *AdBridge) Resolve(ack *AdAck) bool {
	b.mu.Lock()
	ch, ok := b.pending[ack.RequestID]
	delete(b.pending, ack.RequestID)
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- ack
	return true
}

// HandleIncoming 处理客户端上行消息，返回是否为广告回执
func (b *AdBridge) HandleIncoming(raw []byte) bool {
	var msg incoming
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != TypeAdAck {
		return false
	}
	var ack AdAck
	if err := json.Unmarshal(msg.Data, &ack); err != nil || ack.RequestID == "" {
		return false
	}
	return b.Resolve(&ack)
}

// ForSession 绑定到单个会话的广告 SDK
func (b *AdBridge) ForSession(sessionID string) *SessionAds {
	return &SessionAds{bridge: b, sessionID: sessionID}
}

type SessionAds struct {
	bridge    *AdBridge
	sessionID string
}

func (s *SessionAds) ShowInterstitial(ctx context.Context, placementID string) (bool, error) {
	ack, err := s.bridge.request(ctx, s.sessionID, ActionShowInterstitial, placementID)
	if err != nil {
		return false, err
	}
	return ack.Completed, nil
}

func (s *SessionAds) ShowBanner(ctx context.Context, placementID string) error {
	_, err := s.bridge.request(ctx, s.sessionID, ActionShowBanner, placementID)
	return err
}

func (s *SessionAds) HideBanner(ctx context.Context) error {
	_, err := s.bridge.request(ctx, s.sessionID, ActionHideBanner, "")
	return err
}
