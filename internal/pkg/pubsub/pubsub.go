package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelSessionEvents = "rizz:session_events"
)

// 会话事件类型
const (
	EventSessionStarted = "session_started"
)

// SessionMessage 跨实例的会话事件：同一身份开启新会话时，其他实例上的旧会话失效
type SessionMessage struct {
	Type        string `json:"type"`
	InstanceID  string `json:"instance_id"`
	IdentityKey string `json:"identity_key"`
	SessionID   string `json:"session_id"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishSession 发布会话事件
func (p *Publisher) PublishSession(ctx context.Context, msg *SessionMessage) error {
	if msg.Type == "" {
		msg.Type = EventSessionStarted
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal session message: %w", err)
	}

	return p.client.Publish(ctx, ChannelSessionEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅会话事件，阻塞直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*SessionMessage)) error {
	return s.subscribe(ctx, nil, handler)
}

// subscribe ready 在订阅确认后关闭
func (s *Subscriber) subscribe(ctx context.Context, ready chan<- struct{}, handler func(*SessionMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelSessionEvents)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe session events: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var sessionMsg SessionMessage
			if err := json.Unmarshal([]byte(msg.Payload), &sessionMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&sessionMsg)
		}
	}
}

// SubscribeReady 同 Subscribe，订阅生效后关闭 ready
func (s *Subscriber) SubscribeReady(ctx context.Context, ready chan<- struct{}, handler func(*SessionMessage)) error {
	return s.subscribe(ctx, ready, handler)
}
