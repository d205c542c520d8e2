package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNotConnected 会话当前没有 WebSocket 连接
var ErrNotConnected = errors.New("session is not connected")

// 推送给客户端的消息类型
const (
	TypeAdCommand         = "ad_command"
	TypeAdAck             = "ad_ack"
	TypeSessionSuperseded = "session_superseded"
	TypeCreditsUpdated    = "credits_updated"
)

type Hub struct {
	// 每个会话只保留一条连接，重连时替换旧连接
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *slog.Logger
}

type Client struct {
	SessionID string
	Conn      *websocket.Conn
	mu        sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	old := h.clients[client.SessionID]
	h.clients[client.SessionID] = client
	total := len(h.clients)
	h.mu.Unlock()

	if old != nil && old != client && old.Conn != nil {
		old.Conn.Close()
	}
	h.logger.Debug("session connected", "session_id", client.SessionID, "total", total)
}

// Unregister 只移除仍是当前连接的 client，被替换的旧连接不影响新连接
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[client.SessionID]; ok && cur == client {
		delete(h.clients, client.SessionID)
	}
	h.mu.Unlock()
	h.logger.Debug("session disconnected", "session_id", client.SessionID)
}

// SendToSession 向会话推送消息，未连接返回 ErrNotConnected
func (h *Hub) SendToSession(sessionID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	c.mu.Lock()
	err = c.Conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		h.logger.Warn("websocket write failed", "session_id", sessionID, "error", err)
		return err
	}
	return nil
}

// Disconnect 主动断开会话连接（会话结束时调用）
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	c, ok := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	if ok && c.Conn != nil {
		c.mu.Lock()
		_ = c.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
		c.mu.Unlock()
		c.Conn.Close()
	}
}

// IsOnline 检查会话是否在线
func (h *Hub) IsOnline(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
