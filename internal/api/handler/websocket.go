package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/pkg/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 原生客户端不带 Origin
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub      *ws.Hub
	bridge   *ws.AdBridge
	sessions middleware.SessionLookup
	logger   *slog.Logger
}

func NewWebSocketHandler(hub *ws.Hub, bridge *ws.AdBridge, sessions middleware.SessionLookup, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		bridge:   bridge,
		sessions: sessions,
		logger:   logger,
	}
}

// Handle WebSocket 连接处理：下发广告指令、接收广告回执、推送会话通知
// GET /api/v1/ws?session_id=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session_id"})
		return
	}

	if _, err := h.sessions.Get(sessionID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	client := &ws.Client{
		SessionID: sessionID,
		Conn:      conn,
	}
	h.hub.Register(client)

	go func() {
		defer h.hub.Unregister(client)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if !h.bridge.HandleIncoming(data) {
				h.logger.Debug("unhandled websocket message", "session_id", sessionID)
			}
		}
	}()
}
