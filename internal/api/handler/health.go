package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SessionCounter 在线会话数
type SessionCounter interface {
	Count() int
}

// ConnectionCounter 在线 WebSocket 连接数
type ConnectionCounter interface {
	ConnectionCount() int
}

type HealthHandler struct {
	db          *gorm.DB
	rdb         *redis.Client
	sessions    SessionCounter
	connections ConnectionCounter
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client, sessions SessionCounter, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{
		db:          db,
		rdb:         rdb,
		sessions:    sessions,
		connections: connections,
	}
}

// Check 依赖探活。任一依赖不可用时返回 503
// GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":      state,
		"checks":      checks,
		"sessions":    h.sessions.Count(),
		"connections": h.connections.ConnectionCount(),
	})
}
