package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/service"
)

const (
	SessionKey      = "session"
	SessionIDHeader = "X-Session-ID"
)

// SessionLookup 按 ID 查找有效会话
type SessionLookup interface {
	Get(sessionID string) (*service.Session, error)
}

// Session 会话中间件：要求 X-Session-ID 指向仍有效的会话。
// 登录用户只能使用自己的会话
func Session(sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(SessionIDHeader)
		if sessionID == "" {
			response.ParamError(c, "缺少会话标识")
			c.Abort()
			return
		}

		sess, err := sessions.Get(sessionID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrSessionEnded), errors.Is(err, service.ErrSessionNotFound):
				response.Error(c, response.CodeSessionEnded, "")
			default:
				response.ServerError(c, "")
			}
			c.Abort()
			return
		}

		if userID, ok := GetUserID(c); ok && userID != sess.Identity.UserID {
			response.PermissionError(c, "")
			c.Abort()
			return
		}
		if _, ok := GetUserID(c); !ok && !sess.Identity.IsGuest() {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		c.Set(SessionKey, sess)
		c.Next()
	}
}

// GetSession 从上下文获取会话
func GetSession(c *gin.Context) (*service.Session, bool) {
	v, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	sess, ok := v.(*service.Session)
	return sess, ok
}
