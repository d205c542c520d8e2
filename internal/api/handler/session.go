package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/service"
)

// DeviceIDHeader 访客设备标识
const DeviceIDHeader = "X-Device-ID"

type SessionHandler struct {
	sessions *service.SessionManager
	credits  *service.CreditStore
}

func NewSessionHandler(sessions *service.SessionManager, credits *service.CreditStore) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		credits:  credits,
	}
}

// Start 开启会话。登录用户按账户，访客按设备
// POST /api/v1/sessions
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	var id model.Identity
	if userID, ok := middleware.GetUserID(c); ok {
		id = model.UserIdentity(userID)
	} else {
		deviceID := strings.TrimSpace(req.DeviceID)
		if deviceID == "" {
			deviceID = strings.TrimSpace(c.GetHeader(DeviceIDHeader))
		}
		if deviceID == "" {
			response.ParamError(c, "访客需要提供设备标识")
			return
		}
		id = model.GuestIdentity(deviceID)
	}

	sess, err := h.sessions.Start(c.Request.Context(), id, req.Platform)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	c.Header(middleware.SessionIDHeader, sess.ID)
	response.Success(c, &dto.SessionInfo{
		SessionID: sess.ID,
		Platform:  sess.Platform,
		StartedAt: sess.StartedAt.Format(time.RFC3339),
		Profile:   h.credits.Info(sess.Profile(), id.IsGuest()),
	})
}

// End 结束当前会话
// DELETE /api/v1/sessions/current
func (h *SessionHandler) End(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}

	if err := h.sessions.End(sess.ID); err != nil && !errors.Is(err, service.ErrSessionNotFound) {
		response.ServerError(c, "")
		return
	}
	response.Success(c, nil)
}

// Profile 当前额度与会员状态（跨日时先补满）
// GET /api/v1/profile
func (h *SessionHandler) Profile(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}

	profile, err := h.sessions.Refresh(c.Request.Context(), sess)
	if err != nil {
		if errors.Is(err, service.ErrSessionEnded) {
			response.Error(c, response.CodeSessionEnded, "")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, h.credits.Info(profile, sess.Identity.IsGuest()))
}
