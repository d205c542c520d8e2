package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/pkg/ws"
	"github.com/qs3c/rizz_server/internal/service"
)

// WebhookSecretHeader 应用商店回调共享密钥
const WebhookSecretHeader = "X-Webhook-Secret"

type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	sessions      *service.SessionManager
	credits       *service.CreditStore
	notifier      service.SessionNotifier
	logger        *slog.Logger
}

func NewSubscriptionHandler(
	subscriptions *service.SubscriptionService,
	sessions *service.SessionManager,
	credits *service.CreditStore,
	notifier service.SessionNotifier,
	logger *slog.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		sessions:      sessions,
		credits:       credits,
		notifier:      notifier,
		logger:        logger,
	}
}

// Webhook 购买、续费与取消回调
// POST /api/v1/webhooks/subscription
func (h *SubscriptionHandler) Webhook(c *gin.Context) {
	if err := h.subscriptions.VerifySecret(c.GetHeader(WebhookSecretHeader)); err != nil {
		response.AuthError(c, err.Error())
		return
	}

	var ev dto.SubscriptionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	info, err := h.subscriptions.HandleEvent(c.Request.Context(), &ev)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProfileNotFound), errors.Is(err, service.ErrNoSubscription):
			response.NotFoundError(c, err.Error())
		case errors.Is(err, service.ErrUnknownPlan):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	h.pushProfile(c, ev.ProfileID)
	response.Success(c, info)
}

// pushProfile 账户在本实例有在线会话时刷新快照并推送
func (h *SubscriptionHandler) pushProfile(c *gin.Context, profileID string) {
	sess, ok := h.sessions.Lookup(model.UserIdentity(profileID))
	if !ok {
		return
	}
	profile, err := h.sessions.Refresh(c.Request.Context(), sess)
	if err != nil {
		return
	}
	if h.notifier == nil {
		return
	}
	err = h.notifier.SendToSession(sess.ID, &ws.Message{
		Type: ws.TypeCreditsUpdated,
		Data: h.credits.Info(profile, false),
	})
	if err != nil && !errors.Is(err, ws.ErrNotConnected) {
		h.logger.Warn("push profile update failed", "session_id", sess.ID, "error", err)
	}
}

// Current 当前用户的有效订阅
// GET /api/v1/subscription
func (h *SubscriptionHandler) Current(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}
	if sess.Identity.IsGuest() {
		response.AuthError(c, "")
		return
	}

	info, err := h.subscriptions.Get(sess.Identity.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoSubscription) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}
	response.Success(c, info)
}
