package handler

import (
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/pkg/response"
)

type PricingHandler struct {
	cfg *config.Config
}

func NewPricingHandler(cfg *config.Config) *PricingHandler {
	return &PricingHandler{cfg: cfg}
}

// Get 额度价格、广告节流参数与订阅套餐
// GET /api/v1/pricing
func (h *PricingHandler) Get(c *gin.Context) {
	names := make([]string, 0, len(h.cfg.Subscription.Plans))
	for name := range h.cfg.Subscription.Plans {
		names = append(names, name)
	}
	sort.Strings(names)

	plans := make([]gin.H, 0, len(names))
	for _, name := range names {
		plans = append(plans, gin.H{"plan": name, "days": h.cfg.Subscription.Plans[name]})
	}

	response.Success(c, gin.H{
		"daily_allowance": h.cfg.Credits.DailyAllowance,
		"costs": gin.H{
			"reply":       h.cfg.Credits.ReplyCost,
			"image_reply": h.cfg.Credits.ImageReplyCost,
			"bio":         h.cfg.Credits.BioCost,
		},
		"ads": gin.H{
			"grace_seconds":    h.cfg.Ads.GraceSeconds,
			"cooldown_seconds": h.cfg.Ads.CooldownSeconds,
		},
		"plans": plans,
	})
}
