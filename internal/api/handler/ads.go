package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/service"
)

type AdsHandler struct{}

func NewAdsHandler() *AdsHandler {
	return &AdsHandler{}
}

// Banner 显示或隐藏横幅广告。Web 端与会员为空操作
// POST /api/v1/ads/banner
func (h *AdsHandler) Banner(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}

	var req dto.BannerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	visible := req.Visible
	if p := sess.Profile(); p != nil && p.IsPremium {
		visible = false
	}

	var err error
	if visible {
		err = sess.Ads.ShowBanner(c.Request.Context())
	} else {
		err = sess.Ads.HideBanner(c.Request.Context())
	}
	if err != nil {
		if errors.Is(err, service.ErrAdBusy) {
			response.DuplicateError(c, "广告操作进行中")
			return
		}
		response.ServerError(c, "广告操作失败")
		return
	}

	response.Success(c, gin.H{
		"visible": visible && sess.Native(),
		"native":  sess.Native(),
	})
}
