package handler

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/service"
)

// 截图解码后的上限
const maxImageBytes = 8 << 20

type GenerationHandler struct {
	generation *service.GenerationService
}

func NewGenerationHandler(generation *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		generation: generation,
	}
}

// Generate 生成回复或简介
// POST /api/v1/generate
func (h *GenerationHandler) Generate(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	image, err := decodeImage(req.ImageBase64, req.ImageMIMEType)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	outcome, err := h.generation.Generate(c.Request.Context(), sess, &model.GenerationRequest{
		Mode:  model.GenerationMode(req.Mode),
		Text:  req.Text,
		Image: image,
		Style: req.Style,
	})
	if err != nil {
		var afford *service.AffordabilityError
		switch {
		case errors.As(err, &afford):
			response.ErrorWithData(c, response.CodeQuotaExceeded, afford.Error(), &dto.PaywallInfo{
				Hard:        afford.Hard,
				Credits:     afford.Credits,
				Cost:        afford.Cost,
				ShowPaywall: true,
			})
		case errors.Is(err, service.ErrEmptyInput):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrGenerationInProgress):
			response.DuplicateError(c, err.Error())
		case errors.Is(err, service.ErrSessionEnded):
			response.Error(c, response.CodeSessionEnded, "")
		default:
			response.ServerError(c, "")
		}
		return
	}

	resp := &dto.GenerateResponse{
		Status:      string(outcome.Status),
		Result:      outcome.Result,
		Cost:        outcome.Cost,
		Charged:     outcome.Charged,
		Credits:     outcome.Credits,
		IsPremium:   outcome.IsPremium,
		AdScheduled: outcome.AdCheckScheduled,
	}

	switch outcome.Status {
	case service.StatusBlocked:
		response.ErrorWithData(c, response.CodeContentBlocked, "", resp)
	case service.StatusFailed:
		response.ErrorWithData(c, response.CodeGenerationFailed, "", resp)
	default:
		response.Success(c, resp)
	}
}

// decodeImage 支持纯 base64 与 data URL
func decodeImage(encoded, mimeType string) (*model.Image, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}

	if strings.HasPrefix(encoded, "data:") {
		header, payload, found := strings.Cut(encoded, ",")
		if !found {
			return nil, errors.New("图片格式错误")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		encoded = payload
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.New("图片编码错误")
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("图片过大")
	}
	return &model.Image{MIMEType: mimeType, Data: data}, nil
}
