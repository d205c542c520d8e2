package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/internal/api/middleware"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/response"
	"github.com/qs3c/rizz_server/internal/service"
)

type SavedItemHandler struct {
	savedItems *service.SavedItemService
}

func NewSavedItemHandler(savedItems *service.SavedItemService) *SavedItemHandler {
	return &SavedItemHandler{
		savedItems: savedItems,
	}
}

// List 收藏列表
// GET /api/v1/saved-items?limit=50
func (h *SavedItemHandler) List(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	items, err := h.savedItems.List(c.Request.Context(), sess.Identity, limit)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.Success(c, gin.H{"items": items})
}

// Add 收藏一条生成结果
// POST /api/v1/saved-items
func (h *SavedItemHandler) Add(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}

	var req dto.CreateSavedItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	item, err := h.savedItems.Add(c.Request.Context(), sess.Identity, &req)
	if err != nil {
		if errors.Is(err, service.ErrEmptyContent) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}
	response.Success(c, item)
}

// Delete 删除收藏
// DELETE /api/v1/saved-items/:id
func (h *SavedItemHandler) Delete(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		response.Error(c, response.CodeSessionEnded, "")
		return
	}

	err := h.savedItems.Delete(c.Request.Context(), sess.Identity, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSavedItemNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}
	response.Success(c, nil)
}
