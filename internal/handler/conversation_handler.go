package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/pkg/response"
)

// ConversationHandler 对话管理
type ConversationHandler struct {
	convService *service.ConversationService
}

// NewConversationHandler 创建 ConversationHandler 实例
func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// Create 创建对话
// @Router /api/v1/ai/chat/conversation/create [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, err := h.convService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, conv)
}

// Update 更新对话
// @Router /api/v1/ai/chat/conversation/update [put]
func (h *ConversationHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.UpdateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	conv, err := h.convService.Update(c.Request.Context(), userID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, conv)
}

// Delete 删除对话
// @Router /api/v1/ai/chat/conversation/delete/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.convService.Delete(c.Request.Context(), userID, id); err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, true)
}

// Get 获取对话
// @Router /api/v1/ai/chat/conversation/get/{id} [get]
func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.convService.Get(c.Request.Context(), userID, id)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, conv)
}

// List 对话列表，置顶在前
// @Router /api/v1/ai/chat/conversation/list [get]
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.convService.List(c.Request.Context(), userID)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, items)
}

// TogglePin 切换置顶
// @Router /api/v1/ai/chat/conversation/toggle-pin/{id} [post]
func (h *ConversationHandler) TogglePin(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	pinned, err := h.convService.TogglePin(c.Request.Context(), userID, id)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, gin.H{"pinned": pinned})
}
