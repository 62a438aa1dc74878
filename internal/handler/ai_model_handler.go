package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/pkg/response"
)

// AIModelHandler 模型和 API 密钥管理
type AIModelHandler struct {
	modelService *service.AIModelService
}

// NewAIModelHandler 创建 AIModelHandler 实例
func NewAIModelHandler(modelService *service.AIModelService) *AIModelHandler {
	return &AIModelHandler{modelService: modelService}
}

// SimpleModelList 启用的模型列表，不包含密钥
// @Router /api/v1/ai/model/simple-list [get]
func (h *AIModelHandler) SimpleModelList(c *gin.Context) {
	items, err := h.modelService.SimpleList(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, items)
}

// CreateModel 创建模型
// @Router /api/v1/ai/model/create [post]
func (h *AIModelHandler) CreateModel(c *gin.Context) {
	var req service.CreateModelRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.modelService.CreateModel(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, service.ModelItem{ID: m.ID, Name: m.Name, Model: m.Model, Platform: m.Platform})
}

// CreateAPIKey 保存 API 密钥
// @Router /api/v1/ai/api-key/create [post]
func (h *AIModelHandler) CreateAPIKey(c *gin.Context) {
	var req service.CreateAPIKeyRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.modelService.CreateAPIKey(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, item)
}

// SimpleAPIKeyList 密钥列表，密钥打码显示
// @Router /api/v1/ai/api-key/simple-list [get]
func (h *AIModelHandler) SimpleAPIKeyList(c *gin.Context) {
	items, err := h.modelService.ListAPIKeys(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, items)
}
