package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/pkg/response"
)

// ChatRoleHandler 聊天角色
type ChatRoleHandler struct {
	roleService *service.ChatRoleService
}

// NewChatRoleHandler 创建 ChatRoleHandler 实例
func NewChatRoleHandler(roleService *service.ChatRoleService) *ChatRoleHandler {
	return &ChatRoleHandler{roleService: roleService}
}

// Create 创建角色
func (h *ChatRoleHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ChatRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, role)
}

// Update 更新角色
func (h *ChatRoleHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ChatRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ID <= 0 {
		response.BadRequest(c, "缺少角色编号")
		return
	}

	role, err := h.roleService.Update(c.Request.Context(), userID, &req)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, role)
}

// Delete 删除角色
func (h *ChatRoleHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.roleService.Delete(c.Request.Context(), userID, id); err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, true)
}

// Get 获取角色
func (h *ChatRoleHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	role, err := h.roleService.Get(c.Request.Context(), userID, id)
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, role)
}

// List 可见角色列表，可按 category 过滤
func (h *ChatRoleHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	roles, err := h.roleService.List(c.Request.Context(), userID, c.Query("category"))
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, roles)
}

// Categories 角色类别列表
func (h *ChatRoleHandler) Categories(c *gin.Context) {
	categories, err := h.roleService.Categories(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	response.Success(c, categories)
}
