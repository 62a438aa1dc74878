package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chongxue30/stu-agent/internal/middleware"
	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/pkg/response"
	"github.com/chongxue30/stu-agent/pkg/util"
)

// AuthHandler 认证请求处理器
// 处理用户注册、登录、登出和 Token 刷新
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register 用户注册
// @Summary 用户注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.RegisterRequest true "注册信息"
// @Success 200 {object} response.Response{data=service.RegisterResponse}
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}

	response.SuccessWithMessage(c, "注册成功", result)
}

// Login 用户登录
// @Summary 用户登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param body body service.LoginRequest true "登录信息"
// @Success 200 {object} response.Response{data=service.LoginResponse}
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		renderError(c, err)
		return
	}

	response.SuccessWithMessage(c, "登录成功", result)
}

// Logout 用户登出，将当前 Token 加入黑名单
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.ContextToken)
	if token == "" {
		response.BadRequest(c, "无法获取 Token 信息")
		return
	}
	expireAt := c.GetTime(middleware.ContextTokenExp)
	if expireAt.IsZero() {
		expireAt = time.Now().Add(24 * time.Hour)
	}

	if err := h.authService.Logout(c.Request.Context(), util.HashToken(token), expireAt); err != nil {
		renderError(c, err)
		return
	}

	response.SuccessWithMessage(c, "登出成功", nil)
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken 使用 Refresh Token 获取新的 Access Token
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		response.Unauthorized(c, "Refresh Token 无效或已过期")
		return
	}

	response.Success(c, result)
}
