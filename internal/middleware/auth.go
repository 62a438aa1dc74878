// Package middleware 提供 HTTP 请求的中间件
// 包括 JWT 认证、CORS 跨域、日志记录、限流等
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chongxue30/stu-agent/pkg/jwt"
	"github.com/chongxue30/stu-agent/pkg/response"
	"github.com/chongxue30/stu-agent/pkg/util"
)

// 上下文键
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextToken    = "token"
	ContextTokenExp = "token_exp"
)

// TokenBlacklist 查询 Token 是否已登出
type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, tokenHash string) bool
}

// AuthMiddleware 创建 JWT 认证中间件
// 验证请求头中的 Bearer Token，并将用户信息存入上下文
// 参数:
//   - jwtService: JWT 服务实例，用于解析和验证 Token
//   - blacklist: Token 黑名单，通常是 Redis 缓存
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func AuthMiddleware(jwtService *jwt.JWTService, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.AbortWithCode(c, http.StatusUnauthorized, response.CodeUnauthorized, "请先登录")
			return
		}

		// 只接受 Access Token，Refresh Token 不能用于访问接口
		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			response.AbortWithCode(c, http.StatusUnauthorized, response.CodeUnauthorized, "Token 无效或已过期")
			return
		}

		// 用户登出后，Token 会被加入黑名单
		if blacklist != nil && blacklist.IsTokenBlacklisted(c.Request.Context(), util.HashToken(tokenString)) {
			response.AbortWithCode(c, http.StatusUnauthorized, response.CodeUnauthorized, "Token 已失效，请重新登录")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextToken, tokenString)
		if claims.ExpiresAt != nil {
			c.Set(ContextTokenExp, claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// bearerToken 解析 "Bearer <token>"
// WebSocket 握手无法自定义请求头，允许通过 token 查询参数传递
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return c.Query("token")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserID 从上下文获取用户 ID 的辅助函数
// 返回:
//   - int64: 用户 ID，如果未认证返回 0
func GetUserID(c *gin.Context) int64 {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return 0
	}
	id, _ := userID.(int64)
	return id
}

// GetUsername 从上下文获取用户名的辅助函数
func GetUsername(c *gin.Context) string {
	return c.GetString(ContextUsername)
}
