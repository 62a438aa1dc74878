package websocket

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chongxue30/stu-agent/internal/middleware"
	pkgJwt "github.com/chongxue30/stu-agent/pkg/jwt"
	"github.com/chongxue30/stu-agent/pkg/response"
	"github.com/chongxue30/stu-agent/pkg/util"
)

// Handler 处理 WebSocket 连接
type Handler struct {
	hub        *Hub
	chat       ChatStreamer
	jwtService *pkgJwt.JWTService
	blacklist  middleware.TokenBlacklist
	upgrader   websocket.Upgrader
}

// NewHandler 创建 WebSocket Handler
// 参数:
//   - allowedOrigins: 允许的 Origin，包含 "*" 时不校验
func NewHandler(hub *Hub, chat ChatStreamer, jwtService *pkgJwt.JWTService, blacklist middleware.TokenBlacklist, allowedOrigins []string) *Handler {
	return &Handler{
		hub:        hub,
		chat:       chat,
		jwtService: jwtService,
		blacklist:  blacklist,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// 非浏览器客户端（CLI）不带 Origin
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// HandleChatWS 处理聊天 WebSocket 连接
// 路由: GET /ws/chat?token=JWT
func (h *Handler) HandleChatWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Unauthorized(c, "需要认证 token")
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil {
		response.Unauthorized(c, "无效的 token")
		return
	}
	if h.blacklist != nil && h.blacklist.IsTokenBlacklisted(c.Request.Context(), util.HashToken(token)) {
		response.Unauthorized(c, "Token 已失效，请重新登录")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}

	client := NewClient(h.hub, conn, h.chat, claims.UserID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	slog.Info("websocket connected", "user_id", claims.UserID)
}

// RegisterRoutes 注册 WebSocket 路由
// token 在 query 中验证，不经过认证中间件
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	ws := r.Group("/ws")
	{
		ws.GET("/chat", h.HandleChatWS)
	}
}
