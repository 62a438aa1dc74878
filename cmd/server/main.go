// Package main 是服务端的入口点
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chongxue30/stu-agent/internal/cache"
	"github.com/chongxue30/stu-agent/internal/config"
	"github.com/chongxue30/stu-agent/internal/database"
	"github.com/chongxue30/stu-agent/internal/handler"
	"github.com/chongxue30/stu-agent/internal/history"
	"github.com/chongxue30/stu-agent/internal/llm"
	"github.com/chongxue30/stu-agent/internal/metrics"
	"github.com/chongxue30/stu-agent/internal/middleware"
	"github.com/chongxue30/stu-agent/internal/repository"
	"github.com/chongxue30/stu-agent/internal/service"
	"github.com/chongxue30/stu-agent/internal/websocket"
	"github.com/chongxue30/stu-agent/pkg/jwt"
	"github.com/chongxue30/stu-agent/pkg/logger"
)

func main() {
	configPath := flag.String("config", "./configs", "配置文件目录")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	db, err := database.Open(cfg.Database, cfg.Server.Mode)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			slog.Warn("failed to close redis", "error", err)
		}
	}()

	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpire,
		cfg.JWT.RefreshExpire,
	)
	recorder := metrics.NewRecorder()

	// Repository 层
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	modelRepo := repository.NewAIModelRepository(db)
	keyRepo := repository.NewAPIKeyRepository(db)
	roleRepo := repository.NewChatRoleRepository(db)

	// Service 层
	historyStore := history.NewStore(service.NewHistoryLoader(msgRepo, cfg.AI.HistoryRebuildLimit))
	assembler := service.NewContextAssembler(msgRepo, roleRepo, modelRepo, cfg.AI.DefaultMaxContexts)
	resolver := service.NewModelResolver(modelRepo, keyRepo, llm.NewClient)

	authService := service.NewAuthService(userRepo, redisCache, jwtService)
	userService := service.NewUserService(userRepo)
	chatService := service.NewChatService(convRepo, msgRepo, assembler, resolver, historyStore, recorder, redisCache, cfg.AI)
	convService := service.NewConversationService(convRepo, msgRepo, modelRepo, roleRepo, historyStore, cfg.AI)
	messageService := service.NewMessageService(convRepo, msgRepo)
	roleService := service.NewChatRoleService(roleRepo, modelRepo)
	modelService := service.NewAIModelService(modelRepo, keyRepo)

	// WebSocket Hub，随进程退出关闭全部连接
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := websocket.NewHub()
	go wsHub.Run(hubCtx)

	h := handlers{
		auth:         handler.NewAuthHandler(authService),
		user:         handler.NewUserHandler(userService),
		conversation: handler.NewConversationHandler(convService),
		message:      handler.NewChatMessageHandler(chatService, messageService),
		role:         handler.NewChatRoleHandler(roleService),
		model:        handler.NewAIModelHandler(modelService),
		ws:           websocket.NewHandler(wsHub, chatService, jwtService, redisCache, cfg.Server.CORS),
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(cfg.Server.CORS...)))

	limiter := middleware.NewUserRateLimiter(cfg.AI.RateLimitRPS, cfg.AI.RateLimitBurst)
	registerRoutes(router, jwtService, redisCache, recorder, limiter, h)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr, "mode", cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	}

	// 先关闭 WebSocket，进行中的流式回复按中断处理并完成补偿
	stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited")
	return nil
}

type handlers struct {
	auth         *handler.AuthHandler
	user         *handler.UserHandler
	conversation *handler.ConversationHandler
	message      *handler.ChatMessageHandler
	role         *handler.ChatRoleHandler
	model        *handler.AIModelHandler
	ws           *websocket.Handler
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	jwtService *jwt.JWTService,
	redisCache *cache.RedisCache,
	recorder *metrics.Recorder,
	limiter *middleware.UserRateLimiter,
	h handlers,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := redisCache.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(recorder.Handler()))

	authRequired := middleware.AuthMiddleware(jwtService, redisCache)

	v1 := router.Group("/api/v1")

	// 认证相关
	auth := v1.Group("/auth")
	{
		auth.POST("/register", h.auth.Register)
		auth.POST("/login", h.auth.Login)
		auth.POST("/refresh", h.auth.RefreshToken)
		auth.POST("/logout", authRequired, h.auth.Logout)
	}

	// 用户相关
	users := v1.Group("/users", authRequired)
	{
		users.GET("/me", h.user.GetProfile)
		users.PUT("/me", h.user.UpdateProfile)
		users.PUT("/me/password", h.user.ChangePassword)
	}

	ai := v1.Group("/ai", authRequired)

	conversation := ai.Group("/chat/conversation")
	{
		conversation.POST("/create", h.conversation.Create)
		conversation.PUT("/update", h.conversation.Update)
		conversation.DELETE("/delete/:id", h.conversation.Delete)
		conversation.GET("/get/:id", h.conversation.Get)
		conversation.GET("/list", h.conversation.List)
		conversation.POST("/toggle-pin/:id", h.conversation.TogglePin)
	}

	message := ai.Group("/chat/message")
	{
		// 推理接口按用户限流
		message.POST("/send", limiter.Middleware(), h.message.Send)
		message.POST("/send-stream", limiter.Middleware(), h.message.SendStream)
		message.POST("/remember", limiter.Middleware(), h.message.Remember)
		message.GET("/list/:conversation_id", h.message.List)
		message.DELETE("/delete/:id", h.message.Delete)
	}

	role := ai.Group("/chat-role")
	{
		role.POST("/create", h.role.Create)
		role.PUT("/update", h.role.Update)
		role.DELETE("/delete/:id", h.role.Delete)
		role.GET("/get/:id", h.role.Get)
		role.GET("/list", h.role.List)
		role.GET("/category-list", h.role.Categories)
	}

	aiModel := ai.Group("/model")
	{
		aiModel.GET("/simple-list", h.model.SimpleModelList)
		aiModel.POST("/create", h.model.CreateModel)
	}

	apiKey := ai.Group("/api-key")
	{
		apiKey.POST("/create", h.model.CreateAPIKey)
		apiKey.GET("/simple-list", h.model.SimpleAPIKeyList)
	}

	// WebSocket 路由
	h.ws.RegisterRoutes(router)
}
