// Package main 是 chatctl 客户端的入口点
package main

import (
	"log/slog"
	"os"

	"github.com/chongxue30/stu-agent/internal/cli/cmd"
	"github.com/chongxue30/stu-agent/pkg/logger"
)

func main() {
	// CHATCTL_LOG_LEVEL=debug 时输出 WebSocket 调试日志
	slog.SetDefault(logger.NewWithWriter(os.Stderr, envOr("CHATCTL_LOG_LEVEL", "warn"), "text"))
	cmd.Execute()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
