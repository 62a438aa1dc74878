// Package logger 初始化进程级的结构化日志
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New 根据配置创建 slog.Logger
// 参数:
//   - level: debug / info / warn / error，无法识别时为 info
//   - format: json / text，无法识别时为 json
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter 与 New 相同，输出到指定 writer
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup 创建 logger 并设置为默认 logger
func Setup(level, format string) *slog.Logger {
	l := New(level, format)
	slog.SetDefault(l)
	return l
}

// ParseLevel 解析日志级别
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
