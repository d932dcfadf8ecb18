package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建输出到 stdout 的 JSON 日志记录器。
//
// level 支持 debug / info / warn / error，无法识别时使用 info。
func NewDefault(level string) *slog.Logger {
	return New(os.Stdout, level)
}

// New 创建写入 w 的 JSON 日志记录器。
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// ParseLevel 将字符串映射为 slog.Level。
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
