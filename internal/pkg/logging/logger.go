package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/qs3c/rizz_server/config"
)

// New 按配置创建日志：format 为 text 时输出文本，其余为 JSON；output 为 stderr 时写标准错误
func New(cfg config.LogConfig) *slog.Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, w)
}

// NewWithWriter 同 New，输出写到 w。级别无法识别时为 info
func NewWithWriter(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.Set(slog.LevelInfo)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", "rizz_server")
}

// Discard 丢弃全部输出，测试使用
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
