package logger

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// output 所有 logger 共享的输出目标，SetOutput 后已创建的 logger 也写到新目标
var output atomic.Pointer[io.Writer]

func init() {
	var w io.Writer = os.Stderr
	output.Store(&w)
}

// switchWriter 每次写入时读取当前输出目标
type switchWriter struct{}

func (switchWriter) Write(p []byte) (int, error) {
	return (*output.Load()).Write(p)
}

// newHandler 创建子系统 handler
//
// 级别由 LevelVar 控制，由它派生的 logger（With/WithGroup）共享同一个级别。
func newHandler(subsystem string, level *slog.LevelVar, format LogFormat, addSource bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   addSource,
		ReplaceAttr: replaceAttr,
	}

	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(switchWriter{}, opts)
	} else {
		h = slog.NewTextHandler(switchWriter{}, opts)
	}
	return h.WithAttrs([]slog.Attr{slog.String("subsystem", subsystem)})
}

// replaceAttr 时间键改为 ts，级别改为小写
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(lvl))
		}
	}
	return a
}

func levelName(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}
