package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// settings 日志配置
type settings struct {
	// DefaultLevel 未单独配置的子系统使用的级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式，只在 logger 创建时生效
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定子系统的日志级别
func (c *settings) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

// configFromEnv 从环境变量解析配置
//
//   - NATMAP_LOG_LEVEL: 子系统=级别,...,默认级别（如 natpmp=debug,upnp=warn,info）
//   - NATMAP_LOG_FORMAT: text 或 json
//   - NATMAP_LOG_ADD_SOURCE: true 或 false
//
// 环境变量中的无效级别被忽略，不阻止进程启动。
func configFromEnv() *settings {
	cfg := &settings{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
	}

	if s := os.Getenv("NATMAP_LOG_LEVEL"); s != "" {
		def, subs, _ := ParseLevels(s)
		if def != nil {
			cfg.DefaultLevel = *def
		}
		for name, level := range subs {
			cfg.SubsystemLevels[name] = level
		}
	}

	if strings.EqualFold(strings.TrimSpace(os.Getenv("NATMAP_LOG_FORMAT")), "json") {
		cfg.Format = FormatJSON
	}

	if s := os.Getenv("NATMAP_LOG_ADD_SOURCE"); s != "" {
		cfg.AddSource = s != "false" && s != "0"
	}
	return cfg
}

// ParseLevels 解析级别配置字符串
//
// 格式为逗号分隔的 "子系统=级别" 与至多一个裸级别（默认级别）。
// 无效项不影响有效项的解析，全部错误合并返回。
func ParseLevels(s string) (def *slog.Level, subsystems map[string]slog.Level, err error) {
	subsystems = make(map[string]slog.Level)
	var bad []string

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, levelName, scoped := strings.Cut(part, "=")
		if !scoped {
			levelName = name
		}
		level, ok := parseLevel(strings.TrimSpace(levelName))
		if !ok {
			bad = append(bad, part)
			continue
		}
		if scoped {
			subsystems[strings.TrimSpace(name)] = level
		} else {
			l := level
			def = &l
		}
	}

	if len(bad) > 0 {
		err = fmt.Errorf("invalid log level %q", strings.Join(bad, ","))
	}
	return def, subsystems, err
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
