package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// 环境变量
const (
	EnvPrefix = "NATMAP_"

	EnvTTL               = "TTL"
	EnvDescription       = "DESCRIPTION"
	EnvGateway           = "GATEWAY"
	EnvAutoUpdate        = "AUTO_UPDATE"
	EnvEnablePMP         = "ENABLE_PMP"
	EnvEnableUPnP        = "ENABLE_UPNP"
	EnvPermanentFallback = "UPNP_PERMANENT_FALLBACK"
	EnvRootURL           = "UPNP_ROOT_URL"
	EnvEnableMetrics     = "ENABLE_METRICS"
)

// ApplyEnv 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 支持的环境变量（均使用 NATMAP_ 前缀）：
//   - NATMAP_TTL: 默认租期（"2h" 或秒数）
//   - NATMAP_DESCRIPTION: 默认描述
//   - NATMAP_GATEWAY: 网关地址
//   - NATMAP_AUTO_UPDATE: 自动续期
//   - NATMAP_ENABLE_PMP / NATMAP_ENABLE_UPNP: 启用协议
//   - NATMAP_UPNP_PERMANENT_FALLBACK: 725 永久租约回退
//   - NATMAP_UPNP_ROOT_URL: UPnP 根描述 URL
//   - NATMAP_ENABLE_METRICS: 指标
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := lookup(EnvTTL); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.Mapping.TTL = Duration(d)
		}
	}
	if v := lookup(EnvDescription); v != "" {
		cfg.Mapping.Description = v
	}
	if v := lookup(EnvGateway); v != "" {
		cfg.Mapping.Gateway = v
	}
	if v := lookup(EnvAutoUpdate); v != "" {
		cfg.Mapping.AutoUpdate = parseBool(v)
	}
	if v := lookup(EnvEnablePMP); v != "" {
		cfg.NATPMP.Enable = parseBool(v)
	}
	if v := lookup(EnvEnableUPnP); v != "" {
		cfg.UPnP.Enable = parseBool(v)
	}
	if v := lookup(EnvPermanentFallback); v != "" {
		cfg.UPnP.PermanentFallback = parseBool(v)
	}
	if v := lookup(EnvRootURL); v != "" {
		cfg.UPnP.RootURL = v
	}
	if v := lookup(EnvEnableMetrics); v != "" {
		cfg.Metrics.Enable = parseBool(v)
	}
}

func lookup(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseDuration 解析 "2h" 形式或纯秒数
func parseDuration(s string) (time.Duration, bool) {
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}
