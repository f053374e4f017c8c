package mapping

import (
	"time"

	"github.com/dep2p/go-natmap/config"
)

// MinTTL 默认租期下限
const MinTTL = 1200 * time.Second

// RenewMargin 在租期结束前多久续期
const RenewMargin = 600 * time.Second

// renewTimeout 单次续期的超时
const renewTimeout = 30 * time.Second

// Config 编排器配置
type Config struct {
	// TTL 默认租期，构造时提升到 MinTTL
	TTL time.Duration

	// Description 默认映射描述
	Description string

	// AutoUpdate 是否自动续期
	AutoUpdate bool

	// EnablePMP 是否启用 NAT-PMP
	EnablePMP bool

	// EnableUPnP 是否启用 UPnP
	EnableUPnP bool

	// UPnPPermanentFallback 725 永久租约回退
	UPnPPermanentFallback bool

	// NATPMPPort 网关 NAT-PMP 端口
	NATPMPPort int

	// HTTPTimeout UPnP HTTP 超时
	HTTPTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(config.NewConfig())
}

// ConfigFromUnified 从统一配置创建编排器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		TTL:                   cfg.Mapping.TTL.Duration(),
		Description:           cfg.Mapping.Description,
		AutoUpdate:            cfg.Mapping.AutoUpdate,
		EnablePMP:             cfg.NATPMP.Enable,
		EnableUPnP:            cfg.UPnP.Enable,
		UPnPPermanentFallback: cfg.UPnP.PermanentFallback,
		NATPMPPort:            cfg.NATPMP.Port,
		HTTPTimeout:           cfg.UPnP.HTTPTimeout.Duration(),
	}
}

// normalized 应用租期下限
func (c Config) normalized() Config {
	if c.TTL < MinTTL {
		c.TTL = MinTTL
	}
	c.TTL = c.TTL.Truncate(time.Second)
	return c
}

// renewDelay 返回续期定时器的延迟：ttl-600s，不为正时取 ttl/2
func renewDelay(ttl time.Duration) time.Duration {
	if d := ttl - RenewMargin; d > 0 {
		return d
	}
	return ttl / 2
}
