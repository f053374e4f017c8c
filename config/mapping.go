package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// MappingConfig 编排器配置
type MappingConfig struct {
	// TTL 默认租期
	// 小于 20 分钟时在构造编排器时被提升到 20 分钟
	TTL Duration `json:"ttl"`

	// Description 默认映射描述
	Description string `json:"description"`

	// Gateway 网关 IPv4 地址，为空时自动发现
	Gateway string `json:"gateway,omitempty"`

	// AutoUpdate 是否在过期前自动续期
	AutoUpdate bool `json:"auto_update"`
}

// DefaultMappingConfig 返回默认编排器配置
func DefaultMappingConfig() MappingConfig {
	return MappingConfig{
		TTL:         Duration(2 * time.Hour), // 默认租期：2 小时
		Description: "go-natmap",
		AutoUpdate:  true,
	}
}

// Validate 验证编排器配置
func (c MappingConfig) Validate() error {
	if c.TTL < 0 {
		return errors.New("mapping ttl must not be negative")
	}
	if c.TTL.Duration() > time.Duration(1<<32-1)*time.Second {
		return fmt.Errorf("mapping ttl %s exceeds the 32-bit lease range", c.TTL)
	}
	if gw := strings.TrimSpace(c.Gateway); gw != "" {
		ip := net.ParseIP(gw)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("mapping gateway %q is not an IPv4 address", c.Gateway)
		}
	}
	return nil
}

// WithTTL 设置默认租期
func (c MappingConfig) WithTTL(ttl time.Duration) MappingConfig {
	c.TTL = Duration(ttl)
	return c
}

// WithGateway 设置网关地址
func (c MappingConfig) WithGateway(gateway string) MappingConfig {
	c.Gateway = gateway
	return c
}
