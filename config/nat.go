package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NATPMPConfig NAT-PMP 配置
type NATPMPConfig struct {
	// Enable 是否启用 NAT-PMP（优先于 UPnP 尝试）
	Enable bool `json:"enable"`

	// Port 网关 NAT-PMP 端口
	Port int `json:"port"`
}

// DefaultNATPMPConfig 返回默认 NAT-PMP 配置
func DefaultNATPMPConfig() NATPMPConfig {
	return NATPMPConfig{
		Enable: false,
		Port:   5351,
	}
}

// Validate 验证 NAT-PMP 配置
func (c NATPMPConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("NAT-PMP port %d out of range", c.Port)
	}
	return nil
}

// UPnPConfig UPnP 配置
type UPnPConfig struct {
	// Enable 是否启用 UPnP
	Enable bool `json:"enable"`

	// PermanentFallback 网关返回 725 时以永久租约重试一次
	PermanentFallback bool `json:"permanent_fallback"`

	// RootURL 根设备描述 URL，为空时通过 SSDP 发现
	RootURL string `json:"root_url,omitempty"`

	// HTTPTimeout 描述获取与 SOAP 调用超时
	HTTPTimeout Duration `json:"http_timeout"`
}

// DefaultUPnPConfig 返回默认 UPnP 配置
func DefaultUPnPConfig() UPnPConfig {
	return UPnPConfig{
		Enable:            true,
		PermanentFallback: false,
		HTTPTimeout:       Duration(5 * time.Second),
	}
}

// Validate 验证 UPnP 配置
func (c UPnPConfig) Validate() error {
	if c.HTTPTimeout <= 0 {
		return errors.New("UPnP http timeout must be positive")
	}
	if raw := strings.TrimSpace(c.RootURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("UPnP root url: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("UPnP root url %q must be an absolute http(s) URL", c.RootURL)
		}
	}
	return nil
}

// WithPermanentFallback 设置 725 永久租约回退
func (c UPnPConfig) WithPermanentFallback(enabled bool) UPnPConfig {
	c.PermanentFallback = enabled
	return c
}
