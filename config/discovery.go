package config

import (
	"errors"
	"time"
)

// DiscoveryConfig 网关发现配置
type DiscoveryConfig struct {
	// SSDPTimeout 单次 SSDP 搜索超时
	SSDPTimeout Duration `json:"ssdp_timeout"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		SSDPTimeout: Duration(3 * time.Second),
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if c.SSDPTimeout <= 0 {
		return errors.New("SSDP timeout must be positive")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 是否收集指标
	Enable bool `json:"enable"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enable: true}
}
