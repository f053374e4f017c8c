package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}

// ValidateCompatibility 检查配置各部分是否相互兼容
//
// 两种协议都被禁用时返回错误：此时每次映射都会以"没有协议成功"失败。
// 该检查不属于 Validate，编排器允许这种配置。
func ValidateCompatibility(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if !c.NATPMP.Enable && !c.UPnP.Enable {
		return errors.New("both NAT-PMP and UPnP are disabled")
	}
	return nil
}
