package discovery

import (
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/pkg/interfaces"
)

// Config 发现配置
type Config struct {
	// Gateway 配置的网关地址，空表示使用系统默认网关
	Gateway string

	// RootURL 配置的 UPnP 根描述 URL，空表示 SSDP 搜索
	RootURL string

	// SSDPTimeout 单次 SSDP 搜索超时
	SSDPTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建发现配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		Gateway:     cfg.Mapping.Gateway,
		RootURL:     cfg.UPnP.RootURL,
		SSDPTimeout: cfg.Discovery.SSDPTimeout.Duration(),
	}
}

// Params 发现模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result 发现模块输出
type Result struct {
	fx.Out

	// Gateway NAT-PMP 网关解析
	Gateway interfaces.GatewayResolver

	// Locator UPnP 根描述定位
	Locator interfaces.RootLocator
}

// Module 是 discovery 的 Fx 模块
var Module = fx.Module("discovery",
	fx.Provide(Provide),
)

// Provide 按配置创建网关解析器与根描述定位器
//
// 配置了 RootURL 时使用 StaticLocator，否则使用 SSDPLocator。
func Provide(p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)

	resolver := NewGatewayResolver(cfg.Gateway)

	var locator interfaces.RootLocator
	if cfg.RootURL != "" {
		static, err := NewStaticLocator(cfg.RootURL)
		if err != nil {
			return Result{}, err
		}
		locator = static
		log.Debug("使用配置的 UPnP 根描述 URL", "url", cfg.RootURL)
	} else {
		locator = NewSSDPLocator(cfg.SSDPTimeout, resolver.Gateway)
	}

	return Result{Gateway: resolver, Locator: locator}, nil
}
