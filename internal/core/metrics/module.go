package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/config"
)

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled: true,
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled: cfg.Metrics.Enable,
	}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewCollectorFromParams),
)

// NewCollectorFromParams 从参数创建 Collector，禁用时返回 nil
func NewCollectorFromParams(p Params) *Collector {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		return nil
	}
	return NewCollector()
}
