// Package config 提供 go-natmap 的统一配置
//
// 主 Config 结构体嵌入各组件的子配置：
//   - Mapping: 编排器（默认租期、描述、网关、自动续期）
//   - NATPMP: NAT-PMP 客户端
//   - UPnP: UPnP 控制点
//   - Discovery: 网关与 SSDP 发现
//   - Metrics: 指标
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.NATPMP.Enable = true
//
//	// 从 JSON 文件加载，再应用环境变量覆盖
//	cfg, err := config.Load("natmap.json")
//	config.ApplyEnv(cfg)
package config

// Config 是 go-natmap 的完整配置结构
type Config struct {
	// Mapping 编排器配置
	Mapping MappingConfig `json:"mapping"`

	// NATPMP NAT-PMP 配置
	NATPMP NATPMPConfig `json:"natpmp"`

	// UPnP UPnP 配置
	UPnP UPnPConfig `json:"upnp"`

	// Discovery 发现配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Mapping:   DefaultMappingConfig(),
		NATPMP:    DefaultNATPMPConfig(),
		UPnP:      DefaultUPnPConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := c.Mapping.Validate(); err != nil {
		return err
	}
	if err := c.NATPMP.Validate(); err != nil {
		return err
	}
	if err := c.UPnP.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	return nil
}
