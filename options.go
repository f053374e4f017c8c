package natmap

import (
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/pkg/interfaces"
)

// Option 客户端配置选项函数
type Option func(*clientConfig) error

// clientConfig 内部选项结构
type clientConfig struct {
	// config 统一配置，选项直接修改它
	config *config.Config

	// 组件覆盖（测试或嵌入场景）
	locator    interfaces.RootLocator
	gateway    interfaces.GatewayResolver
	httpClient *http.Client
	clock      clock.Clock

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

func newClientConfig() *clientConfig {
	return &clientConfig{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置（后续选项在其基础上修改）
func WithConfig(cfg *config.Config) Option {
	return func(c *clientConfig) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		c.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(c *clientConfig) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		c.config = cfg
		return nil
	}
}

// WithEnv 应用 NATMAP_ 前缀的环境变量
func WithEnv() Option {
	return func(c *clientConfig) error {
		config.ApplyEnv(c.config)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              映射默认值
// ════════════════════════════════════════════════════════════════════════════

// WithTTL 设置默认租期（低于 20 分钟时被提升）
func WithTTL(ttl time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.Mapping = c.config.Mapping.WithTTL(ttl)
		return nil
	}
}

// WithDescription 设置默认映射描述
func WithDescription(desc string) Option {
	return func(c *clientConfig) error {
		c.config.Mapping.Description = desc
		return nil
	}
}

// WithGateway 指定网关 IPv4 地址，不再查询系统默认网关
func WithGateway(gateway string) Option {
	return func(c *clientConfig) error {
		c.config.Mapping = c.config.Mapping.WithGateway(gateway)
		return nil
	}
}

// WithAutoUpdate 设置是否自动续期
func WithAutoUpdate(enabled bool) Option {
	return func(c *clientConfig) error {
		c.config.Mapping.AutoUpdate = enabled
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              协议
// ════════════════════════════════════════════════════════════════════════════

// WithNATPMP 启用或禁用 NAT-PMP
func WithNATPMP(enabled bool) Option {
	return func(c *clientConfig) error {
		c.config.NATPMP.Enable = enabled
		return nil
	}
}

// WithUPnP 启用或禁用 UPnP
func WithUPnP(enabled bool) Option {
	return func(c *clientConfig) error {
		c.config.UPnP.Enable = enabled
		return nil
	}
}

// WithPermanentFallback 网关返回 725 时以永久租约重试一次
func WithPermanentFallback(enabled bool) Option {
	return func(c *clientConfig) error {
		c.config.UPnP = c.config.UPnP.WithPermanentFallback(enabled)
		return nil
	}
}

// WithRootURL 指定 UPnP 根描述 URL，跳过 SSDP 搜索
func WithRootURL(rootURL string) Option {
	return func(c *clientConfig) error {
		c.config.UPnP.RootURL = rootURL
		return nil
	}
}

// WithMetrics 启用或禁用 Prometheus 指标
func WithMetrics(enabled bool) Option {
	return func(c *clientConfig) error {
		c.config.Metrics.Enable = enabled
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件覆盖
// ════════════════════════════════════════════════════════════════════════════

// WithHTTPClient 指定 UPnP 使用的 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithRootLocator 替换 UPnP 根描述定位器
func WithRootLocator(l interfaces.RootLocator) Option {
	return func(c *clientConfig) error {
		if l == nil {
			return errors.New("root locator is nil")
		}
		c.locator = l
		return nil
	}
}

// WithGatewayResolver 替换 NAT-PMP 网关解析器
func WithGatewayResolver(r interfaces.GatewayResolver) Option {
	return func(c *clientConfig) error {
		if r == nil {
			return errors.New("gateway resolver is nil")
		}
		c.gateway = r
		return nil
	}
}

// WithClock 替换续期使用的时钟
func WithClock(clk clock.Clock) Option {
	return func(c *clientConfig) error {
		c.clock = clk
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(c *clientConfig) error {
		c.userFxOptions = append(c.userFxOptions, opts...)
		return nil
	}
}
