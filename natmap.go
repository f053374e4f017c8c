package natmap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/internal/core/mapping"
	"github.com/dep2p/go-natmap/internal/core/metrics"
	"github.com/dep2p/go-natmap/internal/util/logger"
	"github.com/dep2p/go-natmap/pkg/types"
)

var log = logger.Logger("natmap")

// ════════════════════════════════════════════════════════════════════════════
//                              版本信息
// ════════════════════════════════════════════════════════════════════════════

// Version 当前版本
const Version = "v0.1.0"

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// MappingOptions 完整形式的映射参数
type MappingOptions = types.MappingOptions

// MappingInfo 已打开映射的快照
type MappingInfo = types.MappingInfo

// MappingKey 映射键
type MappingKey = types.MappingKey

// Method 完成映射的协议
type Method = types.Method

// 协议常量
const (
	MethodNATPMP = types.MethodNATPMP
	MethodUPnP   = types.MethodUPnP
)

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期常量
// ════════════════════════════════════════════════════════════════════════════

const (
	// startTimeout Fx 应用启动超时
	startTimeout = 10 * time.Second

	// closeTimeout Close 使用的销毁超时
	closeTimeout = 30 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Client
// ════════════════════════════════════════════════════════════════════════════

// Client 端口映射客户端
//
// 所有方法都可以并发调用。
type Client struct {
	config *clientConfig
	app    *fx.App

	svc     *mapping.Service
	metrics *metrics.Collector

	mu        sync.Mutex
	destroyed bool
}

// New 创建并启动客户端
//
// 构造时只解析配置与网关，不发起任何映射请求。
//
// 示例：
//
//	client, err := natmap.New(ctx,
//	    natmap.WithNATPMP(true),
//	    natmap.WithPermanentFallback(true),
//	)
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	c := &Client{config: cfg}

	app, err := buildFxApp(cfg, c)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	c.app = app

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	log.Debug("端口映射客户端已创建",
		"methods", fmt.Sprint(c.svc.Methods()),
		"ttl", c.svc.Config().TTL.String())
	return c, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              映射
// ════════════════════════════════════════════════════════════════════════════

// Map 使用完整参数打开映射
func (c *Client) Map(ctx context.Context, opts MappingOptions) error {
	return c.svc.Map(ctx, opts)
}

// MapPort 同时映射 UDP 与 TCP，公网端口与内网端口相同
func (c *Client) MapPort(ctx context.Context, port int) error {
	return c.svc.Map(ctx, MappingOptions{PublicPort: port})
}

// MapPorts 同时映射 UDP 与 TCP 的 public → private
func (c *Client) MapPorts(ctx context.Context, public, private int) error {
	return c.svc.Map(ctx, MappingOptions{PublicPort: public, PrivatePort: private})
}

// Unmap 使用完整参数关闭映射
func (c *Client) Unmap(ctx context.Context, opts MappingOptions) error {
	return c.svc.Unmap(ctx, opts)
}

// UnmapPort 关闭 MapPort 打开的映射
func (c *Client) UnmapPort(ctx context.Context, port int) error {
	return c.svc.Unmap(ctx, MappingOptions{PublicPort: port})
}

// UnmapPorts 关闭 MapPorts 打开的映射
func (c *Client) UnmapPorts(ctx context.Context, public, private int) error {
	return c.svc.Unmap(ctx, MappingOptions{PublicPort: public, PrivatePort: private})
}

// ExternalIP 返回网关的外部 IPv4 地址
//
// 所有协议都失败时返回 (nil, nil)。
func (c *Client) ExternalIP(ctx context.Context) (net.IP, error) {
	return c.svc.ExternalIP(ctx)
}

// Mappings 返回当前打开的映射
func (c *Client) Mappings() []MappingInfo {
	return c.svc.Mappings()
}

// Methods 返回启用的协议，按回退顺序排列
func (c *Client) Methods() []Method {
	return c.svc.Methods()
}

// MetricsHandler 返回 Prometheus 指标处理器，指标关闭时返回 404 处理器
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// ════════════════════════════════════════════════════════════════════════════
//                              销毁
// ════════════════════════════════════════════════════════════════════════════

// Destroy 删除所有映射并释放资源
//
// 第二次调用返回 ErrClientDestroyed。
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrClientDestroyed
	}
	c.destroyed = true
	c.mu.Unlock()

	if err := c.svc.Destroy(ctx); err != nil {
		return err
	}
	// OnStop 中的 Destroy 会返回 ErrClientDestroyed 并被忽略
	if err := c.app.Stop(ctx); err != nil {
		log.Debug("停止 Fx 应用失败", "err", err)
	}
	return nil
}

// Close 实现 io.Closer，重复调用返回 nil
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := c.Destroy(ctx); err != nil && !errors.Is(err, ErrClientDestroyed) {
		return err
	}
	return nil
}
