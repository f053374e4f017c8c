package mapping

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/internal/core/metrics"
	"github.com/dep2p/go-natmap/internal/core/upnp"
	"github.com/dep2p/go-natmap/pkg/interfaces"
)

// Params 编排器依赖参数
type Params struct {
	fx.In

	LC         fx.Lifecycle
	UnifiedCfg *config.Config `optional:"true"`

	// Gateway NAT-PMP 网关解析
	Gateway interfaces.GatewayResolver `optional:"true"`

	// Locator UPnP 根描述文档定位
	Locator interfaces.RootLocator `optional:"true"`

	// HTTP UPnP 使用的 HTTP 客户端，缺省按配置超时创建
	HTTP upnp.HTTPDoer `optional:"true"`

	Clock   clock.Clock        `optional:"true"`
	Metrics *metrics.Collector `optional:"true"`
}

// Module 是 mapping 的 Fx 模块
var Module = fx.Module("mapping",
	fx.Provide(ProvideService),
)

// ProvideService 按配置装配策略并创建编排器，停止时销毁
func ProvideService(p Params) *Service {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	strategies := buildStrategies(cfg, strategyDeps{
		gateway: p.Gateway,
		locator: p.Locator,
		doer:    p.HTTP,
	})
	if len(strategies) == 0 {
		log.Warn("没有可用的端口映射协议")
	}

	svc := NewService(cfg, strategies, WithClock(p.Clock), WithMetrics(p.Metrics))

	p.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := svc.Destroy(ctx); err != nil && !errors.Is(err, ErrClientDestroyed) {
				return err
			}
			return nil
		},
	})
	return svc
}
