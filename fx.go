package natmap

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/internal/core/discovery"
	"github.com/dep2p/go-natmap/internal/core/mapping"
	"github.com/dep2p/go-natmap/internal/core/metrics"
	"github.com/dep2p/go-natmap/internal/core/upnp"
	"github.com/dep2p/go-natmap/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置验证
//  2. discovery: 网关解析器与 UPnP 根描述定位器
//  3. metrics: 指标收集（关闭时提供 nil）
//  4. mapping: 策略装配与编排器
//  5. 组件覆盖与用户扩展
func buildFxApp(cfg *clientConfig, client *Client) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := config.ValidateCompatibility(cfg.config); err != nil {
		log.Warn("配置不兼容，所有映射都会失败", "err", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg.config),

		discovery.Module,
		metrics.Module,
		mapping.Module,
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 组件覆盖
	// ════════════════════════════════════════════════════════════════════════
	if cfg.locator != nil {
		locator := cfg.locator
		modules = append(modules, fx.Decorate(func(interfaces.RootLocator) interfaces.RootLocator {
			return locator
		}))
	}
	if cfg.gateway != nil {
		gateway := cfg.gateway
		modules = append(modules, fx.Decorate(func(interfaces.GatewayResolver) interfaces.GatewayResolver {
			return gateway
		}))
	}
	if cfg.httpClient != nil {
		hc := cfg.httpClient
		modules = append(modules, fx.Provide(func() upnp.HTTPDoer { return hc }))
	}
	if cfg.clock != nil {
		clk := cfg.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(cfg.userFxOptions) > 0 {
		modules = append(modules, cfg.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Client 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Populate(&client.svc, &client.metrics),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}
