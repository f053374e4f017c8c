package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/dep2p/go-natmap/config"
	"github.com/dep2p/go-natmap/internal/core/metrics"
	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

func TestModule_ProvidesService(t *testing.T) {
	igd := newIGDServer(t)
	cfg := config.NewConfig()
	cfg.Mapping.TTL = config.Duration(time.Minute)

	var svc *Service
	app := fxtest.New(t,
		fx.WithLogger(func() fxevent.Logger { return &fxevent.ZapLogger{Logger: zap.NewNop()} }),
		fx.Supply(cfg),
		fx.Provide(func() interfaces.RootLocator { return igd }),
		fx.Provide(func() clock.Clock { return clock.NewMock() }),
		metrics.Module,
		Module,
		fx.Populate(&svc),
	)
	app.RequireStart()

	require.NotNil(t, svc)
	assert.Equal(t, MinTTL, svc.Config().TTL, "统一配置中的过短租期被提升")
	assert.Equal(t, []types.Method{types.MethodUPnP}, svc.Methods())

	require.NoError(t, svc.Map(context.Background(), types.MappingOptions{PublicPort: 6690, Protocol: "udp"}))

	app.RequireStop()
	assert.True(t, svc.Destroyed(), "停止时销毁")
	actions, _ := igd.calls()
	assert.Equal(t, []string{"AddPortMapping", "DeletePortMapping"}, actions)
}

func TestModule_StopAfterManualDestroy(t *testing.T) {
	var svc *Service
	app := fxtest.New(t,
		fx.WithLogger(func() fxevent.Logger { return &fxevent.ZapLogger{Logger: zap.NewNop()} }),
		Module,
		fx.Populate(&svc),
	)
	app.RequireStart()
	require.NoError(t, svc.Destroy(context.Background()))
	app.RequireStop()
}
