package mapping

import (
	"context"
	"net"
	"net/http"

	"github.com/dep2p/go-natmap/internal/core/natpmp"
	"github.com/dep2p/go-natmap/internal/core/upnp"
	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              NAT-PMP 策略
// ============================================================================

// natpmpMapper 将 natpmp.Client 适配为 PortMapper
//
// 非 0 结果码转换为 *natpmp.ResultError 以驱动回退链。
type natpmpMapper struct {
	client *natpmp.Client
	port   int
}

var _ interfaces.PortMapper = (*natpmpMapper)(nil)

func newNATPMPMapper(client *natpmp.Client, port int) *natpmpMapper {
	return &natpmpMapper{client: client, port: port}
}

func (m *natpmpMapper) Method() types.Method {
	return types.MethodNATPMP
}

func (m *natpmpMapper) AddMapping(ctx context.Context, req interfaces.PortMapRequest) error {
	c, release, err := m.clientFor(req.Gateway)
	if err != nil {
		return err
	}
	defer release()

	resp, err := c.AddMapping(ctx, req.Protocol, req.PrivatePort, req.PublicPort, seconds(req.TTL))
	if err != nil {
		return err
	}
	if !resp.Success() {
		return &natpmp.ResultError{Op: "map", Code: resp.ResultCode}
	}
	return nil
}

func (m *natpmpMapper) RemoveMapping(ctx context.Context, req interfaces.PortMapRequest) error {
	c, release, err := m.clientFor(req.Gateway)
	if err != nil {
		return err
	}
	defer release()

	resp, err := c.RemoveMapping(ctx, req.Protocol, req.PrivatePort, req.PublicPort)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return &natpmp.ResultError{Op: "unmap", Code: resp.ResultCode}
	}
	return nil
}

func (m *natpmpMapper) ExternalAddress(ctx context.Context) (net.IP, error) {
	resp, err := m.client.ExternalAddress(ctx)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &natpmp.ResultError{Op: "external address", Code: resp.ResultCode}
	}
	return resp.Address, nil
}

func (m *natpmpMapper) Close() error {
	return m.client.Close()
}

// clientFor 返回网关对应的客户端
//
// 覆盖网关与默认网关不同时创建一次性客户端，用完即关闭。
func (m *natpmpMapper) clientFor(gw net.IP) (*natpmp.Client, func(), error) {
	if gw == nil || gw.Equal(m.client.Gateway()) {
		return m.client, func() {}, nil
	}
	c, err := natpmp.NewClient(gw, clientOptions(m.port)...)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

// ============================================================================
//                              UPnP 策略
// ============================================================================

// upnpMapper 将 upnp.ControlPoint 适配为 PortMapper
//
// 网关由根描述文档决定，请求中的网关覆盖对 UPnP 无效。
type upnpMapper struct {
	cp   *upnp.ControlPoint
	doer upnp.HTTPDoer
}

var _ interfaces.PortMapper = (*upnpMapper)(nil)

func newUPnPMapper(cp *upnp.ControlPoint, doer upnp.HTTPDoer) *upnpMapper {
	return &upnpMapper{cp: cp, doer: doer}
}

func (m *upnpMapper) Method() types.Method {
	return types.MethodUPnP
}

func (m *upnpMapper) AddMapping(ctx context.Context, req interfaces.PortMapRequest) error {
	return m.cp.AddPortMapping(ctx, req.Protocol, req.PublicPort, req.PrivatePort, req.Description, seconds(req.TTL))
}

func (m *upnpMapper) RemoveMapping(ctx context.Context, req interfaces.PortMapRequest) error {
	return m.cp.DeletePortMapping(ctx, req.Protocol, req.PublicPort)
}

func (m *upnpMapper) ExternalAddress(ctx context.Context) (net.IP, error) {
	return m.cp.GetExternalIPAddress(ctx)
}

func (m *upnpMapper) Close() error {
	if c, ok := m.doer.(*http.Client); ok {
		c.CloseIdleConnections()
	}
	return nil
}

// ============================================================================
//                              策略装配
// ============================================================================

// strategyDeps 构造策略所需的外部组件
type strategyDeps struct {
	gateway interfaces.GatewayResolver
	locator interfaces.RootLocator
	doer    upnp.HTTPDoer
}

// buildStrategies 按固定顺序（NAT-PMP 在前）构造启用的策略
//
// 网关无法解析时跳过 NAT-PMP，不影响 UPnP。
func buildStrategies(cfg Config, deps strategyDeps) []interfaces.PortMapper {
	var out []interfaces.PortMapper

	if cfg.EnablePMP {
		if m := buildNATPMP(cfg, deps.gateway); m != nil {
			out = append(out, m)
		}
	}

	if cfg.EnableUPnP {
		doer := deps.doer
		if doer == nil {
			doer = upnp.NewHTTPClient(cfg.HTTPTimeout)
		}
		cp := upnp.NewControlPoint(deps.locator, doer, upnp.Config{
			PermanentFallback: cfg.UPnPPermanentFallback,
		})
		out = append(out, newUPnPMapper(cp, doer))
	}

	return out
}

func buildNATPMP(cfg Config, resolver interfaces.GatewayResolver) interfaces.PortMapper {
	if resolver == nil {
		log.Warn("未配置网关解析器，跳过 NAT-PMP")
		return nil
	}
	gw, err := resolver.Gateway()
	if err != nil {
		log.Warn("无法解析网关，跳过 NAT-PMP", "err", err)
		return nil
	}
	client, err := natpmp.NewClient(gw, clientOptions(cfg.NATPMPPort)...)
	if err != nil {
		log.Warn("创建 NAT-PMP 客户端失败", "gateway", gw.String(), "err", err)
		return nil
	}
	log.Debug("NAT-PMP 已启用", "gateway", gw.String(), "port", client.Port())
	return newNATPMPMapper(client, cfg.NATPMPPort)
}

// clientOptions 端口为 0 时使用默认网关端口
func clientOptions(port int) []natpmp.Option {
	if port <= 0 {
		return nil
	}
	return []natpmp.Option{natpmp.WithPort(port)}
}
