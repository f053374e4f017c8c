// 端口映射策略接口。内部的 NAT-PMP 与 UPnP 客户端通过适配器实现
// PortMapper，编排器按固定顺序遍历策略列表完成回退。

package interfaces

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/dep2p/go-natmap/pkg/types"
)

// PortMapRequest 单协议映射请求（已完成校验与默认值填充）
type PortMapRequest struct {
	PublicPort  uint16
	PrivatePort uint16

	// Protocol 只会是 ProtocolUDP 或 ProtocolTCP
	Protocol types.Protocol

	// TTL 请求的租期；0 表示永久租约
	TTL time.Duration

	Description string

	// Gateway 网关覆盖（nil 表示使用构造时的网关）
	Gateway net.IP
}

// PortMapper 端口映射策略
//
// 实现：
//   - internal/core/mapping.natpmpMapper（NAT-PMP）
//   - internal/core/mapping.upnpMapper（UPnP IGD）
type PortMapper interface {
	// Method 返回策略对应的协议
	Method() types.Method

	// AddMapping 在网关上创建或续期映射
	AddMapping(ctx context.Context, req PortMapRequest) error

	// RemoveMapping 删除网关上的映射
	RemoveMapping(ctx context.Context, req PortMapRequest) error

	// ExternalAddress 查询网关的外部 IPv4 地址
	ExternalAddress(ctx context.Context) (net.IP, error)

	// Close 释放底层资源（socket、HTTP 连接等）
	Close() error
}

// RootLocator 提供 UPnP 网关根描述文档的 URL
//
// 实现：
//   - internal/core/discovery.StaticLocator（配置给定）
//   - internal/core/discovery.SSDPLocator（SSDP 组播发现）
type RootLocator interface {
	RootURL(ctx context.Context) (*url.URL, error)
}

// GatewayResolver 提供 NAT-PMP 使用的网关 IPv4 地址
//
// 实现：
//   - internal/core/discovery.GatewayResolver（配置或系统默认网关）
type GatewayResolver interface {
	Gateway() (net.IP, error)
}
