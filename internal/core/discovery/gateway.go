package discovery

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/jackpal/gateway"
)

// discoverGateway 系统默认网关查询，测试中替换
var discoverGateway = gateway.DiscoverGateway

// DefaultGateway 返回系统默认网关的 IPv4 地址
func DefaultGateway() (net.IP, error) {
	ip, err := discoverGateway()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGateway, err)
	}
	if ip == nil {
		return nil, ErrNoGateway
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotIPv4, ip)
	}
	return ip4, nil
}

// ParseGateway 解析配置中的网关地址，只接受 IPv4
func ParseGateway(s string) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, fmt.Errorf("discovery: invalid gateway address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotIPv4, s)
	}
	return ip4, nil
}

// ============================================================================
//                              GatewayResolver
// ============================================================================

// GatewayResolver 网关解析器
//
// 配置了网关地址时直接使用，否则查询系统默认网关。
// 结果在第一次成功后缓存。
type GatewayResolver struct {
	configured string

	mu sync.Mutex
	ip net.IP
}

// NewGatewayResolver 创建网关解析器，configured 为空表示自动发现
func NewGatewayResolver(configured string) *GatewayResolver {
	return &GatewayResolver{configured: strings.TrimSpace(configured)}
}

// Gateway 返回网关地址
func (r *GatewayResolver) Gateway() (net.IP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ip != nil {
		return r.ip, nil
	}

	var (
		ip  net.IP
		err error
	)
	if r.configured != "" {
		ip, err = ParseGateway(r.configured)
	} else {
		ip, err = DefaultGateway()
	}
	if err != nil {
		return nil, err
	}

	r.ip = ip
	log.Debug("已解析网关地址", "gateway", ip.String(), "configured", r.configured != "")
	return ip, nil
}
