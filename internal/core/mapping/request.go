package mapping

import (
	"math"
	"net"
	"strings"
	"time"

	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// Request 校验并填充默认值后的映射请求
type Request struct {
	PublicPort  uint16
	PrivatePort uint16

	// Protocol 可能为 ProtocolAny，执行时展开
	Protocol types.Protocol

	// TTL 整秒租期
	TTL time.Duration

	Description string

	// Gateway 本次调用的网关覆盖，nil 表示默认网关
	Gateway net.IP
}

// Key 返回请求对应的映射键
func (r Request) Key() types.MappingKey {
	return types.MappingKey{
		PublicPort:  r.PublicPort,
		PrivatePort: r.PrivatePort,
		Protocol:    r.Protocol,
	}
}

// withProtocol 返回单协议副本
func (r Request) withProtocol(p types.Protocol) Request {
	r.Protocol = p
	return r
}

// portMap 转换为策略请求
func (r Request) portMap() interfaces.PortMapRequest {
	return interfaces.PortMapRequest{
		PublicPort:  r.PublicPort,
		PrivatePort: r.PrivatePort,
		Protocol:    r.Protocol,
		TTL:         r.TTL,
		Description: r.Description,
		Gateway:     r.Gateway,
	}
}

// newRequest 校验调用参数并填充默认值
//
// 校验失败时返回 *ValidationError，不进行任何网络请求。
func newRequest(opts types.MappingOptions, cfg Config) (Request, error) {
	public, err := validatePort("public port", opts.PublicPort)
	if err != nil {
		return Request{}, err
	}

	private := public
	if opts.PrivatePort != 0 {
		if private, err = validatePort("private port", opts.PrivatePort); err != nil {
			return Request{}, err
		}
	}

	proto, err := types.ParseProtocol(opts.Protocol)
	if err != nil {
		return Request{}, invalid("protocol", "%q is not one of tcp, udp", opts.Protocol)
	}

	ttl := cfg.TTL
	switch {
	case opts.TTL < 0:
		return Request{}, invalid("ttl", "%s is negative", opts.TTL)
	case opts.TTL > 0 && opts.TTL < time.Second:
		return Request{}, invalid("ttl", "%s is shorter than one second", opts.TTL)
	case opts.TTL > time.Duration(math.MaxUint32)*time.Second:
		return Request{}, invalid("ttl", "%s exceeds the 32-bit lease range", opts.TTL)
	case opts.TTL > 0:
		ttl = opts.TTL.Truncate(time.Second)
	}

	desc := opts.Description
	if desc == "" {
		desc = cfg.Description
	}

	var gw net.IP
	if s := strings.TrimSpace(opts.Gateway); s != "" {
		ip := net.ParseIP(s)
		if ip == nil || ip.To4() == nil {
			return Request{}, invalid("gateway", "%q is not an IPv4 address", opts.Gateway)
		}
		gw = ip.To4()
	}

	return Request{
		PublicPort:  public,
		PrivatePort: private,
		Protocol:    proto,
		TTL:         ttl,
		Description: desc,
		Gateway:     gw,
	}, nil
}

func validatePort(field string, v int) (uint16, error) {
	if v < 1 || v > math.MaxUint16 {
		return 0, invalid(field, "%d is outside 1-65535", v)
	}
	return uint16(v), nil
}

// seconds 租期秒数
func seconds(d time.Duration) uint32 {
	return uint32(d / time.Second)
}
