package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/huin/goupnp/httpu"
	"github.com/huin/goupnp/ssdp"

	"github.com/dep2p/go-natmap/internal/core/upnp"
	"github.com/dep2p/go-natmap/internal/util/logger"
)

// 包级别日志实例
var log = logger.Logger("discovery")

// DefaultSearchTimeout 单次 SSDP 搜索超时
const DefaultSearchTimeout = 3 * time.Second

// searchSends 每次搜索发送的 M-SEARCH 次数
const searchSends = 3

// searchFunc 从 localIP 发起一次 SSDP 搜索；localIP 为 nil 时不绑定本地地址
type searchFunc func(ctx context.Context, localIP net.IP, target string) ([]*url.URL, error)

// ============================================================================
//                              StaticLocator
// ============================================================================

// StaticLocator 配置给定的根描述 URL
type StaticLocator struct {
	url *url.URL
}

// NewStaticLocator 解析根描述 URL，只接受 http/https 绝对地址
func NewStaticLocator(raw string) (*StaticLocator, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return &StaticLocator{url: u}, nil
}

// RootURL 返回配置的 URL
func (s *StaticLocator) RootURL(context.Context) (*url.URL, error) {
	u := *s.url
	return &u, nil
}

// ============================================================================
//                              SSDPLocator
// ============================================================================

// SSDPLocator 通过 SSDP 搜索定位 IGD 根描述 URL
type SSDPLocator struct {
	timeout    time.Duration
	targets    []string
	gateway    func() (net.IP, error)
	interfaces func() []iface
	search     searchFunc

	// mu 同时串行化搜索，避免并发组播
	mu     sync.Mutex
	cached *url.URL
}

// NewSSDPLocator 创建 SSDP 定位器，gw 用于候选地址排序（可为 nil）
func NewSSDPLocator(timeout time.Duration, gw func() (net.IP, error)) *SSDPLocator {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	l := &SSDPLocator{
		timeout:    timeout,
		targets:    upnp.ServiceTypes,
		gateway:    gw,
		interfaces: systemInterfaces,
	}
	l.search = l.searchFrom
	return l
}

// RootURL 返回第一个响应设备的 Location
//
// 按候选地址、再按服务类型优先级搜索；结果缓存到 Reset。
func (l *SSDPLocator) RootURL(ctx context.Context) (*url.URL, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil {
		u := *l.cached
		return &u, nil
	}

	var gw net.IP
	if l.gateway != nil {
		if ip, err := l.gateway(); err == nil {
			gw = ip
		}
	}

	sources := candidateAddresses(l.interfaces(), gw)
	if len(sources) == 0 {
		log.Debug("没有可用的 LAN 候选地址，使用未绑定的 SSDP 搜索")
	}
	// nil 表示未绑定的搜索，作为最后的尝试
	sources = append(sources, nil)

	for _, localIP := range sources {
		for _, target := range l.targets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			locations, err := l.search(ctx, localIP, target)
			if err != nil {
				log.Debug("SSDP 搜索失败", "localIP", ipString(localIP), "target", target, "err", err)
				continue
			}
			if len(locations) == 0 {
				continue
			}

			loc := locations[0]
			log.Info("发现 UPnP 网关",
				"localIP", ipString(localIP),
				"target", target,
				"location", loc.String())
			l.cached = loc
			u := *loc
			return &u, nil
		}
	}
	return nil, ErrNoDevice
}

// Reset 丢弃缓存的 Location
func (l *SSDPLocator) Reset() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}

// searchFrom 使用 goupnp httpu 客户端执行一次 SSDP 搜索
func (l *SSDPLocator) searchFrom(ctx context.Context, localIP net.IP, target string) ([]*url.URL, error) {
	var (
		client *httpu.HTTPUClient
		err    error
	)
	if localIP != nil {
		client, err = httpu.NewHTTPUClientAddr(localIP.String())
	} else {
		client, err = httpu.NewHTTPUClient()
	}
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", ipString(localIP), err)
	}
	defer func() { _ = client.Close() }()

	searchCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	responses, err := ssdp.RawSearch(searchCtx, client, target, searchSends)
	if err != nil {
		return nil, err
	}

	var locations []*url.URL
	for _, resp := range responses {
		loc, err := resp.Location()
		if err != nil {
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "any"
	}
	return ip.String()
}
