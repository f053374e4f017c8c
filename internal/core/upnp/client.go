package upnp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/huin/goupnp/soap"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-natmap/internal/util/logger"
	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("upnp")

// maxResponseSize SOAP 响应大小上限
const maxResponseSize = 1 << 20

// leaseDurationArg AddPortMapping 的租期参数名
const leaseDurationArg = "NewLeaseDuration"

// Config 控制点配置
type Config struct {
	// PermanentFallback 网关返回 725 时以永久租约重试一次
	PermanentFallback bool
}

// ============================================================================
//                              ControlPoint
// ============================================================================

// ControlPoint UPnP IGD 控制点
//
// 从 RootLocator 得到根描述 URL，在设备树中选定 WAN 连接服务后
// 向其 controlURL 发送 SOAP 动作。选定的服务会被缓存，传输层失败时失效。
type ControlPoint struct {
	locator interfaces.RootLocator
	http    HTTPDoer
	cfg     Config

	group singleflight.Group

	mu      sync.Mutex
	service *ServiceRef
}

// NewControlPoint 创建控制点
func NewControlPoint(locator interfaces.RootLocator, doer HTTPDoer, cfg Config) *ControlPoint {
	if doer == nil {
		doer = NewHTTPClient(DefaultHTTPTimeout)
	}
	return &ControlPoint{
		locator: locator,
		http:    doer,
		cfg:     cfg,
	}
}

// Service 返回选定的 WAN 连接服务
//
// 同一根 URL 的并发解析会合并为一次描述获取。
func (cp *ControlPoint) Service(ctx context.Context) (*ServiceRef, error) {
	cp.mu.Lock()
	cached := cp.service
	cp.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	if cp.locator == nil {
		return nil, ErrNoLocator
	}
	rootURL, err := cp.locator.RootURL(ctx)
	if err != nil {
		return nil, err
	}

	v, err, _ := cp.group.Do(rootURL.String(), func() (interface{}, error) {
		root, err := fetchRoot(ctx, cp.http, rootURL)
		if err != nil {
			return nil, err
		}
		return selectService(root, rootURL)
	})
	if err != nil {
		cp.resetLocator()
		return nil, err
	}

	svc := v.(*ServiceRef)
	cp.mu.Lock()
	cp.service = svc
	cp.mu.Unlock()

	log.Debug("已选定 UPnP 服务",
		"serviceType", svc.ServiceType,
		"controlURL", svc.ControlURL.String())
	return svc, nil
}

// invalidate 丢弃缓存的服务，下一次调用重新获取描述
func (cp *ControlPoint) invalidate(svc *ServiceRef) {
	cp.mu.Lock()
	dropped := cp.service == svc
	if dropped {
		cp.service = nil
	}
	cp.mu.Unlock()

	if dropped {
		cp.resetLocator()
	}
}

// locatorResetter 缓存了发现结果的 RootLocator（如 SSDPLocator）
type locatorResetter interface {
	Reset()
}

// resetLocator 让 locator 丢弃缓存的根 URL，网关地址变化后重新发现
func (cp *ControlPoint) resetLocator() {
	if r, ok := cp.locator.(locatorResetter); ok {
		r.Reset()
		log.Debug("已重置 UPnP 根描述发现缓存")
	}
}

// Run 执行一个 SOAP 动作，返回响应的 Body 元素
//
// 网关返回 725 且开启 PermanentFallback 时，以 NewLeaseDuration=0 重新提交一次；
// 重试结果直接返回，不再检查 725。
func (cp *ControlPoint) Run(ctx context.Context, action string, args []Arg) (*Element, error) {
	svc, err := cp.Service(ctx)
	if err != nil {
		return nil, err
	}

	body, err := cp.call(ctx, svc, action, args)
	if err == nil {
		return body, nil
	}

	if cp.cfg.PermanentFallback && IsFault(err, FaultOnlyPermanentLeasesSupported) {
		if retry, ok := replaceArg(args, leaseDurationArg, "0"); ok {
			log.Info("网关只支持永久租约，以永久租约重试", "action", action)
			return cp.call(ctx, svc, action, retry)
		}
	}

	var fault *FaultError
	if !errors.As(err, &fault) {
		cp.invalidate(svc)
	}
	return nil, err
}

// call 发送一次 SOAP 请求
func (cp *ControlPoint) call(ctx context.Context, svc *ServiceRef, action string, args []Arg) (*Element, error) {
	envelope := buildEnvelope(svc.ServiceType, action, args)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.ControlURL.String(), bytes.NewReader(envelope))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, svc.ServiceType, action))

	resp, err := cp.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upnp: %s: %w", action, err)
	}
	defer resp.Body.Close()

	payload := io.LimitReader(resp.Body, maxResponseSize)

	switch resp.StatusCode {
	case http.StatusOK:
		return parseBody(payload)

	case http.StatusInternalServerError:
		body, err := parseBody(payload)
		if err != nil {
			return nil, &StatusError{Action: action, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		code, desc, ok := parseFault(body)
		if !ok {
			return nil, &StatusError{Action: action, StatusCode: resp.StatusCode, Status: resp.Status}
		}
		fault := newFaultError(action, code, desc)
		log.Debug("UPnP 动作失败", "action", action, "code", code, "desc", fault.Description)
		return nil, fault

	default:
		return nil, &StatusError{Action: action, StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// ============================================================================
//                              IGD 动作
// ============================================================================

// AddPortMapping 添加端口映射，lease 为租期秒数（0 表示永久）
func (cp *ControlPoint) AddPortMapping(ctx context.Context, proto types.Protocol, external, internal uint16, description string, lease uint32) error {
	svc, err := cp.Service(ctx)
	if err != nil {
		return err
	}
	client, err := internalClientFor(svc.ControlURL)
	if err != nil {
		return err
	}

	externalPort, _ := soap.MarshalUi2(external)
	internalPort, _ := soap.MarshalUi2(internal)
	enabled, _ := soap.MarshalBoolean(true)
	leaseDuration, _ := soap.MarshalUi4(lease)

	_, err = cp.Run(ctx, "AddPortMapping", []Arg{
		{Name: "NewRemoteHost", Value: ""},
		{Name: "NewExternalPort", Value: externalPort},
		{Name: "NewProtocol", Value: proto.String()},
		{Name: "NewInternalPort", Value: internalPort},
		{Name: "NewInternalClient", Value: client},
		{Name: "NewEnabled", Value: enabled},
		{Name: "NewPortMappingDescription", Value: description},
		{Name: leaseDurationArg, Value: leaseDuration},
	})
	return err
}

// DeletePortMapping 删除端口映射
func (cp *ControlPoint) DeletePortMapping(ctx context.Context, proto types.Protocol, external uint16) error {
	externalPort, _ := soap.MarshalUi2(external)
	_, err := cp.Run(ctx, "DeletePortMapping", []Arg{
		{Name: "NewRemoteHost", Value: ""},
		{Name: "NewExternalPort", Value: externalPort},
		{Name: "NewProtocol", Value: proto.String()},
	})
	return err
}

// GetExternalIPAddress 查询网关外部地址
func (cp *ControlPoint) GetExternalIPAddress(ctx context.Context) (net.IP, error) {
	body, err := cp.Run(ctx, "GetExternalIPAddress", nil)
	if err != nil {
		return nil, err
	}
	raw := body.Find("NewExternalIPAddress").Value()
	ip := net.ParseIP(raw)
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid NewExternalIPAddress %q", ErrMalformedResponse, raw)
	}
	return ip, nil
}

// internalClientFor 返回本机访问 controlURL 所用的源地址
//
// UDP "拨号" 不发送数据，只让内核选路。
func internalClientFor(controlURL *url.URL) (string, error) {
	port := controlURL.Port()
	if port == "" {
		port = "80"
		if controlURL.Scheme == "https" {
			port = "443"
		}
	}
	conn, err := net.Dial("udp4", net.JoinHostPort(controlURL.Hostname(), port))
	if err != nil {
		return "", fmt.Errorf("upnp: resolve internal client address: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
