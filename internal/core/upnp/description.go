package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"
	"golang.org/x/net/html/charset"
)

// ServiceTypes 可用于端口映射的服务类型，按优先级排列
var ServiceTypes = []string{
	internetgateway1.URN_WANIPConnection_1,
	internetgateway2.URN_WANIPConnection_2,
	internetgateway1.URN_WANPPPConnection_1,
}

// maxDescriptionSize 设备描述文档大小上限
const maxDescriptionSize = 1 << 20

// ServiceRef 选定的 WAN 连接服务，URL 均已解析为绝对地址
type ServiceRef struct {
	ServiceType string
	ControlURL  *url.URL
	SCPDURL     *url.URL

	// RootURL 来源根描述文档
	RootURL *url.URL
}

// fetchRoot 获取并解码根设备描述
//
// 相对 URL 以文档声明的 URLBase 为基准解析，没有声明时以根描述 URL 为基准；
// URLBase 缺失的 scheme/host 由根描述 URL 补齐。
func fetchRoot(ctx context.Context, doer HTTPDoer, rootURL *url.URL) (*goupnp.RootDevice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rootURL.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upnp: fetch description %s: %w", rootURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	d := xml.NewDecoder(io.LimitReader(resp.Body, maxDescriptionSize))
	d.CharsetReader = charset.NewReaderLabel

	root := new(goupnp.RootDevice)
	if err := d.Decode(root); err != nil {
		return nil, fmt.Errorf("upnp: decode description %s: %w", rootURL, err)
	}

	base := rootURL
	if s := strings.TrimSpace(root.URLBaseStr); s != "" {
		declared, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("upnp: invalid URLBase %q: %w", s, err)
		}
		base = rootURL.ResolveReference(declared)
	}

	// 不使用 RootDevice.SetURLBase：它会给相对路径补前导 "/"，
	// 使 "ctl/IPConn" 以 host 根而不是 base 目录为基准解析
	root.URLBase = *base
	root.Device.VisitServices(func(svc *goupnp.Service) {
		svc.ServiceType = strings.TrimSpace(svc.ServiceType)
		resolveURLField(base, &svc.ControlURL)
		resolveURLField(base, &svc.SCPDURL)
		resolveURLField(base, &svc.EventSubURL)
	})
	return root, nil
}

// resolveURLField 以 base 为基准按 RFC 3986 解析描述文档中的 URL
func resolveURLField(base *url.URL, f *goupnp.URLField) {
	f.Str = strings.TrimSpace(f.Str)
	f.URL = url.URL{}
	f.Ok = false
	if f.Str == "" {
		return
	}
	ref, err := url.Parse(f.Str)
	if err != nil {
		return
	}
	f.URL = *base.ResolveReference(ref)
	f.Ok = true
}

// selectService 深度优先遍历设备树，按 ServiceTypes 优先级选取服务
//
// controlURL 与 SCPDURL 都必须存在。
func selectService(root *goupnp.RootDevice, rootURL *url.URL) (*ServiceRef, error) {
	var services []*goupnp.Service
	root.Device.VisitServices(func(svc *goupnp.Service) {
		services = append(services, svc)
	})

	for _, serviceType := range ServiceTypes {
		for _, svc := range services {
			if svc.ServiceType != serviceType {
				continue
			}
			if svc.ControlURL.Str == "" || svc.SCPDURL.Str == "" {
				log.Debug("跳过缺少 URL 的服务", "serviceType", serviceType)
				continue
			}
			if !svc.ControlURL.Ok || !svc.SCPDURL.Ok {
				log.Debug("跳过 URL 无法解析的服务", "serviceType", serviceType)
				continue
			}
			controlURL := svc.ControlURL.URL
			scpdURL := svc.SCPDURL.URL
			return &ServiceRef{
				ServiceType: serviceType,
				ControlURL:  &controlURL,
				SCPDURL:     &scpdURL,
				RootURL:     rootURL,
			}, nil
		}
	}
	return nil, ErrServiceNotFound
}
