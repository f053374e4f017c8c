package upnp

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout 描述获取与 SOAP 调用的默认超时
const DefaultHTTPTimeout = 5 * time.Second

// HTTPDoer HTTP 能力
//
// *http.Client 满足该接口；测试可以注入自定义实现。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient 创建用于 UPnP 控制的 HTTP 客户端
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               nil,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}
