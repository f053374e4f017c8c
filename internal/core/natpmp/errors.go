package natpmp

import (
	"errors"
	"fmt"
)

// NAT-PMP 相关错误
var (
	// ErrTimeout 请求在固定超时内没有收到响应，socket 已关闭
	ErrTimeout = errors.New("natpmp: request timed out")

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("natpmp: client closed")

	// ErrShortResponse 响应报文长度不足
	ErrShortResponse = errors.New("natpmp: short response")

	// ErrNotIPv4 网关地址不是 IPv4
	ErrNotIPv4 = errors.New("natpmp: gateway is not an IPv4 address")

	// ErrUnsupportedProtocol 只支持 UDP 与 TCP
	ErrUnsupportedProtocol = errors.New("natpmp: unsupported protocol")
)

// ResultError 网关返回了非 0 结果码
//
// 客户端本身不把非 0 结果码当作错误返回（见 MappingResponse.Success），
// 由调用方在需要驱动回退链时构造该错误。
type ResultError struct {
	Op   string
	Code ResultCode
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("natpmp: %s failed: %s (code %d)", e.Op, e.Code, uint16(e.Code))
}

// NetworkError socket 读写错误
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	return "natpmp: " + e.Op + ": " + e.Cause.Error()
}

// Unwrap 解包错误
func (e *NetworkError) Unwrap() error {
	return e.Cause
}
