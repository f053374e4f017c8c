package discovery

import "errors"

// 发现相关错误
var (
	// ErrNoGateway 无法确定默认网关
	ErrNoGateway = errors.New("discovery: no default gateway")

	// ErrNotIPv4 网关地址不是 IPv4
	ErrNotIPv4 = errors.New("discovery: gateway is not an IPv4 address")

	// ErrNoDevice SSDP 没有发现 IGD 设备
	ErrNoDevice = errors.New("discovery: no UPnP gateway device found")

	// ErrInvalidURL 根描述 URL 非法
	ErrInvalidURL = errors.New("discovery: invalid root description URL")
)
