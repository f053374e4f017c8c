package types

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
//                              Protocol - 传输协议
// ============================================================================

// Protocol 端口映射的传输协议
//
// 零值 ProtocolAny 只出现在 API 入口，表示"UDP 与 TCP 都映射"，
// 不会作为注册表中的状态保存。
type Protocol int

const (
	// ProtocolAny 未指定协议（展开为 UDP + TCP）
	ProtocolAny Protocol = iota
	// ProtocolUDP UDP 协议
	ProtocolUDP
	// ProtocolTCP TCP 协议
	ProtocolTCP
)

// String 返回协议的大写名称（与 UPnP NewProtocol 参数一致）
func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "UDP"
	case ProtocolTCP:
		return "TCP"
	default:
		return "ANY"
	}
}

// Expand 将 ProtocolAny 展开为 [UDP, TCP]，其余协议返回自身
//
// 顺序固定为 UDP 在前，映射与取消映射都按这个顺序执行。
func (p Protocol) Expand() []Protocol {
	if p == ProtocolAny {
		return []Protocol{ProtocolUDP, ProtocolTCP}
	}
	return []Protocol{p}
}

// Matches 判断 p 是否匹配 other（ProtocolAny 匹配任意协议）
func (p Protocol) Matches(other Protocol) bool {
	return p == ProtocolAny || other == ProtocolAny || p == other
}

// ParseProtocol 解析协议字符串
//
// 接受 ""（未指定）、"tcp"、"udp"，大小写不敏感。
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return ProtocolAny, nil
	case "UDP":
		return ProtocolUDP, nil
	case "TCP":
		return ProtocolTCP, nil
	default:
		return ProtocolAny, fmt.Errorf("unknown protocol %q", s)
	}
}

// ============================================================================
//                              Method - 映射协议
// ============================================================================

// Method 实际完成映射的穿透协议
type Method int

const (
	// MethodNone 尚未成功
	MethodNone Method = iota
	// MethodNATPMP NAT-PMP
	MethodNATPMP
	// MethodUPnP UPnP IGD
	MethodUPnP
)

// String 返回方法名称
func (m Method) String() string {
	switch m {
	case MethodNATPMP:
		return "natpmp"
	case MethodUPnP:
		return "upnp"
	default:
		return "none"
	}
}

// ============================================================================
//                              MappingKey - 映射键
// ============================================================================

// MappingKey 唯一标识一条已打开的映射
type MappingKey struct {
	PublicPort  uint16
	PrivatePort uint16
	Protocol    Protocol
}

// String 返回 "UDP 6690->6690" 形式
func (k MappingKey) String() string {
	return fmt.Sprintf("%s %d->%d", k.Protocol, k.PublicPort, k.PrivatePort)
}

// Matches 判断 k 是否匹配查询键 q（q 的协议可以是 ProtocolAny）
func (k MappingKey) Matches(q MappingKey) bool {
	return k.PublicPort == q.PublicPort &&
		k.PrivatePort == q.PrivatePort &&
		q.Protocol.Matches(k.Protocol)
}

// ============================================================================
//                              MappingOptions - 调用参数
// ============================================================================

// MappingOptions 完整形式的映射参数
//
// 零值字段使用客户端级默认值：
//   - PrivatePort 为 0 时等于 PublicPort
//   - Protocol 为空时同时映射 UDP 与 TCP
//   - TTL 为 0 时使用配置的默认租期
//   - Description 为空时使用配置的默认描述
//   - Gateway 为空时使用构造时解析的网关
type MappingOptions struct {
	PublicPort  int
	PrivatePort int
	Protocol    string
	TTL         time.Duration
	Description string
	Gateway     string
}

// MappingInfo 已打开映射的只读快照
type MappingInfo struct {
	Key         MappingKey
	Method      Method
	TTL         time.Duration
	Description string
	CreatedAt   time.Time
	AutoRenew   bool
}
