// Package interfaces 定义 go-natmap 的组件契约
//
// 内部包之间只通过这里的接口交互，便于在测试中替换实现：
//   - portmap.go - PortMapper（映射策略）、RootLocator（UPnP 根描述定位）、
//     GatewayResolver（NAT-PMP 网关解析）
//
// 依赖关系：
//
//	mapping   → PortMapper, GatewayResolver, RootLocator
//	discovery → 提供 GatewayResolver, RootLocator
//	upnp      → 使用 RootLocator
package interfaces
