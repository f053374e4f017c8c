// Package upnp 实现 UPnP IGD 控制点
//
// upnp 获取网关的根设备描述，在设备树中按优先级选定 WAN 连接服务，
// 然后向其 controlURL 发送 SOAP 动作。
//
// # 服务选择
//
// 深度优先遍历设备树，优先级：
//
//	urn:schemas-upnp-org:service:WANIPConnection:1
//	urn:schemas-upnp-org:service:WANIPConnection:2
//	urn:schemas-upnp-org:service:WANPPPConnection:1
//
// controlURL 与 SCPDURL 都必须存在。相对 URL 以 URLBase（没有时以根描述 URL）
// 为基准解析。
//
// # 错误
//
// HTTP 500 响应中的 UPnP fault 解码为 *FaultError，错误码按 IGD 错误码表给出描述。
// 725（只支持永久租约）在开启 PermanentFallback 时以 NewLeaseDuration=0 重试一次。
// 其他状态码返回 *StatusError。
//
// # 使用示例
//
//	cp := upnp.NewControlPoint(locator, upnp.NewHTTPClient(0), upnp.Config{
//	    PermanentFallback: true,
//	})
//
//	err := cp.AddPortMapping(ctx, types.ProtocolTCP, 6690, 6690, "go-natmap", 7200)
//	ip, err := cp.GetExternalIPAddress(ctx)
package upnp
