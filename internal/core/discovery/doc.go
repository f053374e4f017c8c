// Package discovery 定位 NAT 网关
//
// discovery 提供两类信息：
//
//   - 默认网关 IPv4 地址（NAT-PMP 目标），来自 jackpal/gateway 或配置
//   - UPnP 根设备描述 URL（interfaces.RootLocator），来自配置或 SSDP 搜索
//
// # SSDP 候选地址
//
// SSDP 组播只从过滤后的 LAN 地址发出：
//   - 接口必须 UP 且支持组播，排除 loopback 与虚拟网卡
//   - 排除黑名单地址段（127/8、169.254/16、198.18/15、100.64/10 等）
//   - RFC1918 地址优先，与默认网关同网段的地址最优先
//
// 没有候选地址时回退到未绑定的 SSDP 搜索。找到的 Location 会被缓存。
package discovery
