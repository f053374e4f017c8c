package discovery

import (
	"fmt"
	"net"
	"strings"
)

// ============================================================================
//                              地址过滤（SSDP 候选地址选择）
// ============================================================================

// virtualIfacePrefixes 虚拟网卡名称前缀黑名单
var virtualIfacePrefixes = []string{
	"utun",      // macOS/iOS VPN tunnel
	"bridge",    // Linux bridge
	"awdl",      // Apple Wireless Direct Link
	"llw",       // Low Latency WLAN
	"lo",        // Loopback
	"gif",       // Generic tunnel interface
	"stf",       // 6to4 tunnel
	"tun",       // TUN device
	"tap",       // TAP device (含 tap-windows)
	"wintun",    // WireGuard Wintun
	"wg",        // WireGuard
	"vethernet", // Hyper-V vEthernet
	"docker",    // Docker bridge
	"vboxnet",   // VirtualBox
	"vmnet",     // VMware
	"veth",      // Virtual Ethernet
	"virbr",     // libvirt bridge
	"br-",       // Docker custom bridge
	"cni",       // Kubernetes CNI
	"flannel",   // Flannel overlay
	"calico",    // Calico overlay
	"zt",        // ZeroTier
	"tailscale", // Tailscale
}

// blockedCIDRs 不可用于 SSDP 的地址段
var blockedCIDRs = []*net.IPNet{
	mustParseCIDR("127.0.0.0/8"),    // Loopback
	mustParseCIDR("169.254.0.0/16"), // Link-local
	mustParseCIDR("198.18.0.0/15"),  // Benchmark testing（常见 VPN 隧道地址）
	mustParseCIDR("100.64.0.0/10"),  // CGNAT
	mustParseCIDR("224.0.0.0/4"),    // Multicast
	mustParseCIDR("240.0.0.0/4"),    // Reserved
}

// rfc1918CIDRs RFC1918 私有地址段（优先使用）
var rfc1918CIDRs = []*net.IPNet{
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
}

func mustParseCIDR(s string) *net.IPNet {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR: %s", s))
	}
	return ipnet
}

// isVirtualInterface 判断是否为虚拟网卡
func isVirtualInterface(name string) bool {
	nameLower := strings.ToLower(name)
	for _, prefix := range virtualIfacePrefixes {
		if strings.HasPrefix(nameLower, prefix) {
			return true
		}
	}
	return false
}

func containedIn(ip net.IP, nets []*net.IPNet) bool {
	for _, cidr := range nets {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// iface 网络接口快照
type iface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// systemInterfaces 读取系统网络接口
func systemInterfaces() []iface {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Debug("获取网络接口失败", "err", err)
		return nil
	}
	out := make([]iface, 0, len(ifaces))
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			log.Debug("获取接口地址失败", "iface", ifc.Name, "err", err)
			continue
		}
		out = append(out, iface{Name: ifc.Name, Flags: ifc.Flags, Addrs: addrs})
	}
	return out
}

// candidateAddresses 选出适合发送 SSDP 的 IPv4 地址
//
// RFC1918 地址在前；gw 非空时，与其同网段的 RFC1918 地址排在最前。
func candidateAddresses(ifaces []iface, gw net.IP) []net.IP {
	type candidate struct {
		ip    net.IP
		ipnet *net.IPNet
	}

	var private, other []candidate
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 ||
			ifc.Flags&net.FlagLoopback != 0 ||
			ifc.Flags&net.FlagMulticast == 0 {
			continue
		}
		if isVirtualInterface(ifc.Name) {
			continue
		}

		for _, addr := range ifc.Addrs {
			var (
				ip    net.IP
				ipnet *net.IPNet
			)
			switch v := addr.(type) {
			case *net.IPNet:
				ip, ipnet = v.IP, v
			case *net.IPAddr:
				ip = v.IP
			default:
				continue
			}

			ip4 := ip.To4()
			if ip4 == nil || containedIn(ip4, blockedCIDRs) {
				continue
			}
			if containedIn(ip4, rfc1918CIDRs) {
				private = append(private, candidate{ip: ip4, ipnet: ipnet})
			} else {
				other = append(other, candidate{ip: ip4, ipnet: ipnet})
			}
		}
	}

	if gw != nil && len(private) > 1 {
		var same, rest []candidate
		for _, c := range private {
			if c.ipnet != nil && c.ipnet.Contains(gw) {
				same = append(same, c)
			} else {
				rest = append(rest, c)
			}
		}
		private = append(same, rest...)
	}

	out := make([]net.IP, 0, len(private)+len(other))
	for _, c := range private {
		out = append(out, c.ip)
	}
	for _, c := range other {
		out = append(out, c.ip)
	}
	return out
}
