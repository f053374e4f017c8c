package discovery

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ipNet(t *testing.T, cidr string) *net.IPNet {
	t.Helper()
	ip, n, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatal(err)
	}
	n.IP = ip
	return n
}

const upMulticast = net.FlagUp | net.FlagMulticast

func TestIsVirtualInterface(t *testing.T) {
	for _, name := range []string{"utun3", "docker0", "br-1a2b", "veth12", "WG0", "tailscale0", "lo"} {
		assert.True(t, isVirtualInterface(name), name)
	}
	for _, name := range []string{"eth0", "en0", "wlan0", "enp3s0"} {
		assert.False(t, isVirtualInterface(name), name)
	}
}

func TestCandidateAddresses_Filters(t *testing.T) {
	ifaces := []iface{
		{Name: "eth0", Flags: upMulticast, Addrs: []net.Addr{
			ipNet(t, "192.168.1.20/24"),
			ipNet(t, "fe80::1/64"),
		}},
		{Name: "docker0", Flags: upMulticast, Addrs: []net.Addr{ipNet(t, "172.17.0.1/16")}},
		{Name: "eth1", Flags: net.FlagMulticast, Addrs: []net.Addr{ipNet(t, "10.1.0.5/16")}},
		{Name: "eth2", Flags: net.FlagUp, Addrs: []net.Addr{ipNet(t, "10.2.0.5/16")}},
		{Name: "eth3", Flags: upMulticast, Addrs: []net.Addr{
			ipNet(t, "169.254.3.3/16"),
			ipNet(t, "100.64.1.1/10"),
		}},
		{Name: "lo", Flags: upMulticast | net.FlagLoopback, Addrs: []net.Addr{ipNet(t, "127.0.0.1/8")}},
	}

	got := candidateAddresses(ifaces, nil)
	assert.Equal(t, []string{"192.168.1.20"}, ipStrings(got))
}

func TestCandidateAddresses_PrivateFirst(t *testing.T) {
	ifaces := []iface{
		{Name: "eth0", Flags: upMulticast, Addrs: []net.Addr{ipNet(t, "203.0.113.10/24")}},
		{Name: "eth1", Flags: upMulticast, Addrs: []net.Addr{ipNet(t, "10.0.0.5/24")}},
	}

	got := candidateAddresses(ifaces, nil)
	assert.Equal(t, []string{"10.0.0.5", "203.0.113.10"}, ipStrings(got))
}

func TestCandidateAddresses_GatewaySubnetFirst(t *testing.T) {
	ifaces := []iface{
		{Name: "eth0", Flags: upMulticast, Addrs: []net.Addr{ipNet(t, "10.0.0.5/24")}},
		{Name: "wlan0", Flags: upMulticast, Addrs: []net.Addr{ipNet(t, "192.168.1.20/24")}},
	}

	got := candidateAddresses(ifaces, net.ParseIP("192.168.1.1"))
	assert.Equal(t, []string{"192.168.1.20", "10.0.0.5"}, ipStrings(got))
}

func ipStrings(ips []net.IP) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out
}
