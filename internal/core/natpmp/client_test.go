package natpmp

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              测试网关
// ============================================================================

// fakeGateway 本地回环上的 NAT-PMP 网关
type fakeGateway struct {
	conn *net.UDPConn

	mu       sync.Mutex
	handler  func(req []byte) [][]byte
	requests [][]byte
}

func newFakeGateway(t *testing.T, handler func(req []byte) [][]byte) *fakeGateway {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	g := &fakeGateway{conn: conn, handler: handler}
	go g.serve()
	t.Cleanup(func() { _ = conn.Close() })
	return g
}

func (g *fakeGateway) serve() {
	buf := make([]byte, 64)
	for {
		n, addr, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		req := make([]byte, n)
		copy(req, buf[:n])

		g.mu.Lock()
		g.requests = append(g.requests, req)
		handler := g.handler
		g.mu.Unlock()

		for _, resp := range handler(req) {
			_, _ = g.conn.WriteToUDP(resp, addr)
		}
	}
}

func (g *fakeGateway) setHandler(h func(req []byte) [][]byte) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

func (g *fakeGateway) received() [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]byte(nil), g.requests...)
}

func (g *fakeGateway) newClient(t *testing.T) *Client {
	t.Helper()
	port := g.conn.LocalAddr().(*net.UDPAddr).Port
	c, err := NewClient(net.IPv4(127, 0, 0, 1), WithPort(port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// mappingReply 按请求构造映射响应
func mappingReply(req []byte, result ResultCode) []byte {
	resp := make([]byte, 16)
	resp[1] = req[1] | byte(responseBit)
	binary.BigEndian.PutUint16(resp[2:4], uint16(result))
	binary.BigEndian.PutUint32(resp[4:8], 1)
	copy(resp[8:12], req[4:8])
	copy(resp[12:16], req[8:12])
	return resp
}

func externalAddressReply(ip net.IP) []byte {
	resp := []byte{0, 128, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0}
	copy(resp[8:12], ip.To4())
	return resp
}

func silent([]byte) [][]byte { return nil }

// ============================================================================
//                              请求测试
// ============================================================================

func TestNewClient_RejectsIPv6(t *testing.T) {
	_, err := NewClient(net.ParseIP("fe80::1"))
	assert.ErrorIs(t, err, ErrNotIPv4)
}

func TestRequestTimeout_IsOneSecond(t *testing.T) {
	c, err := NewClient(net.IPv4(192, 168, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.timeout)
	assert.Equal(t, GatewayPort, c.gateway.Port)
	assert.False(t, c.Connected(), "socket 应按需打开")
}

func TestClient_ExternalAddress(t *testing.T) {
	g := newFakeGateway(t, func(req []byte) [][]byte {
		return [][]byte{externalAddressReply(net.IPv4(203, 0, 113, 7))}
	})
	c := g.newClient(t)

	resp, err := c.ExternalAddress(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.True(t, resp.Address.Equal(net.IPv4(203, 0, 113, 7)))
	assert.True(t, c.Connected(), "成功后 socket 保持打开")

	reqs := g.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, []byte{0, 0}, reqs[0])
}

func TestClient_AddMapping(t *testing.T) {
	g := newFakeGateway(t, func(req []byte) [][]byte {
		return [][]byte{mappingReply(req, ResultSuccess)}
	})
	c := g.newClient(t)

	resp, err := c.AddMapping(context.Background(), types.ProtocolUDP, 6690, 6690, 7200)
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, uint16(6690), resp.MappedPort)
	assert.Equal(t, uint32(7200), resp.Lifetime)

	resp, err = c.AddMapping(context.Background(), types.ProtocolTCP, 6690, 6690, 7200)
	require.NoError(t, err)
	assert.True(t, resp.Success())

	reqs := g.received()
	require.Len(t, reqs, 2)
	assert.Equal(t, byte(OpMapUDP), reqs[0][1])
	assert.Equal(t, byte(OpMapTCP), reqs[1][1])
}

func TestClient_RemoveMappingSendsZeroLifetime(t *testing.T) {
	g := newFakeGateway(t, func(req []byte) [][]byte {
		return [][]byte{mappingReply(req, ResultSuccess)}
	})
	c := g.newClient(t)

	resp, err := c.RemoveMapping(context.Background(), types.ProtocolTCP, 8080, 80)
	require.NoError(t, err)
	assert.True(t, resp.Success())

	reqs := g.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, uint16(8080), binary.BigEndian.Uint16(reqs[0][4:6]))
	assert.Equal(t, uint16(80), binary.BigEndian.Uint16(reqs[0][6:8]))
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(reqs[0][8:12]))
}

func TestClient_NonZeroResultIsNotError(t *testing.T) {
	g := newFakeGateway(t, func(req []byte) [][]byte {
		return [][]byte{mappingReply(req, ResultNotAuthorized)}
	})
	c := g.newClient(t)

	resp, err := c.AddMapping(context.Background(), types.ProtocolUDP, 6690, 6690, 7200)
	require.NoError(t, err)
	assert.False(t, resp.Success())
	assert.Equal(t, ResultNotAuthorized, resp.ResultCode)
	assert.True(t, c.Connected())
}

func TestClient_IgnoresMismatchedResponses(t *testing.T) {
	g := newFakeGateway(t, func(req []byte) [][]byte {
		return [][]byte{
			externalAddressReply(net.IPv4(1, 2, 3, 4)),
			mappingReply(req, ResultSuccess),
		}
	})
	c := g.newClient(t)

	resp, err := c.AddMapping(context.Background(), types.ProtocolUDP, 6690, 6690, 7200)
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, uint16(6690), resp.InternalPort)
}

func TestClient_UnsupportedProtocol(t *testing.T) {
	c, err := NewClient(net.IPv4(127, 0, 0, 1))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.AddMapping(context.Background(), types.ProtocolAny, 1, 1, 0)
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
	assert.False(t, c.Connected())
}

// ============================================================================
//                              状态机测试
// ============================================================================

func TestClient_TimeoutClosesSocketAndReopens(t *testing.T) {
	g := newFakeGateway(t, silent)
	c := g.newClient(t)
	c.timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := c.AddMapping(context.Background(), types.ProtocolUDP, 6690, 6690, 7200)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, c.Connected(), "超时后 socket 应关闭")

	g.setHandler(func(req []byte) [][]byte {
		return [][]byte{mappingReply(req, ResultSuccess)}
	})

	resp, err := c.AddMapping(context.Background(), types.ProtocolUDP, 6690, 6690, 7200)
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.True(t, c.Connected(), "下一次请求应重新打开 socket")
}

func TestClient_ContextDeadlineShortensTimeout(t *testing.T) {
	g := newFakeGateway(t, silent)
	c := g.newClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ExternalAddress(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, c.Connected())
}

func TestClient_ContextCancel(t *testing.T) {
	g := newFakeGateway(t, silent)
	c := g.newClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.ExternalAddress(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Connected())
}

func TestClient_CloseAbortsInFlight(t *testing.T) {
	g := newFakeGateway(t, silent)
	c := g.newClient(t)
	c.timeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		_, err := c.AddMapping(context.Background(), types.ProtocolUDP, 6690, 6690, 7200)
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Connected() }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Close 没有中断在途请求")
	}
}

func TestClient_RequestAfterClose(t *testing.T) {
	g := newFakeGateway(t, silent)
	c := g.newClient(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "重复关闭应无副作用")

	_, err := c.ExternalAddress(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.Empty(t, g.received())
}

func TestClient_SerializesRequests(t *testing.T) {
	g := newFakeGateway(t, func(req []byte) [][]byte {
		time.Sleep(10 * time.Millisecond)
		return [][]byte{mappingReply(req, ResultSuccess)}
	})
	c := g.newClient(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			resp, err := c.AddMapping(context.Background(), types.ProtocolUDP, port, port, 60)
			assert.NoError(t, err)
			if resp != nil {
				assert.Equal(t, port, resp.InternalPort)
			}
		}(uint16(7000 + i))
	}
	wg.Wait()

	assert.Len(t, g.received(), 5)
}
