package natmap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-natmap/config"
)

const rootDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:InternetGatewayDevice:1</deviceType>
    <deviceList>
      <device>
        <deviceType>urn:schemas-upnp-org:device:WANDevice:1</deviceType>
        <deviceList>
          <device>
            <deviceType>urn:schemas-upnp-org:device:WANConnectionDevice:1</deviceType>
            <serviceList>
              <service>
                <serviceType>urn:schemas-upnp-org:service:WANIPConnection:1</serviceType>
                <serviceId>urn:upnp-org:serviceId:WANIPConn1</serviceId>
                <controlURL>/ctl/IPConn</controlURL>
                <SCPDURL>/WANIPCn.xml</SCPDURL>
              </service>
            </serviceList>
          </device>
        </deviceList>
      </device>
    </deviceList>
  </device>
</root>`

// testGateway 记录 SOAP 调用的 IGD
type testGateway struct {
	srv *httptest.Server

	mu    sync.Mutex
	calls []string
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	g := &testGateway{}
	mux := http.NewServeMux()
	mux.HandleFunc("/rootDesc.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, rootDescription)
	})
	mux.HandleFunc("/ctl/IPConn", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		action := strings.Trim(r.Header.Get("SOAPAction"), `"`)
		action = action[strings.LastIndex(action, "#")+1:]

		call := action
		if i := strings.Index(string(body), "<NewProtocol>"); i >= 0 {
			call += " " + string(body[i+len("<NewProtocol>"):i+len("<NewProtocol>")+3])
		}
		g.mu.Lock()
		g.calls = append(g.calls, call)
		g.mu.Unlock()

		inner := ""
		if action == "GetExternalIPAddress" {
			inner = "<NewExternalIPAddress>203.0.113.9</NewExternalIPAddress>"
		}
		fmt.Fprintf(w, `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>
<u:%[1]sResponse xmlns:u="urn:schemas-upnp-org:service:WANIPConnection:1">%[2]s</u:%[1]sResponse>
</s:Body></s:Envelope>`, action, inner)
	})
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *testGateway) rootURL() string {
	return g.srv.URL + "/rootDesc.xml"
}

func (g *testGateway) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func newTestClient(t *testing.T, g *testGateway, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithRootURL(g.rootURL()),
		WithHTTPClient(g.srv.Client()),
	}, opts...)
	c, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_MapPortOverUPnP(t *testing.T) {
	g := newTestGateway(t)
	c := newTestClient(t, g)
	ctx := context.Background()

	assert.Equal(t, []Method{MethodUPnP}, c.Methods(), "NAT-PMP 默认关闭")

	require.NoError(t, c.MapPort(ctx, 6690))
	assert.Equal(t, []string{"AddPortMapping UDP", "AddPortMapping TCP"}, g.recorded())

	infos := c.Mappings()
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, MethodUPnP, info.Method)
		assert.Equal(t, uint16(6690), info.Key.PublicPort)
		assert.Equal(t, 2*time.Hour, info.TTL)
	}

	ip, err := c.ExternalIP(ctx)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", ip.String())

	require.NoError(t, c.UnmapPort(ctx, 6690))
	assert.Empty(t, c.Mappings())
}

func TestClient_MapPorts(t *testing.T) {
	g := newTestGateway(t)
	c := newTestClient(t, g)
	ctx := context.Background()

	require.NoError(t, c.MapPorts(ctx, 8080, 80))
	for _, info := range c.Mappings() {
		assert.Equal(t, uint16(8080), info.Key.PublicPort)
		assert.Equal(t, uint16(80), info.Key.PrivatePort)
	}
	require.NoError(t, c.UnmapPorts(ctx, 8080, 80))
	assert.Empty(t, c.Mappings())
}

func TestClient_DestroyRemovesMappings(t *testing.T) {
	g := newTestGateway(t)
	c := newTestClient(t, g)
	ctx := context.Background()

	require.NoError(t, c.Map(ctx, MappingOptions{PublicPort: 6690, Protocol: "tcp"}))
	require.NoError(t, c.Destroy(ctx))

	assert.Equal(t, []string{"AddPortMapping TCP", "DeletePortMapping TCP"}, g.recorded())

	assert.ErrorIs(t, c.Destroy(ctx), ErrClientDestroyed)
	assert.ErrorIs(t, c.MapPort(ctx, 6690), ErrClientDestroyed)
	assert.NoError(t, c.Close(), "Close 可重复调用")
}

func TestClient_InvalidRequest(t *testing.T) {
	g := newTestGateway(t)
	c := newTestClient(t, g)

	err := c.Map(context.Background(), MappingOptions{PublicPort: 6690, Protocol: "sctp"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "protocol", ve.Field)
	assert.Empty(t, g.recorded())
}

func TestClient_RootLocatorOverride(t *testing.T) {
	g := newTestGateway(t)
	u, err := url.Parse(g.rootURL())
	require.NoError(t, err)

	c, err := New(context.Background(),
		WithRootLocator(locatorFunc(func(context.Context) (*url.URL, error) { return u, nil })),
		WithHTTPClient(g.srv.Client()),
	)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Map(context.Background(), MappingOptions{PublicPort: 7000, Protocol: "udp"}))
	assert.Equal(t, []string{"AddPortMapping UDP"}, g.recorded())
}

func TestClient_Metrics(t *testing.T) {
	g := newTestGateway(t)
	c := newTestClient(t, g)
	require.NoError(t, c.MapPort(context.Background(), 6690))

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `natmap_operations_total{method="upnp",op="map",result="success"} 2`)
	assert.Contains(t, rec.Body.String(), "natmap_open_mappings 2")

	disabled := newTestClient(t, g, WithMetrics(false))
	rec = httptest.NewRecorder()
	disabled.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_OptionErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, WithConfig(nil))
	assert.Error(t, err)

	_, err = New(ctx, WithGateway("fe80::1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")

	_, err = New(ctx, WithRootURL("/relative"))
	assert.Error(t, err)

	_, err = New(ctx, WithConfigFile("/nonexistent/natmap.json"))
	assert.Error(t, err)
}

func TestNew_WithConfig(t *testing.T) {
	g := newTestGateway(t)

	cfg := config.NewConfig()
	cfg.Mapping.Description = "from-config"
	cfg.Mapping.AutoUpdate = false

	c := newTestClient(t, g, WithConfig(cfg), WithRootURL(g.rootURL()), WithTTL(time.Hour))
	require.NoError(t, c.Map(context.Background(), MappingOptions{PublicPort: 6690, Protocol: "udp"}))

	infos := c.Mappings()
	require.Len(t, infos, 1)
	assert.Equal(t, "from-config", infos[0].Description)
	assert.Equal(t, time.Hour, infos[0].TTL)
	assert.False(t, infos[0].AutoRenew)
	assert.Equal(t, 2*time.Hour, cfg.Mapping.TTL.Duration(), "选项不修改传入的配置")
}

type locatorFunc func(ctx context.Context) (*url.URL, error)

func (f locatorFunc) RootURL(ctx context.Context) (*url.URL, error) {
	return f(ctx)
}
