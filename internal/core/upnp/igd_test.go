package upnp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              测试网关
// ============================================================================

const igdDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>urn:schemas-upnp-org:device:InternetGatewayDevice:1</deviceType>
    <friendlyName>Test Router</friendlyName>
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
                <eventSubURL>/evt/IPConn</eventSubURL>
                <SCPDURL>/WANIPCn.xml</SCPDURL>
              </service>
            </serviceList>
          </device>
        </deviceList>
      </device>
    </deviceList>
  </device>
</root>`

// soapCall 网关收到的一次 SOAP 请求
type soapCall struct {
	Path        string
	SOAPAction  string
	ContentType string
	Action      string
	ServiceNS   string
	Args        []Arg
}

func (c soapCall) arg(name string) string {
	for _, a := range c.Args {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// fakeIGD httptest 上的 IGD
type fakeIGD struct {
	server *httptest.Server

	mu          sync.Mutex
	description string
	descStatus  int
	descFetches int
	calls       []soapCall
	respond     func(call soapCall) (int, string)
}

func newFakeIGD(t *testing.T) *fakeIGD {
	t.Helper()
	g := &fakeIGD{
		description: igdDescription,
		descStatus:  http.StatusOK,
		respond: func(call soapCall) (int, string) {
			return http.StatusOK, okEnvelope(call, "")
		},
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeIGD) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		g.mu.Lock()
		g.descFetches++
		status, desc := g.descStatus, g.description
		g.mu.Unlock()
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(desc))
		return
	}

	body, err := parseBody(r.Body)
	if err != nil || len(body.Children) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	actionEl := body.Children[0]
	call := soapCall{
		Path:        r.URL.Path,
		SOAPAction:  r.Header.Get("SOAPAction"),
		ContentType: r.Header.Get("Content-Type"),
		Action:      actionEl.XMLName.Local,
		ServiceNS:   actionEl.XMLName.Space,
	}
	for _, c := range actionEl.Children {
		call.Args = append(call.Args, Arg{Name: c.XMLName.Local, Value: c.Text})
	}

	g.mu.Lock()
	g.calls = append(g.calls, call)
	respond := g.respond
	g.mu.Unlock()

	status, payload := respond(call)
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func (g *fakeIGD) rootURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse(g.server.URL + "/rootDesc.xml")
	require.NoError(t, err)
	return u
}

func (g *fakeIGD) setRespond(f func(call soapCall) (int, string)) {
	g.mu.Lock()
	g.respond = f
	g.mu.Unlock()
}

func (g *fakeIGD) received() []soapCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]soapCall(nil), g.calls...)
}

func (g *fakeIGD) fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.descFetches
}

func (g *fakeIGD) controlPoint(t *testing.T, cfg Config) *ControlPoint {
	t.Helper()
	return NewControlPoint(staticLocator(g.rootURL(t)), g.server.Client(), cfg)
}

type locatorFunc func(ctx context.Context) (*url.URL, error)

func (f locatorFunc) RootURL(ctx context.Context) (*url.URL, error) {
	return f(ctx)
}

func staticLocator(u *url.URL) locatorFunc {
	return func(context.Context) (*url.URL, error) { return u, nil }
}

func okEnvelope(call soapCall, inner string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><u:%sResponse xmlns:u="%s">%s</u:%sResponse></s:Body>
</s:Envelope>`, call.Action, call.ServiceNS, inner, call.Action)
}

func faultEnvelope(code int, desc string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<s:Fault>
<faultcode>s:Client</faultcode>
<faultstring>UPnPError</faultstring>
<detail>
<UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
<errorCode>%d</errorCode>
<errorDescription>%s</errorDescription>
</UPnPError>
</detail>
</s:Fault>
</s:Body>
</s:Envelope>`, code, desc)
}
