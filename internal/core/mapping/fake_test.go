package mapping

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

var errGateway = errors.New("gateway refused")

// fakeMapper 记录调用的内存策略
type fakeMapper struct {
	method types.Method

	mu        sync.Mutex
	addErr    func(req interfaces.PortMapRequest) error
	removeErr func(req interfaces.PortMapRequest) error
	extErr    error
	ip        net.IP
	adds      []interfaces.PortMapRequest
	removes   []interfaces.PortMapRequest
	closed    int
}

var _ interfaces.PortMapper = (*fakeMapper)(nil)

func newFake(m types.Method) *fakeMapper {
	return &fakeMapper{method: m}
}

func (f *fakeMapper) Method() types.Method { return f.method }

func (f *fakeMapper) AddMapping(_ context.Context, req interfaces.PortMapRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, req)
	if f.addErr != nil {
		return f.addErr(req)
	}
	return nil
}

func (f *fakeMapper) RemoveMapping(_ context.Context, req interfaces.PortMapRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, req)
	if f.removeErr != nil {
		return f.removeErr(req)
	}
	return nil
}

func (f *fakeMapper) ExternalAddress(context.Context) (net.IP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ip, f.extErr
}

func (f *fakeMapper) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeMapper) failAdds(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addErr = func(interfaces.PortMapRequest) error { return err }
}

func (f *fakeMapper) failRemoves(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeErr = func(interfaces.PortMapRequest) error { return err }
}

func (f *fakeMapper) addCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.adds)
}

func (f *fakeMapper) addedRequests() []interfaces.PortMapRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interfaces.PortMapRequest(nil), f.adds...)
}

func (f *fakeMapper) removedRequests() []interfaces.PortMapRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interfaces.PortMapRequest(nil), f.removes...)
}

func (f *fakeMapper) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// staticResolver 固定网关
type staticResolver net.IP

func (r staticResolver) Gateway() (net.IP, error) {
	return net.IP(r), nil
}
