package natpmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dep2p/go-natmap/internal/util/logger"
	"github.com/dep2p/go-natmap/pkg/types"
)

// RequestTimeout 每个 NAT-PMP 请求的固定超时
const RequestTimeout = time.Second

// maxDatagram 单个响应报文的读取缓冲大小
const maxDatagram = 64

// ============================================================================
//                              连接状态机
// ============================================================================

// connState 网关 socket 状态
//
//	Closed → (open) → Open → (timeout | 读写错误 | Close) → Closed
type connState int

const (
	stateClosed connState = iota
	stateOpen
)

func (s connState) String() string {
	if s == stateOpen {
		return "open"
	}
	return "closed"
}

// ============================================================================
//                              Client
// ============================================================================

// Client 单个网关的 NAT-PMP 客户端
//
// 客户端持有一个 UDP socket，按需打开并在成功响应后复用。
// 每个请求都与固定的 1 秒超时赛跑：超时则关闭 socket 并返回 ErrTimeout，
// 下一个请求会重新打开。同一时刻只允许一个请求在途。
type Client struct {
	gateway *net.UDPAddr
	timeout time.Duration

	// reqMu 串行化请求，保证 socket 不被多个在途请求共享
	reqMu sync.Mutex

	// connMu 保护 socket 状态；Close 只持有 connMu，不等待在途请求
	connMu sync.Mutex
	state  connState
	conn   *net.UDPConn
	closed bool

	// log 带 gateway 属性的 logger
	log *slog.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithPort 覆盖网关端口（默认 5351）
func WithPort(port int) Option {
	return func(c *Client) {
		c.gateway.Port = port
	}
}

// NewClient 创建指向 gateway 的客户端，socket 在第一次请求时才打开
func NewClient(gateway net.IP, opts ...Option) (*Client, error) {
	ip4 := gateway.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotIPv4, gateway)
	}
	c := &Client{
		gateway: &net.UDPAddr{IP: ip4, Port: GatewayPort},
		timeout: RequestTimeout,
		state:   stateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.With("natpmp", "gateway", c.gateway.String())
	return c, nil
}

// Gateway 返回网关 IP
func (c *Client) Gateway() net.IP {
	return c.gateway.IP
}

// Port 返回网关端口
func (c *Client) Port() int {
	return c.gateway.Port
}

// Connected socket 当前是否处于 Open 状态
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.state == stateOpen
}

// ExternalAddress 查询网关外部地址
//
// 非 0 结果码通过 resp.Success() 反映，不作为错误返回。
func (c *Client) ExternalAddress(ctx context.Context) (*ExternalAddressResponse, error) {
	buf, err := c.roundTrip(ctx, encodeExternalAddressRequest(), OpExternalAddress)
	if err != nil {
		return nil, err
	}
	return decodeExternalAddressResponse(buf)
}

// AddMapping 请求映射 external → internal，lifetime 为租期秒数（0 表示永久租约）
func (c *Client) AddMapping(ctx context.Context, proto types.Protocol, internal, external uint16, lifetime uint32) (*MappingResponse, error) {
	op, err := opcodeFor(proto)
	if err != nil {
		return nil, err
	}
	req := &MappingRequest{
		Opcode:       op,
		InternalPort: internal,
		ExternalPort: external,
		Lifetime:     lifetime,
	}
	buf, err := c.roundTrip(ctx, req.encode(), op)
	if err != nil {
		return nil, err
	}
	return decodeMappingResponse(buf)
}

// RemoveMapping 删除映射（租期为 0 的映射请求）
func (c *Client) RemoveMapping(ctx context.Context, proto types.Protocol, internal, external uint16) (*MappingResponse, error) {
	return c.AddMapping(ctx, proto, internal, external, 0)
}

// Close 关闭客户端
//
// 不等待在途请求：关闭 socket 会让正在等待的读取立即失败。
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.state = stateClosed
	c.log.Debug("NAT-PMP 客户端已关闭")
	return err
}

// ============================================================================
//                              请求/响应
// ============================================================================

// roundTrip 发送一个请求并等待匹配 op 的响应
func (c *Client) roundTrip(ctx context.Context, req []byte, op Opcode) ([]byte, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := c.open()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		c.drop(conn, "set deadline")
		return nil, &NetworkError{Op: "set deadline", Cause: err}
	}

	// ctx 取消时让阻塞的读取立即返回
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(req); err != nil {
		c.drop(conn, "write")
		if c.isClosed() {
			return nil, ErrClientClosed
		}
		return nil, &NetworkError{Op: "write", Cause: err}
	}

	buf := make([]byte, maxDatagram)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			c.drop(conn, "read")
			return nil, c.classifyReadError(ctx, err)
		}
		if !isResponseTo(buf[:n], op) {
			c.log.Debug("丢弃不匹配的 NAT-PMP 响应", "want", byte(op|responseBit), "len", n)
			continue
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

// classifyReadError 将读取错误映射为客户端错误
func (c *Client) classifyReadError(ctx context.Context, err error) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.log.Debug("NAT-PMP 请求超时，socket 已关闭")
		return ErrTimeout
	}
	return &NetworkError{Op: "read", Cause: err}
}

// open 确保 socket 处于 Open 状态
func (c *Client) open() (*net.UDPConn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.state == stateOpen && c.conn != nil {
		return c.conn, nil
	}

	conn, err := net.DialUDP("udp4", nil, c.gateway)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Cause: err}
	}
	c.conn = conn
	c.state = stateOpen
	c.log.Debug("NAT-PMP socket 已打开", "local", conn.LocalAddr().String())
	return conn, nil
}

// drop 关闭出错的 socket 并回到 Closed 状态
//
// 只处理仍为当前 socket 的情况，Close 已经处理过的不重复关闭。
func (c *Client) drop(conn *net.UDPConn, reason string) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != conn {
		return
	}
	_ = conn.Close()
	c.conn = nil
	c.state = stateClosed
	c.log.Debug("NAT-PMP socket 已关闭", "reason", reason)
}

func (c *Client) isClosed() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.closed
}

// opcodeFor 返回协议对应的映射操作码
func opcodeFor(proto types.Protocol) (Opcode, error) {
	switch proto {
	case types.ProtocolUDP:
		return OpMapUDP, nil
	case types.ProtocolTCP:
		return OpMapTCP, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, proto)
	}
}
