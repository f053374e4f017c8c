package mapping

import (
	"context"
	"errors"
	"net"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-natmap/internal/core/metrics"
	"github.com/dep2p/go-natmap/internal/util/logger"
	"github.com/dep2p/go-natmap/pkg/interfaces"
	"github.com/dep2p/go-natmap/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("mapping")

// ============================================================================
//                              Service
// ============================================================================

// Service 端口映射编排器
//
// 每个单协议映射按策略顺序（NAT-PMP → UPnP）尝试，第一个成功的策略
// 被记录在注册表中，后续续期只使用该策略。ProtocolAny 展开为 UDP 与 TCP
// 两个独立的映射。
type Service struct {
	cfg        Config
	strategies []interfaces.PortMapper
	clock      clock.Clock
	metrics    *metrics.Collector
	reg        *registry

	// ctx 续期请求使用的生命周期上下文，Destroy 时取消
	ctx    context.Context
	cancel context.CancelFunc
}

// ServiceOption 编排器选项
type ServiceOption func(*Service)

// WithClock 使用指定时钟调度续期（测试使用 clock.NewMock）
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetrics 记录操作指标，nil 表示不记录
func WithMetrics(m *metrics.Collector) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService 创建编排器
//
// strategies 的顺序即回退顺序。
func NewService(cfg Config, strategies []interfaces.PortMapper, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:        cfg.normalized(),
		strategies: strategies,
		clock:      clock.New(),
		reg:        newRegistry(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config 返回生效的配置（已应用租期下限）
func (s *Service) Config() Config {
	return s.cfg
}

// Methods 返回启用的策略顺序
func (s *Service) Methods() []types.Method {
	out := make([]types.Method, 0, len(s.strategies))
	for _, st := range s.strategies {
		out = append(out, st.Method())
	}
	return out
}

// ============================================================================
//                              Map
// ============================================================================

// Map 打开端口映射
//
// 未指定协议时先 UDP 后 TCP 各映射一次，任一失败则返回错误，
// 已成功的那一个保持打开并登记在注册表中。
func (s *Service) Map(ctx context.Context, opts types.MappingOptions) error {
	if !s.reg.beginMap() {
		return ErrClientDestroyed
	}
	defer s.reg.mapping.Done()

	req, err := newRequest(opts, s.cfg)
	if err != nil {
		return err
	}

	var errs error
	for _, proto := range req.Protocol.Expand() {
		if err := s.mapOne(ctx, req.withProtocol(proto)); err != nil {
			if errors.Is(err, ErrClientDestroyed) {
				return err
			}
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// mapOne 沿策略链打开单协议映射
func (s *Service) mapOne(ctx context.Context, req Request) error {
	start := s.clock.Now()
	var errs []error

	for _, st := range s.strategies {
		err := st.AddMapping(ctx, req.portMap())
		if err != nil {
			log.Debug("映射失败，尝试下一个协议",
				"key", req.Key().String(),
				"method", st.Method().String(),
				"err", err)
			errs = append(errs, &methodError{method: st.Method(), err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if err := s.record(ctx, req, st); err != nil {
			return err
		}
		s.metrics.ObserveOperation(metrics.OpMap, st.Method(), nil, s.clock.Since(start))
		log.Info("端口映射已打开",
			"key", req.Key().String(),
			"method", st.Method().String(),
			"ttl", req.TTL.String())
		return nil
	}

	err := &ExhaustedError{Op: "map", Key: req.Key(), Errors: errs}
	s.metrics.ObserveOperation(metrics.OpMap, types.MethodNone, err, s.clock.Since(start))
	return err
}

// record 登记成功的映射并安排续期
//
// 与 Destroy 并发时注册表已关闭：立即尽力删除刚打开的映射。
func (s *Service) record(ctx context.Context, req Request, st interfaces.PortMapper) error {
	e := &entry{
		req:       req,
		method:    st.Method(),
		createdAt: s.clock.Now(),
	}

	s.reg.mu.Lock()
	if s.reg.closed {
		s.reg.mu.Unlock()
		if err := st.RemoveMapping(ctx, req.portMap()); err != nil {
			log.Warn("销毁期间打开的映射删除失败", "key", req.Key().String(), "err", err)
		}
		return ErrClientDestroyed
	}
	if old := s.reg.entries[req.Key()]; old != nil {
		old.renewal.cancel()
	}
	s.reg.entries[req.Key()] = e
	if s.cfg.AutoUpdate {
		s.scheduleLocked(e)
	}
	n := len(s.reg.entries)
	s.reg.mu.Unlock()

	s.metrics.SetOpenMappings(n)
	return nil
}

// ============================================================================
//                              Unmap
// ============================================================================

// Unmap 关闭端口映射
//
// 先从注册表删除并取消续期（无论随后的网络删除是否成功），
// 再沿策略链删除网关上的映射。未指定协议时 UDP 与 TCP 都必须成功。
func (s *Service) Unmap(ctx context.Context, opts types.MappingOptions) error {
	if s.reg.isClosed() {
		return ErrClientDestroyed
	}
	req, err := newRequest(opts, s.cfg)
	if err != nil {
		return err
	}

	removed := s.reg.removeMatching(req.Key())
	s.metrics.SetOpenMappings(s.reg.len())

	var errs error
	for _, proto := range req.Protocol.Expand() {
		sub := req.withProtocol(proto)
		e := findByKey(removed, sub.Key())
		if e != nil {
			sub = e.req
		}
		errs = multierr.Append(errs, s.unmapEntry(ctx, sub, e))
	}
	return errs
}

// unmapEntry 持有条目的操作锁删除映射
func (s *Service) unmapEntry(ctx context.Context, req Request, e *entry) error {
	preferred := types.MethodNone
	if e != nil {
		e.opMu.Lock()
		defer e.opMu.Unlock()
		preferred = e.method
	}
	return s.unmapOne(ctx, req, preferred)
}

// unmapOne 沿策略链删除单协议映射，preferred 策略优先
func (s *Service) unmapOne(ctx context.Context, req Request, preferred types.Method) error {
	start := s.clock.Now()
	var errs []error

	for _, st := range s.ordered(preferred) {
		if err := st.RemoveMapping(ctx, req.portMap()); err != nil {
			log.Debug("删除映射失败，尝试下一个协议",
				"key", req.Key().String(),
				"method", st.Method().String(),
				"err", err)
			errs = append(errs, &methodError{method: st.Method(), err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		s.metrics.ObserveOperation(metrics.OpUnmap, st.Method(), nil, s.clock.Since(start))
		log.Info("端口映射已关闭", "key", req.Key().String(), "method", st.Method().String())
		return nil
	}

	err := &ExhaustedError{Op: "unmap", Key: req.Key(), Errors: errs}
	s.metrics.ObserveOperation(metrics.OpUnmap, types.MethodNone, err, s.clock.Since(start))
	return err
}

// ordered 返回以 preferred 开头的策略顺序
//
// 映射由哪个协议打开就先用哪个协议删除：NAT-PMP 删除不存在的映射
// 也会返回成功，按固定顺序会漏删 UPnP 映射。
func (s *Service) ordered(preferred types.Method) []interfaces.PortMapper {
	if preferred == types.MethodNone {
		return s.strategies
	}
	out := make([]interfaces.PortMapper, 0, len(s.strategies))
	for _, st := range s.strategies {
		if st.Method() == preferred {
			out = append(out, st)
		}
	}
	for _, st := range s.strategies {
		if st.Method() != preferred {
			out = append(out, st)
		}
	}
	return out
}

// ============================================================================
//                              ExternalIP
// ============================================================================

// ExternalIP 查询网关外部 IPv4 地址
//
// 所有协议都失败时返回 (nil, nil)：外部地址未知不是错误。
func (s *Service) ExternalIP(ctx context.Context) (net.IP, error) {
	if s.reg.isClosed() {
		return nil, ErrClientDestroyed
	}
	start := s.clock.Now()

	for _, st := range s.strategies {
		ip, err := st.ExternalAddress(ctx)
		if err == nil && ip != nil {
			s.metrics.ObserveOperation(metrics.OpExternalIP, st.Method(), nil, s.clock.Since(start))
			return ip, nil
		}
		log.Debug("查询外部地址失败，尝试下一个协议", "method", st.Method().String(), "err", err)
		if ctx.Err() != nil {
			break
		}
	}

	s.metrics.ObserveOperation(metrics.OpExternalIP, types.MethodNone, ErrNoProtocolSucceeded, s.clock.Since(start))
	log.Debug("所有协议都无法获取外部地址")
	return nil, nil
}

// ============================================================================
//                              Destroy
// ============================================================================

// Destroy 关闭全部映射并释放协议客户端
//
// 每条映射独立删除，单条失败只记录日志，不影响其它映射，也不作为错误返回。
// 协议客户端在在途 Map 结束（或 ctx 结束）后才关闭。
// 第二次调用返回 ErrClientDestroyed。
func (s *Service) Destroy(ctx context.Context) error {
	entries, ok := s.reg.close()
	if !ok {
		return ErrClientDestroyed
	}
	s.cancel()
	start := s.clock.Now()

	failed := 0
	for _, e := range entries {
		if err := s.unmapEntry(ctx, e.req, e); err != nil {
			failed++
			log.Warn("销毁时删除映射失败", "key", e.key().String(), "method", e.method.String(), "err", err)
		}
	}

	// 在途 Map 需要用仍然打开的客户端删除它刚打开的映射
	if !s.reg.waitMaps(ctx) {
		log.Warn("等待在途映射超时，直接关闭协议客户端", "err", ctx.Err())
	}

	for _, st := range s.strategies {
		if err := st.Close(); err != nil {
			log.Warn("关闭协议客户端失败", "method", st.Method().String(), "err", err)
		}
	}

	s.metrics.SetOpenMappings(0)
	var result error
	if failed > 0 {
		result = ErrNoProtocolSucceeded
	}
	s.metrics.ObserveOperation(metrics.OpDestroy, types.MethodNone, result, s.clock.Since(start))
	log.Info("端口映射客户端已销毁", "mappings", len(entries), "failed", failed)
	return nil
}

// Destroyed 是否已销毁
func (s *Service) Destroyed() bool {
	return s.reg.isClosed()
}

// Mappings 返回当前打开的映射快照
func (s *Service) Mappings() []types.MappingInfo {
	return s.reg.snapshot(s.cfg.AutoUpdate)
}

// ============================================================================
//                              续期
// ============================================================================

// scheduleLocked 为条目安排续期定时器，调用方持有 reg.mu
func (s *Service) scheduleLocked(e *entry) {
	tok := &renewal{id: uuid.New()}
	tok.timer = s.clock.AfterFunc(renewDelay(e.req.TTL), func() {
		s.renew(e, tok)
	})
	e.renewal = tok
}

// renew 使用打开映射的协议续期，失败时不回退到其它协议
func (s *Service) renew(e *entry, tok *renewal) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !s.tokenValid(e, tok) {
		return
	}

	st := s.strategyFor(e.method)
	if st == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, renewTimeout)
	defer cancel()

	err := st.AddMapping(ctx, e.req.portMap())
	s.metrics.ObserveRenewal(e.method, err)

	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()

	if tok.cancelled || s.reg.closed || s.reg.entries[e.key()] != e {
		return
	}
	if err != nil {
		e.renewal = nil
		log.Warn("映射续期失败，停止自动续期",
			"key", e.key().String(),
			"method", e.method.String(),
			"token", tok.id.String(),
			"err", err)
		return
	}
	s.scheduleLocked(e)
	log.Debug("映射已续期", "key", e.key().String(), "method", e.method.String())
}

func (s *Service) tokenValid(e *entry, tok *renewal) bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return !tok.cancelled && !s.reg.closed && s.reg.entries[e.key()] == e && e.renewal == tok
}

func (s *Service) strategyFor(m types.Method) interfaces.PortMapper {
	for _, st := range s.strategies {
		if st.Method() == m {
			return st
		}
	}
	return nil
}
