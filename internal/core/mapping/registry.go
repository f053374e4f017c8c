package mapping

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-natmap/pkg/types"
)

// ============================================================================
//                              续期令牌
// ============================================================================

// renewal 单条映射的续期令牌
//
// 令牌在注册表锁下被取消；定时器回调持有令牌指针，
// 触发时先确认令牌仍有效，已取消的令牌不会再发起网络请求。
type renewal struct {
	id        uuid.UUID
	timer     *clock.Timer
	cancelled bool
}

// cancel 取消令牌，调用方持有 registry.mu
func (r *renewal) cancel() {
	if r == nil || r.cancelled {
		return
	}
	r.cancelled = true
	if r.timer != nil {
		r.timer.Stop()
	}
}

// ============================================================================
//                              注册表条目
// ============================================================================

// entry 一条已打开的单协议映射
type entry struct {
	req       Request
	method    types.Method
	createdAt time.Time

	// renewal 受 registry.mu 保护
	renewal *renewal

	// opMu 串行化同一条映射上的续期与删除
	opMu sync.Mutex
}

func (e *entry) key() types.MappingKey {
	return e.req.Key()
}

func (e *entry) info(autoRenew bool) types.MappingInfo {
	return types.MappingInfo{
		Key:         e.key(),
		Method:      e.method,
		TTL:         e.req.TTL,
		Description: e.req.Description,
		CreatedAt:   e.createdAt,
		AutoRenew:   autoRenew && e.renewal != nil,
	}
}

// ============================================================================
//                              注册表
// ============================================================================

// registry 已打开映射的注册表
//
// closed 置位后拒绝新条目，Destroy 与并发的 Map 之间以此为准。
type registry struct {
	mu      sync.Mutex
	entries map[types.MappingKey]*entry
	closed  bool

	// mapping 在途的 Map 调用，Destroy 关闭协议客户端前等待其结束
	mapping sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{entries: make(map[types.MappingKey]*entry)}
}

// removeMatching 删除匹配查询键的条目并取消其续期
func (r *registry) removeMatching(q types.MappingKey) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entry
	for k, e := range r.entries {
		if !k.Matches(q) {
			continue
		}
		e.renewal.cancel()
		delete(r.entries, k)
		out = append(out, e)
	}
	return out
}

// close 关闭注册表，返回全部条目；已关闭时返回 false
func (r *registry) close() ([]*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}
	r.closed = true

	out := make([]*entry, 0, len(r.entries))
	for k, e := range r.entries {
		e.renewal.cancel()
		delete(r.entries, k)
		out = append(out, e)
	}
	sortEntries(out)
	return out, true
}

// beginMap 登记一个在途 Map；注册表已关闭时返回 false
func (r *registry) beginMap() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.mapping.Add(1)
	return true
}

// waitMaps 等待在途 Map 结束，ctx 结束时放弃等待
func (r *registry) waitMaps(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		r.mapping.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// snapshot 返回按端口、协议排序的映射快照
func (r *registry) snapshot(autoRenew bool) []types.MappingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sortEntries(entries)

	out := make([]types.MappingInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info(autoRenew))
	}
	return out
}

func sortEntries(entries []*entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].key(), entries[j].key()
		if a.PublicPort != b.PublicPort {
			return a.PublicPort < b.PublicPort
		}
		if a.PrivatePort != b.PrivatePort {
			return a.PrivatePort < b.PrivatePort
		}
		return a.Protocol < b.Protocol
	})
}

// findByKey 在 entries 中查找键对应的条目
func findByKey(entries []*entry, k types.MappingKey) *entry {
	for _, e := range entries {
		if e.key() == k {
			return e
		}
	}
	return nil
}
