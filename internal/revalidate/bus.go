// Package revalidate fans cache invalidation signals out to in-process
// subscribers. The HTTP endpoint clears the cache service first and then
// publishes, so subscribers always observe an already-empty cache.
package revalidate

import (
	"sync"
	"time"
)

// Signal 描述一次失效请求。
type Signal struct {
	Paths []string  `json:"paths"`
	Tags  []string  `json:"tags"`
	At    time.Time `json:"at"`
}

// Handler 接收失效信号；应尽快返回。
type Handler func(Signal)

// Bus 是同步的进程内发布订阅。
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
	last   *Signal
	count  uint64
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus 创建空的 Bus。
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe 注册 handler，返回取消订阅函数。
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish 按注册顺序同步调用全部 handler，并记录为最近一次信号。
func (b *Bus) Publish(sig Signal) {
	if sig.At.IsZero() {
		sig.At = time.Now()
	}
	sig.Paths = nonNil(sig.Paths)
	sig.Tags = nonNil(sig.Tags)

	b.mu.Lock()
	b.last = &sig
	b.count++
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(sig)
	}
}

// Last 返回最近一次信号。
func (b *Bus) Last() (Signal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return Signal{}, false
	}
	return *b.last, true
}

// Count 返回已发布的信号数量。
func (b *Bus) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
