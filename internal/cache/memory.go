package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
)

// MemoryStore 是进程内的有界 TTL 缓存。条目按插入顺序保存，容量满时淘汰最早插入的
// 条目（与读取次数无关）；过期条目在读取时惰性删除。
type MemoryStore struct {
	maxEntries int
	policy     TTLPolicy
	now        func() time.Time

	mu        sync.Mutex
	entries   *orderedmap.OrderedMap[string, Entry]
	hits      uint64
	misses    uint64
	evictions uint64
}

// MemoryStats 是 MemoryStore 的计数快照。
type MemoryStats struct {
	Entries    int    `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

// NewMemoryStore 以 maxEntries 为容量上限构建内存缓存，默认使用 time.Now 作为时钟。
func NewMemoryStore(maxEntries int, policy TTLPolicy) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &MemoryStore{
		maxEntries: maxEntries,
		policy:     policy,
		now:        time.Now,
		entries:    orderedmap.NewOrderedMap[string, Entry](),
	}
}

// WithClock 替换时钟，测试用。
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// Name implements Tier.
func (m *MemoryStore) Name() string { return "memory" }

// Put 以显式 ttl 写入；ttl 非正数时条目立即过期。
func (m *MemoryStore) Put(key string, value json.RawMessage, ttl time.Duration) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := NewEntry(key, value, ttl, m.now())
	m.admit(entry)
	return entry
}

// PutDefault 按命名空间策略决定 ttl 后写入。
func (m *MemoryStore) PutDefault(key string, value json.RawMessage) Entry {
	return m.Put(key, value, m.policy.Resolve(key))
}

// Lookup 返回未过期的值；过期条目会被删除。
func (m *MemoryStore) Lookup(key string) (json.RawMessage, bool) {
	entry, err := m.Get(context.Background(), key)
	if err != nil {
		return nil, false
	}
	return entry.Value, true
}

// Get implements Tier.
func (m *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries.Get(key)
	if !ok {
		m.misses++
		return Entry{}, ErrNotFound
	}
	if !entry.Valid(m.now()) {
		m.entries.Delete(key)
		m.misses++
		return Entry{}, ErrNotFound
	}
	m.hits++
	return entry, nil
}

// Set implements Tier，保留条目自带的创建与过期时间。
func (m *MemoryStore) Set(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admit(entry)
	return nil
}

// admit 在持锁状态下写入条目。覆盖已有 key 时条目移动到最新位置。
func (m *MemoryStore) admit(entry Entry) {
	if m.entries.Has(entry.Key) {
		m.entries.Delete(entry.Key)
	}
	for m.entries.Len() >= m.maxEntries {
		oldest := m.entries.Front()
		if oldest == nil {
			break
		}
		m.entries.Delete(oldest.Key)
		m.evictions++
	}
	m.entries.Set(entry.Key, entry)
}

// Delete 删除单个键。
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	m.entries.Delete(key)
	m.mu.Unlock()
}

// Clear implements Tier.
func (m *MemoryStore) Clear(context.Context) error {
	m.Purge()
	return nil
}

// Purge 清空全部条目并返回清除数量。
func (m *MemoryStore) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.entries.Len()
	m.entries = orderedmap.NewOrderedMap[string, Entry]()
	return n
}

// Len 返回当前条目数（包括尚未被惰性删除的过期条目）。
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Has 报告 key 是否在存储中，不触发过期删除，也不计入命中统计。
func (m *MemoryStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Has(key)
}

// Stats 返回计数快照。
func (m *MemoryStore) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{
		Entries:    m.entries.Len(),
		MaxEntries: m.maxEntries,
		Hits:       m.hits,
		Misses:     m.misses,
		Evictions:  m.evictions,
	}
}

// Usage implements UsageReporter.
func (m *MemoryStore) Usage(context.Context) Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var size int64
	for el := m.entries.Front(); el != nil; el = el.Next() {
		size += int64(len(el.Value.Value))
	}
	return Usage{Entries: m.entries.Len(), Bytes: size}
}

// Policy 返回该存储使用的 TTL 策略。
func (m *MemoryStore) Policy() TTLPolicy {
	return m.policy
}
