package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound 表示缓存不存在或已过期。
var ErrNotFound = errors.New("cache entry not found")

// Entry 是单个缓存条目。ExpiresAt 之前有效；TTL 非正数时条目创建即过期。
type Entry struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Fingerprint string          `json:"fingerprint"`
}

// NewEntry 以 now 为创建时间构建条目，并计算内容指纹。
func NewEntry(key string, value json.RawMessage, ttl time.Duration, now time.Time) Entry {
	expires := now.Add(ttl)
	if ttl <= 0 {
		expires = now
	}
	return Entry{
		Key:         key,
		Value:       value,
		CreatedAt:   now,
		ExpiresAt:   expires,
		Fingerprint: Fingerprint(value),
	}
}

// Valid 报告条目在 now 时刻是否仍然可用。
func (e Entry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Remaining 返回剩余存活时间，已过期时为 0。
func (e Entry) Remaining(now time.Time) time.Duration {
	if left := e.ExpiresAt.Sub(now); left > 0 {
		return left
	}
	return 0
}

// Fingerprint 返回内容的 sha1 十六进制摘要。
func Fingerprint(value []byte) string {
	sum := sha1.Sum(value)
	return hex.EncodeToString(sum[:])
}

// Tier 是每一层缓存对外暴露的统一门面，调用方不关心命中来自哪一层。
type Tier interface {
	// Get 返回未过期的条目；不存在、过期或无法解析时返回 ErrNotFound。
	Get(ctx context.Context, key string) (Entry, error)

	// Set 写入条目，相同 key 覆盖旧值。
	Set(ctx context.Context, entry Entry) error

	// Clear 清空整层缓存。
	Clear(ctx context.Context) error

	// Name 用于日志与指标中的 tier 标签。
	Name() string
}

// Usage 描述一层缓存的占用情况。
type Usage struct {
	Entries  int   `json:"entries"`
	Bytes    int64 `json:"bytes"`
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

// UsageReporter 由能够统计自身占用的 Tier 实现。
type UsageReporter interface {
	Usage(ctx context.Context) Usage
}
