package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Service 聚合内存层与可选的持久层，启动时创建一次并注入到 fetcher 与路由，
// 只有显式失效信号才会清空它。
type Service struct {
	memory     *MemoryStore
	persistent Tier
	logger     *logrus.Logger
	now        func() time.Time
}

// Hit 描述一次缓存命中来自哪一层。
type Hit struct {
	Value json.RawMessage
	Tier  string
}

// ClearResult 是一次全量失效的结果。
type ClearResult struct {
	Memory     int  `json:"memory"`
	Persistent bool `json:"persistent"`
}

// NewService 构建缓存服务；persistent 可以为 nil。
func NewService(memory *MemoryStore, persistent Tier, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		memory:     memory,
		persistent: persistent,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock 替换时钟（同时作用于内存层），测试用。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.memory.WithClock(now)
	return s
}

// Memory 返回内存层。
func (s *Service) Memory() *MemoryStore { return s.memory }

// Persistent 返回持久层，未配置时为 nil。
func (s *Service) Persistent() Tier { return s.persistent }

// TTLFor 返回 key 按命名空间策略得到的过期时间。
func (s *Service) TTLFor(key string) time.Duration {
	return s.memory.Policy().Resolve(key)
}

// Load 先查内存层，再查持久层；持久层命中会按剩余存活时间回填内存层。
// 持久层的任何错误都只记录日志并按未命中处理。
func (s *Service) Load(ctx context.Context, key string) (Hit, bool) {
	if entry, err := s.memory.Get(ctx, key); err == nil {
		return Hit{Value: entry.Value, Tier: s.memory.Name()}, true
	}
	if s.persistent == nil {
		return Hit{}, false
	}

	entry, err := s.persistent.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_get",
				"tier":   s.persistent.Name(),
				"key":    key,
			}).Warn("persistent_get_failed")
		}
		return Hit{}, false
	}
	if !entry.Valid(s.now()) {
		return Hit{}, false
	}
	_ = s.memory.Set(ctx, entry)
	return Hit{Value: entry.Value, Tier: s.persistent.Name()}, true
}

// Store 写入两层缓存。ttl 为 0 时按命名空间策略决定，负数表示立即过期。
func (s *Service) Store(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) Entry {
	if ttl == 0 {
		ttl = s.TTLFor(key)
	}
	entry := NewEntry(key, value, ttl, s.now())
	_ = s.memory.Set(ctx, entry)

	if s.persistent != nil && ttl > 0 {
		if err := s.persistent.Set(ctx, entry); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_set",
				"tier":   s.persistent.Name(),
				"key":    key,
			}).Warn("persistent_set_failed")
		}
	}
	return entry
}

// ClearAll 清空两层缓存。持久层清理失败只记录日志。
func (s *Service) ClearAll(ctx context.Context) ClearResult {
	result := ClearResult{Memory: s.memory.Purge()}
	if s.persistent == nil {
		return result
	}
	if err := s.persistent.Clear(ctx); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_clear",
			"tier":   s.persistent.Name(),
		}).Warn("persistent_clear_failed")
		return result
	}
	result.Persistent = true
	return result
}

// TierUsage 返回每一层的占用情况，key 为 Tier.Name()。
func (s *Service) TierUsage(ctx context.Context) map[string]Usage {
	usage := map[string]Usage{s.memory.Name(): s.memory.Usage(ctx)}
	if reporter, ok := s.persistent.(UsageReporter); ok {
		usage[s.persistent.Name()] = reporter.Usage(ctx)
	}
	return usage
}
