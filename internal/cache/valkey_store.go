package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/valkey"
)

// ValkeyStore 是基于 Valkey 的持久层：SET EX 写入 JSON 信封，过期由服务端负责。
type ValkeyStore struct {
	client        *valkey.Client
	prefix        string
	maxEntryBytes int64
	logger        *logrus.Logger
}

// NewValkeyStore 构建 Valkey 持久层；maxEntryBytes <= 0 表示不限制单条大小。
func NewValkeyStore(client *valkey.Client, maxEntryBytes int64, logger *logrus.Logger) *ValkeyStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ValkeyStore{
		client:        client,
		prefix:        client.Key("cache") + ":",
		maxEntryBytes: maxEntryBytes,
		logger:        logger,
	}
}

// Name implements Tier.
func (s *ValkeyStore) Name() string { return "valkey" }

func (s *ValkeyStore) fullKey(key string) string {
	return s.prefix + key
}

// Get implements Tier。NIL 与解析失败都视为未命中，解析失败的键会被删除。
func (s *ValkeyStore) Get(ctx context.Context, key string) (Entry, error) {
	inner := s.client.Inner()
	data, err := inner.Do(ctx, inner.B().Get().Key(s.fullKey(key)).Build()).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("valkey get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_evict",
			"tier":   s.Name(),
			"key":    key,
			"reason": "decode",
		}).Debug("persistent_entry_dropped")
		_ = inner.Do(ctx, inner.B().Del().Key(s.fullKey(key)).Build()).Error()
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// Set implements Tier。剩余存活不足一秒或超过单条上限的条目直接跳过。
func (s *ValkeyStore) Set(ctx context.Context, entry Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl < time.Second {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if s.maxEntryBytes > 0 && int64(len(data)) > s.maxEntryBytes {
		return nil
	}

	inner := s.client.Inner()
	cmd := inner.B().Set().
		Key(s.fullKey(entry.Key)).
		Value(string(data)).
		Ex(ttl).
		Build()
	if err := inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Clear implements Tier：SCAN 前缀后批量 DEL。
func (s *ValkeyStore) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	inner := s.client.Inner()
	if err := inner.Do(ctx, inner.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

// Usage implements UsageReporter；只统计键数量。
func (s *ValkeyStore) Usage(ctx context.Context) Usage {
	keys, err := s.scan(ctx)
	if err != nil {
		return Usage{}
	}
	return Usage{Entries: len(keys), MaxBytes: s.maxEntryBytes}
}

func (s *ValkeyStore) scan(ctx context.Context) ([]string, error) {
	inner := s.client.Inner()
	var (
		keys   []string
		cursor uint64
	)
	for {
		cmd := inner.B().Scan().Cursor(cursor).Match(s.prefix + "*").Count(100).Build()
		result, err := inner.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("valkey scan: %w", err)
		}
		keys = append(keys, result.Elements...)
		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
