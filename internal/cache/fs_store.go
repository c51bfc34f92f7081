package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FileStore 把条目以 JSON 信封写入磁盘，布局为：
//
//	<StoragePath>/<namespace>/<sha1(key)>.json
//
// 总大小超过 maxBytes 时按 CreatedAt 淘汰最旧的条目；无法解析的文件直接删除并视为未命中。
type FileStore struct {
	basePath string
	maxBytes int64
	now      func() time.Time
	rename   func(oldpath, newpath string) error
	logger   *logrus.Logger

	mu    sync.Mutex
	locks map[string]*entryLock

	indexMu sync.Mutex
	index   map[string]indexEntry
	total   int64
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type indexEntry struct {
	path    string
	size    int64
	created time.Time
}

var namespacePattern = regexp.MustCompile(`[^a-z0-9-]+`)

// NewFileStore 以 basePath 为根目录构建磁盘缓存，并扫描已有文件重建容量索引。
// maxBytes <= 0 表示不限制总大小。
func NewFileStore(basePath string, maxBytes int64, logger *logrus.Logger) (*FileStore, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &FileStore{
		basePath: abs,
		maxBytes: maxBytes,
		now:      time.Now,
		rename:   os.Rename,
		logger:   logger,
		locks:    make(map[string]*entryLock),
		index:    make(map[string]indexEntry),
	}
	s.rebuildIndex()
	return s, nil
}

// WithClock 替换时钟，测试用。
func (s *FileStore) WithClock(now func() time.Time) *FileStore {
	s.now = now
	return s
}

// Name implements Tier.
func (s *FileStore) Name() string { return "disk" }

// Get implements Tier.
func (s *FileStore) Get(ctx context.Context, key string) (Entry, error) {
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	default:
	}

	filePath, err := s.entryPath(key)
	if err != nil {
		return Entry{}, err
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.forget(key)
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Key != key {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_evict",
			"tier":   s.Name(),
			"key":    key,
			"reason": "decode",
		}).Debug("persistent_entry_dropped")
		s.drop(key, filePath)
		return Entry{}, ErrNotFound
	}
	if !entry.Valid(s.now()) {
		s.drop(key, filePath)
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// Set implements Tier。超过总容量的单个条目不会被写入，也不会报错。
func (s *FileStore) Set(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	size := int64(len(payload))
	if s.maxBytes > 0 && size > s.maxBytes {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_skip",
			"tier":   s.Name(),
			"key":    entry.Key,
			"size":   size,
		}).Debug("persistent_entry_too_large")
		return nil
	}

	unlock := s.lockEntry(entry.Key)
	defer unlock()

	filePath, err := s.entryPath(entry.Key)
	if err != nil {
		return err
	}
	s.makeRoom(entry.Key, size)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := s.rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}

	s.remember(entry.Key, indexEntry{path: filePath, size: size, created: entry.CreatedAt})
	return nil
}

// Clear implements Tier：删除根目录下的全部内容，保留根目录本身。
func (s *FileStore) Clear(context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	children, err := os.ReadDir(s.basePath)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := os.RemoveAll(filepath.Join(s.basePath, child.Name())); err != nil {
			return err
		}
	}
	s.index = make(map[string]indexEntry)
	s.total = 0
	return nil
}

// Usage implements UsageReporter.
func (s *FileStore) Usage(context.Context) Usage {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return Usage{Entries: len(s.index), Bytes: s.total, MaxBytes: s.maxBytes}
}

// makeRoom 按创建时间从旧到新淘汰其它条目，直到写入 size 字节后不超过上限。
// key 自身的旧条目保留在索引中，写入成功后由 remember 替换；正在被读写
// （持有条目锁）的条目不会被淘汰，全部候选都忙时允许暂时超出上限。
func (s *FileStore) makeRoom(key string, size int64) {
	if s.maxBytes <= 0 {
		return
	}
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	var own int64
	if existing, ok := s.index[key]; ok {
		own = existing.size
	}
	skip := map[string]struct{}{key: {}}
	for s.total-own+size > s.maxBytes {
		victimKey, victim, ok := s.oldest(skip)
		if !ok {
			return
		}
		unlock, locked := s.tryLockEntry(victimKey)
		if !locked {
			skip[victimKey] = struct{}{}
			continue
		}
		if err := os.Remove(victim.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).WithField("key", victimKey).Warn("persistent_evict_failed")
		}
		s.total -= victim.size
		delete(s.index, victimKey)
		unlock()
	}
}

// oldest 返回 skip 之外创建时间最早的条目，调用方需持有 indexMu。
func (s *FileStore) oldest(skip map[string]struct{}) (string, indexEntry, bool) {
	var (
		oldestKey string
		oldest    indexEntry
		found     bool
	)
	for k, e := range s.index {
		if _, skipped := skip[k]; skipped {
			continue
		}
		if !found || e.created.Before(oldest.created) {
			oldestKey, oldest, found = k, e, true
		}
	}
	return oldestKey, oldest, found
}

func (s *FileStore) remember(key string, e indexEntry) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if existing, ok := s.index[key]; ok {
		s.total -= existing.size
	}
	s.index[key] = e
	s.total += e.size
}

func (s *FileStore) forget(key string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if existing, ok := s.index[key]; ok {
		s.total -= existing.size
		delete(s.index, key)
	}
}

func (s *FileStore) drop(key, filePath string) {
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.WithError(err).WithField("key", key).Warn("persistent_remove_failed")
	}
	s.forget(key)
}

// rebuildIndex 扫描已有文件；损坏或过期的文件在启动阶段即被清理。
func (s *FileStore) rebuildIndex() {
	now := s.now()
	_ = filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		raw, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		var entry Entry
		if json.Unmarshal(raw, &entry) != nil || entry.Key == "" || !entry.Valid(now) {
			os.Remove(p)
			return nil
		}
		s.index[entry.Key] = indexEntry{path: p, size: int64(len(raw)), created: entry.CreatedAt}
		s.total += int64(len(raw))
		return nil
	})
}

func (s *FileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// tryLockEntry 仅在没有其它 goroutine 持有或等待 key 的条目锁时加锁。
func (s *FileStore) tryLockEntry(key string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.locks[key]; busy {
		return nil, false
	}
	lock := &entryLock{refs: 1}
	lock.mu.Lock()
	s.locks[key] = lock
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}, true
}

func (s *FileStore) entryPath(key string) (string, error) {
	if key == "" {
		return "", errors.New("cache key required")
	}
	namespace := namespacePattern.ReplaceAllString(strings.ToLower(Namespace(key)), "")
	if namespace == "" {
		namespace = "misc"
	}
	filePath := filepath.Join(s.basePath, namespace, Fingerprint([]byte(key))+".json")
	if !strings.HasPrefix(filePath, s.basePath) {
		return "", errors.New("invalid cache path")
	}
	return filePath, nil
}
