package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestFileStoreSetAndGet(t *testing.T) {
	clock := newFakeClock()
	store := newTestFileStore(t, 0).WithClock(clock.Now)
	entry := NewEntry("posts_wp/v2/posts?page=1", json.RawMessage(`[{"id":1}]`), time.Hour, clock.Now())

	if err := store.Set(context.Background(), entry); err != nil {
		t.Fatalf("set error: %v", err)
	}
	got, err := store.Get(context.Background(), entry.Key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if string(got.Value) != `[{"id":1}]` {
		t.Fatalf("cached payload mismatch: %s", got.Value)
	}
	if got.Fingerprint != entry.Fingerprint {
		t.Fatalf("fingerprint mismatch")
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	store := newTestFileStore(t, 0)
	if _, err := store.Get(context.Background(), "posts_missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreExpiredEntryIsRemoved(t *testing.T) {
	clock := newFakeClock()
	store := newTestFileStore(t, 0).WithClock(clock.Now)
	entry := NewEntry("search_q", json.RawMessage(`1`), time.Minute, clock.Now())
	if err := store.Set(context.Background(), entry); err != nil {
		t.Fatalf("set error: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := store.Get(context.Background(), entry.Key); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
	path, _ := store.entryPath(entry.Key)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expired file should be deleted, stat err=%v", err)
	}
}

func TestFileStoreCorruptFileIsSilentMiss(t *testing.T) {
	store := newTestFileStore(t, 0)
	entry := NewEntry("posts_corrupt", json.RawMessage(`1`), time.Hour, time.Now())
	if err := store.Set(context.Background(), entry); err != nil {
		t.Fatalf("set error: %v", err)
	}
	path, _ := store.entryPath(entry.Key)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	if _, err := store.Get(context.Background(), entry.Key); err != ErrNotFound {
		t.Fatalf("corrupt entry should be a plain miss, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file should be evicted")
	}
	if usage := store.Usage(context.Background()); usage.Entries != 0 || usage.Bytes != 0 {
		t.Fatalf("index should forget corrupt entry: %+v", usage)
	}
}

func TestFileStoreEvictsOldestWhenOverCeiling(t *testing.T) {
	clock := newFakeClock()
	probe := NewEntry("posts_0", json.RawMessage(`"xxxxxxxxxxxxxxxx"`), time.Hour, clock.Now())
	raw, _ := json.Marshal(probe)
	ceiling := int64(len(raw))*3 + 10

	store := newTestFileStore(t, ceiling).WithClock(clock.Now)
	for i := 0; i < 4; i++ {
		entry := NewEntry(fmt.Sprintf("posts_%d", i), json.RawMessage(`"xxxxxxxxxxxxxxxx"`), time.Hour, clock.Now())
		if err := store.Set(context.Background(), entry); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		clock.Advance(time.Second)
	}

	if _, err := store.Get(context.Background(), "posts_0"); err != ErrNotFound {
		t.Fatalf("oldest entry should be evicted under size pressure, got %v", err)
	}
	for i := 1; i < 4; i++ {
		if _, err := store.Get(context.Background(), fmt.Sprintf("posts_%d", i)); err != nil {
			t.Fatalf("posts_%d should survive: %v", i, err)
		}
	}
	if usage := store.Usage(context.Background()); usage.Bytes > ceiling {
		t.Fatalf("usage %d exceeds ceiling %d", usage.Bytes, ceiling)
	}
}

func TestFileStoreFailedWriteKeepsPreviousEntryIndexed(t *testing.T) {
	clock := newFakeClock()
	store := newTestFileStore(t, 1<<20).WithClock(clock.Now)
	ctx := context.Background()

	first := NewEntry("posts_a", json.RawMessage(`[1]`), time.Hour, clock.Now())
	if err := store.Set(ctx, first); err != nil {
		t.Fatalf("set error: %v", err)
	}
	before := store.Usage(ctx)

	store.rename = func(string, string) error { return errors.New("disk full") }
	second := NewEntry("posts_a", json.RawMessage(`[1,2,3]`), time.Hour, clock.Now())
	if err := store.Set(ctx, second); err == nil {
		t.Fatalf("expected rename failure to surface")
	}

	if after := store.Usage(ctx); after != before {
		t.Fatalf("usage changed after failed write: before=%+v after=%+v", before, after)
	}
	got, err := store.Get(ctx, "posts_a")
	if err != nil || string(got.Value) != `[1]` {
		t.Fatalf("previous entry should survive, got %s err=%v", got.Value, err)
	}
}

func TestFileStoreEvictionSkipsLockedEntry(t *testing.T) {
	clock := newFakeClock()
	sample := NewEntry("posts_0", json.RawMessage(`"xxxxxxxxxxxxxxxx"`), time.Hour, clock.Now())
	raw, _ := json.Marshal(sample)
	ceiling := int64(len(raw))*2 + 10

	store := newTestFileStore(t, ceiling).WithClock(clock.Now)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		entry := NewEntry(fmt.Sprintf("posts_%d", i), json.RawMessage(`"xxxxxxxxxxxxxxxx"`), time.Hour, clock.Now())
		if err := store.Set(ctx, entry); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		clock.Advance(time.Second)
	}

	unlock := store.lockEntry("posts_0")
	third := NewEntry("posts_2", json.RawMessage(`"xxxxxxxxxxxxxxxx"`), time.Hour, clock.Now())
	if err := store.Set(ctx, third); err != nil {
		t.Fatalf("set third: %v", err)
	}
	unlock()

	if _, err := store.Get(ctx, "posts_0"); err != nil {
		t.Fatalf("locked entry must not be evicted: %v", err)
	}
	if _, err := store.Get(ctx, "posts_1"); err != ErrNotFound {
		t.Fatalf("next oldest unlocked entry should be evicted, got %v", err)
	}
	if usage := store.Usage(ctx); usage.Bytes > ceiling {
		t.Fatalf("usage %d exceeds ceiling %d", usage.Bytes, ceiling)
	}
}

func TestFileStoreSkipsOversizedEntry(t *testing.T) {
	store := newTestFileStore(t, 16)
	entry := NewEntry("posts_big", json.RawMessage(`"this payload is far larger than sixteen bytes"`), time.Hour, time.Now())
	if err := store.Set(context.Background(), entry); err != nil {
		t.Fatalf("oversized entries are skipped silently, got %v", err)
	}
	if _, err := store.Get(context.Background(), entry.Key); err != ErrNotFound {
		t.Fatalf("oversized entry should not be stored")
	}
}

func TestFileStoreRebuildsIndexOnStartup(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileStore(dir, 0, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	entry := NewEntry("tags_all", json.RawMessage(`[]`), time.Hour, time.Now())
	if err := first.Set(context.Background(), entry); err != nil {
		t.Fatalf("set: %v", err)
	}

	second, err := NewFileStore(dir, 0, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if usage := second.Usage(context.Background()); usage.Entries != 1 {
		t.Fatalf("expected 1 indexed entry after restart, got %+v", usage)
	}
	if _, err := second.Get(context.Background(), "tags_all"); err != nil {
		t.Fatalf("entry should survive restart: %v", err)
	}
}

func TestFileStoreClear(t *testing.T) {
	store := newTestFileStore(t, 0)
	for _, key := range []string{"posts_a", "tags_b", "nonamespace"} {
		if err := store.Set(context.Background(), NewEntry(key, json.RawMessage(`1`), time.Hour, time.Now())); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if usage := store.Usage(context.Background()); usage.Entries != 0 {
		t.Fatalf("expected empty store, got %+v", usage)
	}
	if _, err := store.Get(context.Background(), "posts_a"); err != ErrNotFound {
		t.Fatalf("expected miss after clear")
	}
}

// newTestFileStore returns a FileStore backed by a temporary directory.
func newTestFileStore(t *testing.T, maxBytes int64) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), maxBytes, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
