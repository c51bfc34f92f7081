package cache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"

	"github.com/wpedge/wpedge/internal/logging"
	"github.com/wpedge/wpedge/internal/valkey"
)

func newTestValkeyStore(t *testing.T, maxEntryBytes int64) (*ValkeyStore, *mock.Client) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	return NewValkeyStore(valkey.Wrap(client, "wpedge"), maxEntryBytes, logging.Discard()), client
}

func TestValkeyStoreNilReplyIsMiss(t *testing.T) {
	store, client := newTestValkeyStore(t, 0)
	ctx := context.Background()
	client.EXPECT().
		Do(ctx, mock.Match("GET", "wpedge:cache:posts_a")).
		Return(mock.Result(mock.ValkeyNil()))

	if _, err := store.Get(ctx, "posts_a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValkeyStoreGetDecodesEntry(t *testing.T) {
	store, client := newTestValkeyStore(t, 0)
	ctx := context.Background()
	entry := NewEntry("posts_a", json.RawMessage(`[{"id":1}]`), time.Hour, time.Now())
	payload, _ := json.Marshal(entry)
	client.EXPECT().
		Do(ctx, mock.Match("GET", "wpedge:cache:posts_a")).
		Return(mock.Result(mock.ValkeyString(string(payload))))

	got, err := store.Get(ctx, "posts_a")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if string(got.Value) != `[{"id":1}]` {
		t.Fatalf("payload mismatch: %s", got.Value)
	}
}

func TestValkeyStoreCorruptPayloadIsDeleted(t *testing.T) {
	store, client := newTestValkeyStore(t, 0)
	ctx := context.Background()
	gomock.InOrder(
		client.EXPECT().
			Do(ctx, mock.Match("GET", "wpedge:cache:posts_a")).
			Return(mock.Result(mock.ValkeyString("{not json"))),
		client.EXPECT().
			Do(ctx, mock.Match("DEL", "wpedge:cache:posts_a")).
			Return(mock.Result(mock.ValkeyInt64(1))),
	)

	if _, err := store.Get(ctx, "posts_a"); err != ErrNotFound {
		t.Fatalf("corrupt entry should read as a miss, got %v", err)
	}
}

func TestValkeyStoreSetUsesExpiry(t *testing.T) {
	store, client := newTestValkeyStore(t, 0)
	ctx := context.Background()
	entry := NewEntry("posts_a", json.RawMessage(`[]`), time.Hour, time.Now())

	client.EXPECT().
		Do(ctx, mock.MatchFn(func(cmd []string) bool {
			return len(cmd) == 5 &&
				cmd[0] == "SET" &&
				cmd[1] == "wpedge:cache:posts_a" &&
				strings.Contains(cmd[2], `"key":"posts_a"`) &&
				cmd[3] == "EX"
		}, "SET wpedge:cache:posts_a <entry> EX <ttl>")).
		Return(mock.Result(mock.ValkeyString("OK")))

	if err := store.Set(ctx, entry); err != nil {
		t.Fatalf("set error: %v", err)
	}
}

func TestValkeyStoreSkipsOversizeAndShortLivedEntries(t *testing.T) {
	store, _ := newTestValkeyStore(t, 64)
	ctx := context.Background()

	big := NewEntry("posts_big", json.RawMessage(`"`+strings.Repeat("x", 128)+`"`), time.Hour, time.Now())
	if err := store.Set(ctx, big); err != nil {
		t.Fatalf("oversize set should be skipped silently: %v", err)
	}

	short := NewEntry("posts_short", json.RawMessage(`[]`), 500*time.Millisecond, time.Now())
	if err := store.Set(ctx, short); err != nil {
		t.Fatalf("short-lived set should be skipped silently: %v", err)
	}
}

func TestValkeyStoreClearDeletesScannedKeys(t *testing.T) {
	store, client := newTestValkeyStore(t, 0)
	ctx := context.Background()
	gomock.InOrder(
		client.EXPECT().
			Do(ctx, mock.Match("SCAN", "0", "MATCH", "wpedge:cache:*", "COUNT", "100")).
			Return(mock.Result(mock.ValkeyArray(
				mock.ValkeyString("7"),
				mock.ValkeyArray(mock.ValkeyString("wpedge:cache:posts_a")),
			))),
		client.EXPECT().
			Do(ctx, mock.Match("SCAN", "7", "MATCH", "wpedge:cache:*", "COUNT", "100")).
			Return(mock.Result(mock.ValkeyArray(
				mock.ValkeyString("0"),
				mock.ValkeyArray(mock.ValkeyString("wpedge:cache:tags_b")),
			))),
		client.EXPECT().
			Do(ctx, mock.Match("DEL", "wpedge:cache:posts_a", "wpedge:cache:tags_b")).
			Return(mock.Result(mock.ValkeyInt64(2))),
	)

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear error: %v", err)
	}
}

func TestValkeyStoreClearWithoutKeysSkipsDel(t *testing.T) {
	store, client := newTestValkeyStore(t, 0)
	ctx := context.Background()
	client.EXPECT().
		Do(ctx, mock.Match("SCAN", "0", "MATCH", "wpedge:cache:*", "COUNT", "100")).
		Return(mock.Result(mock.ValkeyArray(mock.ValkeyString("0"), mock.ValkeyArray()))).
		Times(2)

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	if usage := store.Usage(ctx); usage.Entries != 0 {
		t.Fatalf("expected no entries, got %d", usage.Entries)
	}
}
