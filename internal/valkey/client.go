// Package valkey wraps valkey-go with the connection checks and key
// prefixing the persistent cache tier needs.
package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/wpedge/wpedge/internal/config"
)

// DefaultConnectTimeout 是初次连接 ping 的最长等待时间。
const DefaultConnectTimeout = 5 * time.Second

// Client 持有底层 valkey-go 客户端与键前缀，启动时创建一次并注入缓存层。
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient 根据配置建立连接并 ping；调用方负责 Close。
func NewClient(cfg config.ValkeyConfig) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	timeout := cfg.DialTimeout.DurationValue()
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("ping valkey (timeout: %v): %w", timeout, err)
	}

	return Wrap(inner, cfg.KeyPrefix), nil
}

// Wrap 包装已有客户端，测试中可注入 mock。
func Wrap(inner valkeylib.Client, prefix string) *Client {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Client{inner: inner, keyPrefix: prefix}
}

// Inner 返回底层客户端。
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

// Close 关闭连接。
func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key 拼接带前缀的键，例如 Key("cache", "posts_x") -> "wpedge:cache:posts_x"。
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

// Ping 检查连接状态。
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsNil 判断 err 是否为 Valkey 的 NIL 响应。
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
