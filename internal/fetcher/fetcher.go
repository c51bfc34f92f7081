// Package fetcher implements the cache-first, retrying GET pipeline used for
// every call to the content API and the SEO API.
//
// A fetch resolves its cache key, consults the memory and persistent tiers,
// and only on a full miss goes to the network: up to MaxAttempts tries against
// the primary origin, each bounded by Timeout, then the same sequence once
// against a distinct fallback origin. Successful JSON bodies are written back
// to both tiers under the namespace TTL. Concurrent misses on the same key are
// not coalesced; both perform their own network calls and the later write wins.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/wpedge/wpedge/internal/cache"
	"github.com/wpedge/wpedge/internal/config"
	"github.com/wpedge/wpedge/internal/logging"
	"github.com/wpedge/wpedge/internal/metrics"
	"github.com/wpedge/wpedge/internal/version"
)

const (
	// DefaultTimeout 是单次尝试的超时时间。
	DefaultTimeout = 10 * time.Second
	// DefaultMaxAttempts 是每个源站的尝试次数。
	DefaultMaxAttempts = 4

	maxBodyBytes = 16 << 20

	rolePrimary  = "primary"
	roleFallback = "fallback"
	roleDirect   = "direct"
)

// Options 控制回源行为。
type Options struct {
	PrimaryOrigin  string
	FallbackOrigin string
	MaxAttempts    int
	Timeout        time.Duration
	Backoff        time.Duration
	// BreakerMinRequests/BreakerFailureRatio 决定熔断器何时打开，零值使用默认。
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

// Request 描述一次逻辑请求。Origin 非空时只请求该地址，不做故障转移。
type Request struct {
	Namespace string
	Origin    string
	Path      string
	Params    url.Values
	// TTL 为 0 时按命名空间策略，负数表示写入即过期。
	TTL       time.Duration
	SkipCache bool
	// Cacheable 非空且返回 false 时，响应照常返回但不写入缓存。
	Cacheable func(json.RawMessage) bool
}

// Key 返回该请求的缓存键；与最终由哪个源站响应无关。
func (r Request) Key() string {
	return cache.BuildKey(r.Namespace, r.Path, r.Params)
}

// Fetcher 是共享的回源器，启动时创建一次。
type Fetcher struct {
	client  *http.Client
	cache   *cache.Service
	logger  *logrus.Logger
	metrics *metrics.Collector
	opts    Options

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker

	sleep func(context.Context, time.Duration) error
}

// New 构建 Fetcher。collector 为 nil 时使用私有 registry。
func New(client *http.Client, svc *cache.Service, logger *logrus.Logger, collector *metrics.Collector, opts Options) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if collector == nil {
		collector = metrics.NewCollector("wpedge")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BreakerMinRequests == 0 {
		opts.BreakerMinRequests = 20
	}
	if opts.BreakerFailureRatio <= 0 {
		opts.BreakerFailureRatio = 0.9
	}
	if opts.BreakerOpenTimeout <= 0 {
		opts.BreakerOpenTimeout = 30 * time.Second
	}
	opts.PrimaryOrigin = strings.TrimRight(opts.PrimaryOrigin, "/")
	opts.FallbackOrigin = strings.TrimRight(opts.FallbackOrigin, "/")

	return &Fetcher{
		client:   client,
		cache:    svc,
		logger:   logger,
		metrics:  collector,
		opts:     opts,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		sleep:    sleepContext,
	}
}

// OptionsFromConfig 把全局配置映射为 Options。
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		PrimaryOrigin: cfg.Site.ContentAPIOrigin,
		MaxAttempts:   cfg.Global.MaxRetries,
		Timeout:       cfg.Global.UpstreamTimeout.DurationValue(),
		Backoff:       cfg.Global.RetryBackoff.DurationValue(),
	}
	if cfg.HasFallback() {
		opts.FallbackOrigin = cfg.Site.FallbackAPIOrigin
	}
	return opts
}

// Cache 返回注入的缓存服务。
func (f *Fetcher) Cache() *cache.Service {
	return f.cache
}

// Fetch 执行缓存优先的回源流程，返回 JSON 正文。
func (f *Fetcher) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	started := time.Now()
	key := req.Key()

	if !req.SkipCache && f.cache != nil {
		if hit, ok := f.cache.Load(ctx, key); ok {
			f.metrics.CacheHits.WithLabelValues(hit.Tier).Inc()
			f.logger.WithFields(logrus.Fields{
				"action": "fetch",
				"key":    key,
				"tier":   hit.Tier,
			}).Debug("cache_hit")
			return hit.Value, nil
		}
		f.metrics.CacheMisses.Inc()
	}

	var lastErr *FetchError
	for _, target := range f.targets(req) {
		data, err := f.sequence(ctx, key, target.role, target.url)
		if err == nil {
			if f.cache != nil && (req.Cacheable == nil || req.Cacheable(data)) {
				f.cache.Store(ctx, key, data, req.TTL)
			}
			f.observe("success", started)
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || !err.failoverAllowed() {
			break
		}
		if target.role == rolePrimary && f.opts.FallbackOrigin != "" {
			f.logger.WithFields(logging.FetchFields(key, target.url, err.Attempts, string(err.Kind))).
				Warn("primary_exhausted_failover")
		}
	}

	f.observe("error", started)
	if lastErr == nil {
		lastErr = &FetchError{Message: "no origin configured", Kind: OutcomeNetworkError}
	}
	return nil, lastErr
}

// FetchInto 执行 Fetch 并把结果解码到 v。
func (f *Fetcher) FetchInto(ctx context.Context, req Request, v any) error {
	data, err := f.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", req.Key(), err)
	}
	return nil
}

type target struct {
	role string
	url  string
}

func (f *Fetcher) targets(req Request) []target {
	if req.Origin != "" {
		return []target{{role: roleDirect, url: buildURL(req.Origin, req.Path, req.Params)}}
	}
	var targets []target
	if f.opts.PrimaryOrigin != "" {
		targets = append(targets, target{role: rolePrimary, url: buildURL(f.opts.PrimaryOrigin, req.Path, req.Params)})
	}
	if f.opts.FallbackOrigin != "" && f.opts.FallbackOrigin != f.opts.PrimaryOrigin {
		targets = append(targets, target{role: roleFallback, url: buildURL(f.opts.FallbackOrigin, req.Path, req.Params)})
	}
	return targets
}

// sequence 对单个源站执行最多 MaxAttempts 次尝试。
func (f *Fetcher) sequence(ctx context.Context, key, role, target string) (json.RawMessage, *FetchError) {
	var last Outcome
	attempts := 0
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		if attempt > 1 && f.opts.Backoff > 0 {
			if err := f.sleep(ctx, time.Duration(attempt-1)*f.opts.Backoff); err != nil {
				return nil, cancelled(role, attempts, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, cancelled(role, attempts, err)
		}

		attempts = attempt
		last = f.Attempt(ctx, role, target)
		f.metrics.FetchAttempts.WithLabelValues(role, string(last.Kind)).Inc()
		if last.ok() {
			return last.Data, nil
		}

		entry := f.logger.WithFields(logging.FetchFields(key, target, attempt, string(last.Kind)))
		if last.Status > 0 {
			entry = entry.WithField("status", last.Status)
		}
		if last.Err != nil {
			entry = entry.WithError(last.Err)
		}
		entry.Warn("fetch_attempt_failed")

		if !last.retryable() {
			break
		}
	}

	return nil, &FetchError{
		Message:    fmt.Sprintf("fetch %s failed after %d attempt(s): %s", role, attempts, last.describe()),
		StatusCode: last.Status,
		Kind:       last.Kind,
		Origin:     role,
		Attempts:   attempts,
		Cause:      last.Err,
	}
}

// Attempt 执行单次带超时的 GET，并经过该源站的熔断器。
func (f *Fetcher) Attempt(ctx context.Context, role, target string) Outcome {
	result, err := f.breaker(role).Execute(func() (interface{}, error) {
		outcome := f.do(ctx, target)
		if outcome.breakerFailure() {
			return outcome, errBreakerFailure
		}
		return outcome, nil
	})
	if outcome, ok := result.(Outcome); ok {
		return outcome
	}
	return Outcome{Kind: OutcomeNetworkError, Err: err}
}

var errBreakerFailure = errors.New("upstream failure")

func (f *Fetcher) do(ctx context.Context, target string) Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{Kind: OutcomeNetworkError, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return classifyTransportError(ctx, attemptCtx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Outcome{Kind: OutcomeHTTPError, Status: resp.StatusCode}
	}
	if !json.Valid(body) {
		return Outcome{Kind: OutcomeNetworkError, Err: ErrInvalidBody}
	}
	return Outcome{Kind: OutcomeSuccess, Data: json.RawMessage(body), Status: resp.StatusCode}
}

// classifyTransportError 区分单次超时与其它网络错误；调用方自身取消不算超时。
func classifyTransportError(parent, attemptCtx context.Context, err error) Outcome {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeTimeout, Err: err}
	}
	return Outcome{Kind: OutcomeNetworkError, Err: err}
}

func (f *Fetcher) breaker(role string) *gobreaker.CircuitBreaker {
	f.breakerMu.Lock()
	defer f.breakerMu.Unlock()

	if cb, ok := f.breakers[role]; ok {
		return cb
	}
	minRequests := f.opts.BreakerMinRequests
	ratio := f.opts.BreakerFailureRatio
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        role,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     f.opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			f.logger.WithFields(logrus.Fields{
				"action": "breaker",
				"origin": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("breaker_state_changed")
		},
	})
	f.breakers[role] = cb
	return cb
}

func (f *Fetcher) observe(result string, started time.Time) {
	f.metrics.FetchDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
}

func (e *FetchError) failoverAllowed() bool {
	return !(e.Kind == OutcomeHTTPError && e.StatusCode == http.StatusNotFound)
}

func cancelled(role string, attempts int, err error) *FetchError {
	return &FetchError{
		Message:  fmt.Sprintf("fetch %s cancelled after %d attempt(s)", role, attempts),
		Kind:     OutcomeNetworkError,
		Origin:   role,
		Attempts: attempts,
		Cause:    err,
	}
}

// buildURL 拼接源站、路径与查询参数；源站自带查询串时追加参数。
func buildURL(origin, path string, params url.Values) string {
	base := strings.TrimRight(origin, "/")
	if p := strings.Trim(path, "/"); p != "" {
		base += "/" + p
	}
	query := params.Encode()
	if query == "" {
		return base
	}
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
