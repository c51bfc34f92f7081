// Package proxy forwards SEO lookups to the configured SEO plugin API with a
// fixed timeout, mapping upstream failures to the status codes the page
// renderer expects.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/config"
	"github.com/wpedge/wpedge/internal/logging"
	"github.com/wpedge/wpedge/internal/server"
	"github.com/wpedge/wpedge/internal/version"
)

const (
	// DefaultTimeout 是转发 SEO 接口时的固定超时。
	DefaultTimeout = 10 * time.Second

	maxProxyBody = 4 << 20
)

// Options 控制 SEO 接口转发。
type Options struct {
	Origin  string
	Enabled bool
	Timeout time.Duration
}

// OptionsFromConfig 从站点配置构建 Options。
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Origin:  cfg.Site.SEOAPIOrigin,
		Enabled: cfg.SEOActive(),
		Timeout: cfg.Global.SEOTimeout.DurationValue(),
	}
}

// Handler 负责 /api/rankmath 的转发。
type Handler struct {
	client *http.Client
	logger *logrus.Logger
	opts   Options
}

// NewHandler 构建 Handler；client 为 nil 时使用 http.DefaultClient。
func NewHandler(client *http.Client, logger *logrus.Logger, opts Options) *Handler {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Handler{client: client, logger: logger, opts: opts}
}

// Enabled 报告 SEO 接口是否已配置并启用。
func (h *Handler) Enabled() bool {
	return h.opts.Enabled && h.opts.Origin != ""
}

// Handle 转发 GET {origin}?url=... 并原样返回上游状态码与正文。
// 未配置或缺少 url 时返回 400，超时返回 408，其它网络错误返回 502。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	if !h.Enabled() {
		return h.writeError(c, fiber.StatusBadRequest, "SEO API is not configured")
	}
	target := strings.TrimSpace(c.Query("url"))
	if target == "" {
		return h.writeError(c, fiber.StatusBadRequest, "url parameter is required")
	}

	parent := c.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, h.opts.Timeout)
	defer cancel()

	upstream := UpstreamURL(h.opts.Origin, target)
	status, header, body, err := h.forward(ctx, upstream)
	if err != nil {
		code, message := fiber.StatusBadGateway, "SEO API request failed"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code, message = fiber.StatusRequestTimeout, "SEO API request timed out"
		}
		h.logResult(upstream, requestID, code, started, err)
		return h.writeError(c, code, message)
	}

	copyResponseHeaders(c, header)
	c.Status(status)
	h.logResult(upstream, requestID, status, started, nil)
	return c.Send(body)
}

func (h *Handler) forward(ctx context.Context, upstream string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyBody))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read SEO API body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// UpstreamURL 拼接 {origin}?url={target}，保留 origin 已有的查询参数。
func UpstreamURL(origin, target string) string {
	origin = strings.TrimSpace(origin)
	sep := "?"
	if strings.Contains(origin, "?") {
		sep = "&"
	}
	return origin + sep + "url=" + url.QueryEscape(target)
}

func (h *Handler) writeError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// copyResponseHeaders 透传上游响应头，跳过 hop-by-hop、长度以及由本服务自己设置的 CORS 头。
func copyResponseHeaders(c fiber.Ctx, header http.Header) {
	for key, values := range header {
		if server.IsHopByHopHeader(key) || skipResponseHeader(key) {
			continue
		}
		for _, value := range values {
			c.Append(key, value)
		}
	}
}

func skipResponseHeader(key string) bool {
	canonical := http.CanonicalHeaderKey(key)
	switch canonical {
	case "Content-Length", "Content-Encoding", "Set-Cookie", "Date", "Server":
		return true
	}
	return strings.HasPrefix(canonical, "Access-Control-")
}

func (h *Handler) logResult(upstream, requestID string, status int, started time.Time, err error) {
	fields := logging.RouteFields("/api/rankmath", requestID, status, started)
	fields["action"] = "seo_proxy"
	fields["upstream"] = upstream
	entry := h.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("seo_proxy_failed")
		return
	}
	entry.Debug("seo_proxy_complete")
}
