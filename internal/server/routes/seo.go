package routes

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/fetcher"
	"github.com/wpedge/wpedge/internal/seo"
	"github.com/wpedge/wpedge/internal/server"
)

// metadata 的来源，对应 seo_extractions_total 的 source 标签。
const (
	seoSourceUpstream = "upstream"
	seoSourcePost     = "post"
	seoSourceEmpty    = "empty"
)

// RegisterSEORoutes 暴露 GET /api/seo?url=。
func RegisterSEORoutes(app *fiber.App, deps Deps) {
	if deps.Extractor == nil {
		return
	}
	app.Get("/api/seo", func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}
		md, source := resolveMetadata(c.Context(), deps, target, server.RequestID(c))
		deps.Metrics.SEOExtracts.WithLabelValues(source).Inc()
		c.Set("X-Wpedge-SEO-Source", source)
		return c.JSON(md)
	})
}

// resolveMetadata 依次尝试 SEO 接口、按 slug 查询到的文章、空元数据。
func resolveMetadata(ctx context.Context, deps Deps, target, requestID string) (seo.Metadata, string) {
	log := deps.Logger.WithFields(logrus.Fields{
		"action":     "seo",
		"target":     target,
		"request_id": requestID,
	})

	if deps.Config != nil && deps.Config.SEOActive() && deps.Fetcher != nil {
		md, err := fetchUpstreamMetadata(ctx, deps, target)
		if err == nil && !md.IsEmpty() {
			return md, seoSourceUpstream
		}
		if err != nil {
			log.WithError(err).Warn("seo_upstream_failed")
		}
	}

	if deps.Content != nil {
		if slug := lastSegment(target); slug != "" {
			post, err := deps.Content.PostBySlug(ctx, slug)
			if err == nil {
				siteName := ""
				if deps.Config != nil {
					siteName = deps.Config.Site.Name
				}
				return seo.FromPost(*post, deps.Domain, siteName), seoSourcePost
			}
			log.WithError(err).WithField("slug", slug).Debug("seo_post_fallback_failed")
		}
	}

	md := seo.Empty()
	md.Fallback = true
	return md, seoSourceEmpty
}

func fetchUpstreamMetadata(ctx context.Context, deps Deps, target string) (seo.Metadata, error) {
	backendURL := target
	if deps.Domain != nil {
		backendURL = deps.Domain.ToBackend(target)
	}
	raw, err := deps.Fetcher.Fetch(ctx, fetcher.Request{
		Namespace: "seo",
		Origin:    deps.Config.Site.SEOAPIOrigin,
		Params:    url.Values{"url": {backendURL}},
		Cacheable: usableHead,
	})
	if err != nil {
		return seo.Metadata{}, err
	}

	var resp seo.APIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return seo.Metadata{}, err
	}
	if !resp.Success || strings.TrimSpace(resp.Head) == "" {
		return seo.Empty(), nil
	}
	return deps.Extractor.Extract(resp.Head), nil
}

// usableHead 只允许成功且 head 非空的 SEO 响应进入缓存，失败响应每次重新请求。
func usableHead(raw json.RawMessage) bool {
	var resp seo.APIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false
	}
	return resp.Success && strings.TrimSpace(resp.Head) != ""
}

// lastSegment 返回 URL 或路径的最后一个非空路径段。
func lastSegment(target string) string {
	p := target
	if u, err := url.Parse(target); err == nil {
		p = u.Path
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
