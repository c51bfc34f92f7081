// Package routes registers the HTTP surface of wpedge on a Fiber app: the
// content and SEO APIs consumed by the page renderer, the cache revalidation
// hook called by the CMS, and the /-/ diagnostics endpoints.
package routes

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/cache"
	"github.com/wpedge/wpedge/internal/config"
	"github.com/wpedge/wpedge/internal/content"
	"github.com/wpedge/wpedge/internal/domainmap"
	"github.com/wpedge/wpedge/internal/fetcher"
	"github.com/wpedge/wpedge/internal/logging"
	"github.com/wpedge/wpedge/internal/metrics"
	"github.com/wpedge/wpedge/internal/proxy"
	"github.com/wpedge/wpedge/internal/revalidate"
	"github.com/wpedge/wpedge/internal/seo"
)

// DegradedHeader 标记响应因上游失败而降级为空数据。
const DegradedHeader = "X-Wpedge-Degraded"

// Deps 汇总路由依赖，全部在启动时构建一次。
type Deps struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Cache     *cache.Service
	Fetcher   *fetcher.Fetcher
	Content   *content.Client
	Extractor seo.Extractor
	Domain    *domainmap.Transformer
	Bus       *revalidate.Bus
	Metrics   *metrics.Collector
	SEOProxy  *proxy.Handler
	Started   time.Time
}

// Register 挂载全部路由。
func Register(app *fiber.App, deps Deps) {
	if app == nil {
		return
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector("wpedge")
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}

	if deps.SEOProxy != nil {
		app.Get("/api/rankmath", deps.SEOProxy.Handle)
	}
	RegisterSEORoutes(app, deps)
	RegisterRevalidateRoutes(app, deps)
	RegisterContentRoutes(app, deps)
	RegisterDiagnosticsRoutes(app, deps)
}

func queryInt(c fiber.Ctx, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
