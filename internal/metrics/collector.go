// Package metrics owns the Prometheus registry for fetch and cache counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 使用独立 registry，避免测试中重复注册到全局默认 registry。
type Collector struct {
	registry *prometheus.Registry

	FetchAttempts *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	CacheHits     *prometheus.CounterVec
	CacheMisses   prometheus.Counter
	Invalidations prometheus.Counter
	SEOExtracts   *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

// NewCollector 创建并注册全部指标。
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Upstream fetch attempts by origin role and outcome.",
			},
			[]string{"origin", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Wall time of a full fetch including retries and failover.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits by tier.",
			},
			[]string{"tier"},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Lookups that missed every cache tier.",
			},
		),
		Invalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Full cache invalidations triggered by the revalidate endpoint.",
			},
		),
		SEOExtracts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seo_extractions_total",
				Help:      "SEO metadata requests by source (upstream, post, empty).",
			},
			[]string{"source"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Served HTTP requests by route pattern and status code.",
			},
			[]string{"route", "code"},
		),
	}

	registry.MustRegister(
		c.FetchAttempts,
		c.FetchDuration,
		c.CacheHits,
		c.CacheMisses,
		c.Invalidations,
		c.SEOExtracts,
		c.HTTPRequests,
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry 返回底层 registry，测试中可直接 Gather。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /-/metrics 使用的 http.Handler。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
