package cache

import (
	"sort"
	"strings"
	"time"
)

// DefaultTTL 是没有任何命名空间规则匹配时的过期时间。
const DefaultTTL = time.Minute

// TTLRule 将一个键前缀映射到过期时间。
type TTLRule struct {
	Prefix string
	TTL    time.Duration
}

// TTLPolicy 按最长前缀匹配决定过期时间，未命中时使用 fallback。
type TTLPolicy struct {
	rules    []TTLRule
	fallback time.Duration
}

// NewTTLPolicy 构造策略；规则按前缀长度降序保存，便于最长前缀优先。
func NewTTLPolicy(fallback time.Duration, rules ...TTLRule) TTLPolicy {
	sorted := append([]TTLRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return TTLPolicy{rules: sorted, fallback: fallback}
}

// DefaultPolicy 返回内容站点使用的命名空间 TTL。
func DefaultPolicy() TTLPolicy {
	return NewTTLPolicy(DefaultTTL,
		TTLRule{Prefix: "posts_", TTL: 2 * time.Hour},
		TTLRule{Prefix: "pages_", TTL: 2 * time.Hour},
		TTLRule{Prefix: "categories_", TTL: 6 * time.Hour},
		TTLRule{Prefix: "tags_", TTL: 6 * time.Hour},
		TTLRule{Prefix: "popular_", TTL: time.Hour},
		TTLRule{Prefix: "featured_", TTL: time.Hour},
		TTLRule{Prefix: "homepage_", TTL: 4 * time.Hour},
		TTLRule{Prefix: "search_", TTL: 15 * time.Minute},
		TTLRule{Prefix: "seo_", TTL: time.Hour},
	)
}

// Resolve 返回 key 对应的过期时间。
func (p TTLPolicy) Resolve(key string) time.Duration {
	for _, rule := range p.rules {
		if strings.HasPrefix(key, rule.Prefix) {
			return rule.TTL
		}
	}
	if p.fallback > 0 {
		return p.fallback
	}
	return DefaultTTL
}

// Rules 返回规则副本，供诊断接口输出。
func (p TTLPolicy) Rules() []TTLRule {
	return append([]TTLRule(nil), p.rules...)
}
