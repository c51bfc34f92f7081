// Package domainmap rewrites URLs between the CMS backend origin and the
// public frontend origin.
package domainmap

import (
	"regexp"
	"sort"
	"strings"

	"github.com/wpedge/wpedge/internal/config"
)

// Mapping 描述后端与前端源站及其别名。
type Mapping struct {
	BackendOrigin   string
	BackendAliases  []string
	FrontendOrigin  string
	FrontendAliases []string
	// PreservePaths 中的路径即使位于后端源站，RewriteAll 也不会改写（静态资源仍由后端提供）。
	PreservePaths []string
}

// DefaultPreservePaths 是 PreservePaths 为空时使用的 WordPress 静态资源路径。
var DefaultPreservePaths = []string{"/wp-content/", "/wp-includes/"}

// Transformer 按前缀匹配在后端与前端源站之间改写 URL。匹配忽略大小写，
// 且要求前缀之后是路径、查询、片段或字符串结尾，避免把 backend.example.com.evil 误判为后端。
type Transformer struct {
	backendOrigin  string
	frontendOrigin string
	backends       []string
	frontends      []string
	preserve       []string
	backendText    *regexp.Regexp
}

// New 根据 Mapping 构建 Transformer；每个源站同时识别 http 与 https 两种写法。
func New(m Mapping) *Transformer {
	t := &Transformer{
		backendOrigin:  normalize(m.BackendOrigin),
		frontendOrigin: normalize(m.FrontendOrigin),
	}
	t.backends = variants(append([]string{m.BackendOrigin}, m.BackendAliases...))
	t.frontends = variants(append([]string{m.FrontendOrigin}, m.FrontendAliases...))
	t.preserve = m.PreservePaths
	if len(t.preserve) == 0 {
		t.preserve = DefaultPreservePaths
	}

	if len(t.backends) > 0 {
		forms := make([]string, 0, len(t.backends)*2)
		for _, b := range t.backends {
			forms = append(forms, b, escapeSlashes(b))
		}
		sort.SliceStable(forms, func(i, j int) bool { return len(forms[i]) > len(forms[j]) })
		quoted := make([]string, len(forms))
		for i, f := range forms {
			quoted[i] = regexp.QuoteMeta(f)
		}
		t.backendText = regexp.MustCompile(`(?i)(` + strings.Join(quoted, "|") + `)([/?#"'\s<>)\\]|$)`)
	}
	return t
}

// FromConfig 使用站点配置构建 Transformer。
func FromConfig(site config.SiteConfig) *Transformer {
	return New(Mapping{
		BackendOrigin:   site.BackendOrigin,
		BackendAliases:  site.BackendAliases,
		FrontendOrigin:  site.PublicSiteOrigin,
		FrontendAliases: site.FrontendAliases,
	})
}

// Frontend 返回规范化后的前端源站。
func (t *Transformer) Frontend() string { return t.frontendOrigin }

// Backend 返回规范化后的后端源站。
func (t *Transformer) Backend() string { return t.backendOrigin }

// ToFrontend 把后端（或其别名）URL 改写为前端源站下的同一路径；其它 URL 原样返回。
func (t *Transformer) ToFrontend(raw string) string {
	if t.frontendOrigin == "" {
		return raw
	}
	trimmed := strings.TrimSpace(raw)
	if prefix, ok := matchPrefix(trimmed, t.backends); ok {
		return t.frontendOrigin + trimmed[len(prefix):]
	}
	return raw
}

// ToBackend 是 ToFrontend 的逆操作。
func (t *Transformer) ToBackend(raw string) string {
	if t.backendOrigin == "" {
		return raw
	}
	trimmed := strings.TrimSpace(raw)
	if _, ok := matchPrefix(trimmed, t.backends); ok {
		return raw
	}
	if prefix, ok := matchPrefix(trimmed, t.frontends); ok {
		return t.backendOrigin + trimmed[len(prefix):]
	}
	return raw
}

// IsBackend 报告 raw 是否位于后端源站或其别名之下。
func (t *Transformer) IsBackend(raw string) bool {
	_, ok := matchPrefix(strings.TrimSpace(raw), t.backends)
	return ok
}

// IsFrontend 报告 raw 是否位于前端源站或其别名之下。
func (t *Transformer) IsFrontend(raw string) bool {
	_, ok := matchPrefix(strings.TrimSpace(raw), t.frontends)
	return ok
}

// RewriteAll 改写文本中出现的全部后端 URL，用于文章正文与 JSON-LD 等文本片段。
// JSON 转义写法（https:\/\/host）按同样的转义写法替换；指向 PreservePaths 的资源地址保持不变。
func (t *Transformer) RewriteAll(text string) string {
	if t.backendText == nil || t.frontendOrigin == "" || text == "" {
		return text
	}
	matches := t.backendText.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		escaped := strings.Contains(text[start:end], `\/`)
		if t.preserved(text[end:], escaped) {
			continue
		}
		b.WriteString(text[last:start])
		if escaped {
			b.WriteString(escapeSlashes(t.frontendOrigin))
		} else {
			b.WriteString(t.frontendOrigin)
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func (t *Transformer) preserved(rest string, escaped bool) bool {
	for _, p := range t.preserve {
		if escaped {
			p = escapeSlashes(p)
		}
		if len(rest) >= len(p) && strings.EqualFold(rest[:len(p)], p) {
			return true
		}
	}
	return false
}

func matchPrefix(raw string, prefixes []string) (string, bool) {
	lower := strings.ToLower(raw)
	for _, prefix := range prefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		if len(lower) == len(prefix) || strings.ContainsRune("/?#", rune(lower[len(prefix)])) {
			return raw[:len(prefix)], true
		}
	}
	return "", false
}

// variants 生成去重后的小写前缀列表，按长度降序以便更具体的别名优先。
func variants(origins []string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, origin := range origins {
		n := strings.ToLower(normalize(origin))
		switch {
		case strings.HasPrefix(n, "https://"):
			add(n)
			add("http://" + strings.TrimPrefix(n, "https://"))
		case strings.HasPrefix(n, "http://"):
			add(n)
			add("https://" + strings.TrimPrefix(n, "http://"))
		default:
			add(n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func escapeSlashes(s string) string {
	return strings.ReplaceAll(s, "/", `\/`)
}

func normalize(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}
