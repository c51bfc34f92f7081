// Package seo turns the raw <head> fragment returned by the SEO plugin API
// into normalized page metadata.
//
// Parsing is regex based and deliberately shallow: <title>, <meta>, <link> and
// <script> tags are located with patterns and their attributes read in any
// order. Fields missing from the markup are filled from fallbacks in a fixed
// priority order, and every field records in Sources whether it was extracted
// verbatim or derived. Malformed input never fails; it only leaves fields
// empty.
package seo

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"github.com/wpedge/wpedge/internal/domainmap"
)

// Extractor 把 head 片段解析为 Metadata。实现不得 panic，也不返回错误。
type Extractor interface {
	Extract(head string) Metadata
}

// APIResponse 是 SEO 接口 GET {origin}?url= 的响应。
type APIResponse struct {
	Success bool   `json:"success"`
	Head    string `json:"head"`
	Error   string `json:"error,omitempty"`
}

// tagBody 匹配标签内的一个字符或一段完整的引号值，引号内的 '>' 不会提前结束标签。
const tagBody = `(?:[^>"']|"[^"]*"|'[^']*')`

var (
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title\s*>`)
	metaPattern   = regexp.MustCompile(`(?is)<meta\s` + tagBody + `*>`)
	linkPattern   = regexp.MustCompile(`(?is)<link\s` + tagBody + `*>`)
	scriptPattern = regexp.MustCompile(`(?is)<script(` + tagBody + `*)>(.*?)</script\s*>`)
	attrPattern   = regexp.MustCompile(`(?s)([a-zA-Z_:][-a-zA-Z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
	focusPattern  = regexp.MustCompile(`"(?:focus_keyword|focusKeyword|focuskw)"\s*:\s*"((?:[^"\\]|\\.)+)"`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// focusMetaNames 是各 SEO 插件输出焦点关键词时使用的 meta name。
var focusMetaNames = []string{
	"focus_keyword",
	"focus-keyword",
	"rank_math_focus_keyword",
	"focuskw",
	"yoast_wpseo_focuskw",
}

// RegexExtractor 是基于正则的 Extractor。canonical 与 og:url 通过 Transformer 改写到前端域名。
type RegexExtractor struct {
	domain   *domainmap.Transformer
	siteName string
}

// NewRegexExtractor 构建解析器；domain 为 nil 时不改写 URL。
func NewRegexExtractor(domain *domainmap.Transformer, siteName string) *RegexExtractor {
	return &RegexExtractor{domain: domain, siteName: siteName}
}

// head 是一次扫描得到的原始标记。
type head struct {
	title   string
	names   map[string]string
	props   map[string]string
	links   map[string]string
	ldJSON  []string
	scripts string
}

func scan(fragment string) head {
	h := head{
		names: map[string]string{},
		props: map[string]string{},
		links: map[string]string{},
	}

	if m := titlePattern.FindStringSubmatch(fragment); m != nil {
		h.title = clean(m[1])
	}

	for _, tag := range metaPattern.FindAllString(fragment, -1) {
		attrs := parseAttrs(tag)
		content, ok := attrs["content"]
		if !ok {
			continue
		}
		content = clean(content)
		if content == "" {
			continue
		}
		if name := strings.ToLower(attrs["name"]); name != "" {
			if _, seen := h.names[name]; !seen {
				h.names[name] = content
			}
		}
		if prop := strings.ToLower(attrs["property"]); prop != "" {
			if _, seen := h.props[prop]; !seen {
				h.props[prop] = content
			}
		}
	}

	for _, tag := range linkPattern.FindAllString(fragment, -1) {
		attrs := parseAttrs(tag)
		href := clean(attrs["href"])
		if href == "" {
			continue
		}
		for _, rel := range strings.Fields(strings.ToLower(attrs["rel"])) {
			if _, seen := h.links[rel]; !seen {
				h.links[rel] = href
			}
		}
	}

	var inline strings.Builder
	for _, m := range scriptPattern.FindAllStringSubmatch(fragment, -1) {
		attrs := parseAttrs("<script " + m[1] + ">")
		if strings.Contains(strings.ToLower(attrs["type"]), "ld+json") {
			h.ldJSON = append(h.ldJSON, m[2])
			continue
		}
		inline.WriteString(m[2])
		inline.WriteByte('\n')
	}
	h.scripts = inline.String()
	return h
}

func parseAttrs(tag string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrPattern.FindAllStringSubmatch(tag, -1) {
		name := strings.ToLower(m[1])
		if _, seen := attrs[name]; seen {
			continue
		}
		attrs[name] = m[2] + m[3] + m[4]
	}
	return attrs
}

func clean(s string) string {
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// meta 依次查找 name 与 property 形式的同名标签。
func (h head) meta(key string) string {
	if v := h.names[key]; v != "" {
		return v
	}
	return h.props[key]
}

// Extract implements Extractor.
func (e *RegexExtractor) Extract(fragment string) Metadata {
	md := Empty()
	if strings.TrimSpace(fragment) == "" {
		return md
	}
	h := scan(fragment)

	md.StructuredData = e.structuredData(h.ldJSON)
	if len(md.StructuredData) > 0 {
		md.mark(FieldStructuredData, SourceExtracted)
	}

	md.Title = firstNonEmpty(h.title, h.names["title"], h.meta("og:title"), h.meta("twitter:title"))
	if md.Title != "" {
		md.mark(FieldTitle, SourceExtracted)
	}

	md.Description = firstNonEmpty(h.names["description"], h.meta("og:description"))
	if md.Description != "" {
		md.mark(FieldDescription, SourceExtracted)
	}

	if canonical := h.links["canonical"]; canonical != "" {
		md.CanonicalURL = e.frontend(canonical)
		md.mark(FieldCanonicalURL, SourceExtracted)
	}

	e.focusKeyword(&md, h)
	e.keywords(&md, h)
	e.social(&md, h)
	return md
}

func (e *RegexExtractor) focusKeyword(md *Metadata, h head) {
	for _, name := range focusMetaNames {
		if v := h.meta(name); v != "" {
			md.FocusKeyword = firstKeyword(v)
			md.mark(FieldFocusKeyword, SourceExtracted)
			return
		}
	}
	if m := focusPattern.FindStringSubmatch(h.scripts); m != nil {
		var v string
		if json.Unmarshal([]byte(`"`+m[1]+`"`), &v) != nil {
			v = m[1]
		}
		if v = firstKeyword(clean(v)); v != "" {
			md.FocusKeyword = v
			md.mark(FieldFocusKeyword, SourceExtracted)
			return
		}
	}
	for _, block := range md.StructuredData {
		if v := structuredKeyword(block); v != "" {
			md.FocusKeyword = v
			md.mark(FieldFocusKeyword, SourceExtracted)
			return
		}
	}
	if v := deriveFocusKeyword(md.Title, md.Description); v != "" {
		md.FocusKeyword = v
		md.mark(FieldFocusKeyword, SourceDerived)
	}
}

func (e *RegexExtractor) keywords(md *Metadata, h head) {
	if explicit := splitKeywords(h.names["keywords"]); len(explicit) > 0 {
		md.Keywords = explicit
		md.mark(FieldKeywords, SourceExtracted)
		return
	}
	if synth := synthesizeKeywords(md.FocusKeyword, md.Title, md.Description); len(synth) > 0 {
		md.Keywords = synth
		md.mark(FieldKeywords, SourceDerived)
	}
}

func (e *RegexExtractor) social(md *Metadata, h head) {
	og := &md.OpenGraph
	tw := &md.Twitter

	set := func(dst *string, field, extracted, derived string) {
		switch {
		case extracted != "":
			*dst = extracted
			md.mark(field, SourceExtracted)
		case derived != "":
			*dst = derived
			md.mark(field, SourceDerived)
		}
	}

	image := firstNonEmpty(
		h.meta("og:image"),
		h.meta("og:image:url"),
		h.meta("twitter:image"),
		h.meta("twitter:image:src"),
		h.names["image"],
		h.links["image_src"],
	)

	set(&og.Title, FieldOGTitle, h.meta("og:title"), md.Title)
	set(&og.Description, FieldOGDescription, h.meta("og:description"), md.Description)
	set(&og.Image, FieldOGImage, firstNonEmpty(h.meta("og:image"), h.meta("og:image:url")), image)
	set(&og.URL, FieldOGURL, e.frontend(h.meta("og:url")), md.CanonicalURL)

	set(&tw.Title, FieldTwitterTitle, h.meta("twitter:title"), md.Title)
	set(&tw.Description, FieldTwitterDescription, h.meta("twitter:description"), md.Description)
	set(&tw.Image, FieldTwitterImage, firstNonEmpty(h.meta("twitter:image"), h.meta("twitter:image:src")), image)

	siteName, ogType, card := "", "", ""
	if md.Title != "" || md.Description != "" || md.CanonicalURL != "" || image != "" {
		siteName = e.siteName
		ogType = "article"
		card = "summary"
		if image != "" {
			card = "summary_large_image"
		}
	}
	set(&og.SiteName, FieldOGSiteName, h.meta("og:site_name"), siteName)
	set(&og.Type, FieldOGType, h.meta("og:type"), ogType)
	set(&tw.Card, FieldTwitterCard, h.meta("twitter:card"), card)
}

// structuredData 逐块解析 JSON-LD；无法解析的块被跳过。
func (e *RegexExtractor) structuredData(blocks []string) []json.RawMessage {
	out := []json.RawMessage{}
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		block = strings.TrimSuffix(strings.TrimPrefix(block, "<!--"), "-->")
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if e.domain != nil {
			block = e.domain.RewriteAll(block)
		}
		if !json.Valid([]byte(block)) {
			continue
		}
		out = append(out, json.RawMessage(block))
	}
	return out
}

// structuredKeyword 在 JSON-LD 中查找 keywords：数组取首元素，字符串取第一个逗号分隔项。
func structuredKeyword(block json.RawMessage) string {
	var doc any
	if json.Unmarshal(block, &doc) != nil {
		return ""
	}
	return findKeyword(doc)
}

func findKeyword(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if kw, ok := v["keywords"]; ok {
			switch k := kw.(type) {
			case string:
				if first := firstKeyword(k); first != "" {
					return first
				}
			case []any:
				for _, item := range k {
					if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
						return strings.TrimSpace(s)
					}
				}
			}
		}
		for _, key := range []string{"@graph", "mainEntity", "mainEntityOfPage"} {
			if child, ok := v[key]; ok {
				if found := findKeyword(child); found != "" {
					return found
				}
			}
		}
	case []any:
		for _, item := range v {
			if found := findKeyword(item); found != "" {
				return found
			}
		}
	}
	return ""
}

func (e *RegexExtractor) frontend(u string) string {
	if e.domain == nil || u == "" {
		return u
	}
	return e.domain.ToFrontend(u)
}

func firstKeyword(s string) string {
	first, _, _ := strings.Cut(s, ",")
	return strings.TrimSpace(first)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
