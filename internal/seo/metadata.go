package seo

import "encoding/json"

// Source 标记字段来自原始标记（extracted）还是由回退规则推导（derived）。
type Source string

const (
	SourceExtracted Source = "extracted"
	SourceDerived   Source = "derived"
)

// Sources 中使用的字段名。
const (
	FieldTitle              = "title"
	FieldDescription        = "description"
	FieldKeywords           = "keywords"
	FieldFocusKeyword       = "focusKeyword"
	FieldCanonicalURL       = "canonicalUrl"
	FieldOGTitle            = "openGraph.title"
	FieldOGDescription      = "openGraph.description"
	FieldOGImage            = "openGraph.image"
	FieldOGType             = "openGraph.type"
	FieldOGURL              = "openGraph.url"
	FieldOGSiteName         = "openGraph.siteName"
	FieldTwitterTitle       = "twitter.title"
	FieldTwitterDescription = "twitter.description"
	FieldTwitterImage       = "twitter.image"
	FieldTwitterCard        = "twitter.card"
	FieldStructuredData     = "structuredData"
)

// OpenGraph 是 og:* 字段。
type OpenGraph struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Type        string `json:"type,omitempty"`
	URL         string `json:"url,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
}

// Twitter 是 twitter:* 字段。
type Twitter struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Card        string `json:"card,omitempty"`
}

// Metadata 是归一化后的页面元数据。按请求重新计算，不做持久化。
type Metadata struct {
	Title          string            `json:"title,omitempty"`
	Description    string            `json:"description,omitempty"`
	Keywords       []string          `json:"keywords"`
	FocusKeyword   string            `json:"focusKeyword,omitempty"`
	CanonicalURL   string            `json:"canonicalUrl,omitempty"`
	OpenGraph      OpenGraph         `json:"openGraph"`
	Twitter        Twitter           `json:"twitter"`
	StructuredData []json.RawMessage `json:"structuredData"`
	Sources        map[string]Source `json:"sources"`
	// Fallback 为 true 表示 SEO 接口不可用，内容由本地回退逻辑生成。
	Fallback bool `json:"fallback,omitempty"`
}

// Empty 返回全部字段为空的 Metadata；切片与 map 非 nil，便于 JSON 输出稳定。
func Empty() Metadata {
	return Metadata{
		Keywords:       []string{},
		StructuredData: []json.RawMessage{},
		Sources:        map[string]Source{},
	}
}

// IsEmpty 报告是否没有任何可用字段。
func (m Metadata) IsEmpty() bool {
	return m.Title == "" && m.Description == "" && m.CanonicalURL == "" &&
		m.FocusKeyword == "" && len(m.Keywords) == 0 && len(m.StructuredData) == 0 &&
		m.OpenGraph == (OpenGraph{}) && m.Twitter == (Twitter{})
}

// Image 返回首选图片（Open Graph 优先）。
func (m Metadata) Image() string {
	if m.OpenGraph.Image != "" {
		return m.OpenGraph.Image
	}
	return m.Twitter.Image
}

func (m *Metadata) mark(field string, src Source) {
	if m.Sources == nil {
		m.Sources = map[string]Source{}
	}
	m.Sources[field] = src
}
