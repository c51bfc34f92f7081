package seo

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/wpedge/wpedge/internal/content"
	"github.com/wpedge/wpedge/internal/domainmap"
)

const maxDescriptionRunes = 160

// FromPost 在 SEO 接口不可用时由文章本身生成元数据，所有字段都标记为 derived。
func FromPost(post content.Post, domain *domainmap.Transformer, siteName string) Metadata {
	md := Empty()
	md.Fallback = true

	derive := func(dst *string, field, value string) {
		if value == "" {
			return
		}
		*dst = value
		md.mark(field, SourceDerived)
	}

	title := plainText(post.Title.Rendered)
	description := strings.TrimSpace(strings.TrimSuffix(plainText(post.Excerpt.Rendered), "[…]"))
	description = truncate(description, maxDescriptionRunes)
	if description == "" {
		description = truncate(plainText(post.Content.Rendered), maxDescriptionRunes)
	}
	canonical := post.Link
	if domain != nil {
		canonical = domain.ToFrontend(canonical)
	}
	image := post.FeaturedImage()

	derive(&md.Title, FieldTitle, title)
	derive(&md.Description, FieldDescription, description)
	derive(&md.CanonicalURL, FieldCanonicalURL, canonical)
	derive(&md.FocusKeyword, FieldFocusKeyword, deriveFocusKeyword(title, description))
	if kw := synthesizeKeywords(md.FocusKeyword, title, description); len(kw) > 0 {
		md.Keywords = kw
		md.mark(FieldKeywords, SourceDerived)
	}

	if md.IsEmpty() && image == "" {
		return md
	}

	derive(&md.OpenGraph.Title, FieldOGTitle, title)
	derive(&md.OpenGraph.Description, FieldOGDescription, description)
	derive(&md.OpenGraph.Image, FieldOGImage, image)
	derive(&md.OpenGraph.URL, FieldOGURL, canonical)
	derive(&md.OpenGraph.SiteName, FieldOGSiteName, siteName)
	derive(&md.OpenGraph.Type, FieldOGType, "article")

	derive(&md.Twitter.Title, FieldTwitterTitle, title)
	derive(&md.Twitter.Description, FieldTwitterDescription, description)
	derive(&md.Twitter.Image, FieldTwitterImage, image)
	card := "summary"
	if image != "" {
		card = "summary_large_image"
	}
	derive(&md.Twitter.Card, FieldTwitterCard, card)
	return md
}

// plainText 去掉 HTML 标签并解码实体，连续空白压缩为一个空格。
func plainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return clean(fragment)
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// truncate 在词边界截断到最多 limit 个字符，截断时追加省略号。
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
