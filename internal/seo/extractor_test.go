package seo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpedge/wpedge/internal/domainmap"
)

const rankMathHead = `
<title>Cara Setup VPS WordPress Terbaik &amp; Aman - Example</title>
<meta name="description" content="Panduan setup VPS untuk WordPress dengan Nginx."/>
<meta name="robots" content="follow, index"/>
<link rel="canonical" href="https://backend.example.com/setup-vps/" />
<meta property="og:locale" content="id_ID" />
<meta property="og:type" content="article" />
<meta property="og:title" content="Setup VPS WordPress" />
<meta content="https://backend.example.com/wp-content/uploads/cover.png" property="og:image" />
<meta property="og:url" content="https://backend.example.com/setup-vps/" />
<meta name="twitter:card" content="summary_large_image" />
<script type="application/ld+json" class="rank-math-schema">{"@context":"https://schema.org","@graph":[{"@type":"WebPage","@id":"https://backend.example.com/setup-vps/#webpage","url":"https://backend.example.com/setup-vps/","keywords":"vps wordpress,nginx"}]}</script>
`

func newTestExtractor() *RegexExtractor {
	tr := domainmap.New(domainmap.Mapping{
		BackendOrigin:  "https://backend.example.com",
		FrontendOrigin: "https://example.com",
	})
	return NewRegexExtractor(tr, "Example")
}

func TestExtractRankMathHead(t *testing.T) {
	md := newTestExtractor().Extract(rankMathHead)

	assert.Equal(t, "Cara Setup VPS WordPress Terbaik & Aman - Example", md.Title)
	assert.Equal(t, "Panduan setup VPS untuk WordPress dengan Nginx.", md.Description)
	assert.Equal(t, "https://example.com/setup-vps/", md.CanonicalURL)
	assert.Equal(t, "vps wordpress", md.FocusKeyword)
	assert.Equal(t, SourceExtracted, md.Sources[FieldFocusKeyword])

	assert.Equal(t, "Setup VPS WordPress", md.OpenGraph.Title)
	assert.Equal(t, SourceExtracted, md.Sources[FieldOGTitle])
	assert.Equal(t, "article", md.OpenGraph.Type)
	assert.Equal(t, "https://example.com/setup-vps/", md.OpenGraph.URL)
	assert.Equal(t, "https://backend.example.com/wp-content/uploads/cover.png", md.OpenGraph.Image)

	assert.Equal(t, md.OpenGraph.Image, md.Twitter.Image)
	assert.Equal(t, SourceDerived, md.Sources[FieldTwitterImage])
	assert.Equal(t, md.Title, md.Twitter.Title)
	assert.Equal(t, SourceDerived, md.Sources[FieldTwitterTitle])
	assert.Equal(t, "summary_large_image", md.Twitter.Card)
	assert.Equal(t, SourceExtracted, md.Sources[FieldTwitterCard])
	assert.Equal(t, "Example", md.OpenGraph.SiteName)

	require.Len(t, md.StructuredData, 1)
	assert.Contains(t, string(md.StructuredData[0]), `"url":"https://example.com/setup-vps/"`)
}

func TestExtractIsIdempotent(t *testing.T) {
	e := newTestExtractor()
	assert.Equal(t, e.Extract(rankMathHead), e.Extract(rankMathHead))
}

func TestExtractEmptyAndMalformedInput(t *testing.T) {
	e := newTestExtractor()
	for _, input := range []string{"", "   ", "<<<>>>", "<meta content=>", `<script type="application/ld+json">{bad</script>`} {
		md := e.Extract(input)
		assert.True(t, md.IsEmpty(), "input %q", input)
		assert.NotNil(t, md.Keywords)
		assert.NotNil(t, md.StructuredData)
		assert.Empty(t, md.Sources, "input %q", input)
	}
}

func TestTitleDerivationOrder(t *testing.T) {
	e := newTestExtractor()
	cases := []struct {
		name string
		head string
		want string
	}{
		{"title tag wins", `<title>T</title><meta name="title" content="M"><meta property="og:title" content="O">`, "T"},
		{"meta title", `<meta name="title" content="M"><meta property="og:title" content="O">`, "M"},
		{"og title only", `<meta property="og:title" content="OG Only Title">`, "OG Only Title"},
		{"twitter title", `<meta name="twitter:title" content="Tw">`, "Tw"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.Extract(tc.head).Title)
		})
	}
}

func TestDescriptionFallsBackToOpenGraph(t *testing.T) {
	md := newTestExtractor().Extract(`<meta property="og:description" content="From OG">`)
	assert.Equal(t, "From OG", md.Description)
	assert.Equal(t, "From OG", md.Twitter.Description)
	assert.Equal(t, SourceDerived, md.Sources[FieldTwitterDescription])
}

func TestMetaAttributeOrderAndQuoting(t *testing.T) {
	md := newTestExtractor().Extract(`<meta content='Reverse order' name='description'><meta content="Reverse OG" property="og:title">`)
	assert.Equal(t, "Reverse order", md.Description)
	assert.Equal(t, "Reverse OG", md.Title)
}

func TestQuotedAngleBracketKeepsTagIntact(t *testing.T) {
	md := newTestExtractor().Extract(`<meta name="description" content="a > b is the description">` +
		`<link title='x > y' rel="canonical" href="https://backend.example.com/cmp/">` +
		`<script data-note="1 > 0" type="application/ld+json">{"@type":"Article"}</script>`)
	assert.Equal(t, "a > b is the description", md.Description)
	assert.Equal(t, "https://example.com/cmp/", md.CanonicalURL)
	require.Len(t, md.StructuredData, 1)
}

func TestCanonicalRewriteLeavesFrontendAlone(t *testing.T) {
	e := newTestExtractor()
	md := e.Extract(`<title>x</title><link rel="canonical" href="https://backend.example.com/post-a/">`)
	assert.Equal(t, "https://example.com/post-a/", md.CanonicalURL)
	assert.Equal(t, md.CanonicalURL, md.OpenGraph.URL)
	assert.Equal(t, SourceDerived, md.Sources[FieldOGURL])

	md = e.Extract(`<title>x</title><link href="https://example.com/post-b/" rel="canonical">`)
	assert.Equal(t, "https://example.com/post-b/", md.CanonicalURL)
}

func TestFocusKeywordSources(t *testing.T) {
	e := newTestExtractor()
	cases := []struct {
		name   string
		head   string
		want   string
		source Source
	}{
		{"meta rank math", `<meta name="rank_math_focus_keyword" content="hosting murah,vps">`, "hosting murah", SourceExtracted},
		{"meta yoast", `<meta name="yoast_wpseo_focuskw" content="domain">`, "domain", SourceExtracted},
		{"inline script", `<title>Judul Artikel</title><script>var rm = {"focusKeyword":"cloud server"};</script>`, "cloud server", SourceExtracted},
		{"structured data array", `<title>Judul</title><script type="application/ld+json">{"@type":"Article","keywords":["email bisnis","domain"]}</script>`, "email bisnis", SourceExtracted},
		{"structured data string", `<title>Judul</title><script type="application/ld+json">{"@graph":[{"keywords":"ssl gratis, https"}]}</script>`, "ssl gratis", SourceExtracted},
		{"title derived", `<title>Cara Setup VPS WordPress Terbaik</title>`, "setup vps wordpress", SourceDerived},
		{"description derived", `<meta name="description" content="Hosting cloud untuk bisnis kecil">`, "hosting cloud", SourceDerived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			md := e.Extract(tc.head)
			assert.Equal(t, tc.want, md.FocusKeyword)
			assert.Equal(t, tc.source, md.Sources[FieldFocusKeyword])
		})
	}
}

func TestSynthesizedKeywordsDropStopwords(t *testing.T) {
	md := newTestExtractor().Extract(`<title>Cara Setup VPS WordPress Terbaik</title>`)
	assert.Equal(t, SourceDerived, md.Sources[FieldKeywords])
	for _, stop := range []string{"cara", "untuk", "terbaik"} {
		assert.NotContains(t, md.Keywords, stop)
	}
	for _, word := range []string{"setup", "vps", "wordpress"} {
		assert.Contains(t, md.Keywords, word)
	}
	assert.LessOrEqual(t, len(md.Keywords), maxKeywords)
}

func TestSynthesizedKeywordsCap(t *testing.T) {
	md := newTestExtractor().Extract(`<title>alpha bravo charlie delta echo foxtrot golf</title><meta name="description" content="hotel india juliet kilo lima">`)
	assert.Len(t, md.Keywords, maxKeywords)
	assert.Equal(t, "alpha bravo charlie", md.Keywords[0])
	assert.NotContains(t, md.Keywords, "foxtrot", "only five title tokens are used")
	assert.Contains(t, md.Keywords, "hotel")
}

func TestExplicitKeywordsWin(t *testing.T) {
	md := newTestExtractor().Extract(`<title>Hosting</title><meta name="keywords" content=" hosting , domain,, Hosting ">`)
	assert.Equal(t, []string{"hosting", "domain"}, md.Keywords)
	assert.Equal(t, SourceExtracted, md.Sources[FieldKeywords])
}

func TestImageFallbackOrder(t *testing.T) {
	e := newTestExtractor()

	md := e.Extract(`<title>x</title><meta name="twitter:image" content="https://cdn.example.com/tw.png">`)
	assert.Equal(t, "https://cdn.example.com/tw.png", md.OpenGraph.Image)
	assert.Equal(t, SourceDerived, md.Sources[FieldOGImage])
	assert.Equal(t, SourceExtracted, md.Sources[FieldTwitterImage])

	md = e.Extract(`<title>x</title><meta name="image" content="https://cdn.example.com/generic.png">`)
	assert.Equal(t, "https://cdn.example.com/generic.png", md.OpenGraph.Image)
	assert.Equal(t, "https://cdn.example.com/generic.png", md.Twitter.Image)

	md = e.Extract(`<title>x</title><link rel="image_src" href="https://cdn.example.com/link.png">`)
	assert.Equal(t, "https://cdn.example.com/link.png", md.Image())
	assert.Equal(t, "summary_large_image", md.Twitter.Card)
	assert.Equal(t, SourceDerived, md.Sources[FieldTwitterCard])

	md = e.Extract(`<title>x</title>`)
	assert.Empty(t, md.Image())
	assert.Equal(t, "summary", md.Twitter.Card)
}

func TestStructuredDataSkipsBadBlocks(t *testing.T) {
	md := newTestExtractor().Extract(`
<script type="application/ld+json">{"@type":"Organization"}</script>
<script type="application/ld+json">{not json}</script>
<script type="application/ld+json"><!-- {"@type":"WebSite"} --></script>
<script>{"@type":"Ignored"}</script>`)
	require.Len(t, md.StructuredData, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(md.StructuredData[0], &first))
	assert.Equal(t, "Organization", first["@type"])
	assert.Equal(t, SourceExtracted, md.Sources[FieldStructuredData])
}

func TestStructuredDataRewritesEscapedBackendURLs(t *testing.T) {
	md := newTestExtractor().Extract(`<script type="application/ld+json">{"@type":"WebPage","url":"https:\/\/backend.example.com\/post-a\/"}</script>`)
	require.Len(t, md.StructuredData, 1)

	var block map[string]any
	require.NoError(t, json.Unmarshal(md.StructuredData[0], &block))
	assert.Equal(t, "https://example.com/post-a/", block["url"])
}

func TestNilTransformerKeepsURLs(t *testing.T) {
	md := NewRegexExtractor(nil, "").Extract(`<link rel="canonical" href="https://backend.example.com/a/">`)
	assert.Equal(t, "https://backend.example.com/a/", md.CanonicalURL)
	assert.Empty(t, md.OpenGraph.SiteName)
}
