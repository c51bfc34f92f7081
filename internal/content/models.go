package content

import "strings"

// Rendered 是 WordPress REST 中 {"rendered": "..."} 形式的字段。
type Rendered struct {
	Rendered string `json:"rendered"`
}

// Post 是站点实际使用的文章字段子集。
type Post struct {
	ID            int       `json:"id"`
	Date          string    `json:"date"`
	Modified      string    `json:"modified"`
	Slug          string    `json:"slug"`
	Status        string    `json:"status,omitempty"`
	Link          string    `json:"link"`
	Title         Rendered  `json:"title"`
	Content       Rendered  `json:"content"`
	Excerpt       Rendered  `json:"excerpt"`
	Author        int       `json:"author"`
	FeaturedMedia int       `json:"featured_media"`
	Sticky        bool      `json:"sticky"`
	Categories    []int     `json:"categories"`
	Tags          []int     `json:"tags"`
	Embedded      *Embedded `json:"_embedded,omitempty"`
}

// Embedded 对应 _embed=1 时附带的关联实体。
type Embedded struct {
	Author        []Author `json:"author,omitempty"`
	FeaturedMedia []Media  `json:"wp:featuredmedia,omitempty"`
	Terms         [][]Term `json:"wp:term,omitempty"`
}

// Author 是嵌入的作者信息。
type Author struct {
	ID         int               `json:"id"`
	Name       string            `json:"name"`
	Slug       string            `json:"slug"`
	Link       string            `json:"link"`
	AvatarURLs map[string]string `json:"avatar_urls,omitempty"`
}

// Media 是嵌入的特色图片。
type Media struct {
	ID           int          `json:"id"`
	SourceURL    string       `json:"source_url"`
	AltText      string       `json:"alt_text"`
	MediaDetails MediaDetails `json:"media_details"`
}

// MediaDetails 只保留尺寸。
type MediaDetails struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Term 表示分类或标签。
type Term struct {
	ID          int    `json:"id"`
	Count       int    `json:"count,omitempty"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Taxonomy    string `json:"taxonomy"`
	Link        string `json:"link"`
	Description string `json:"description,omitempty"`
	Parent      int    `json:"parent,omitempty"`
}

// Page 是静态页面。
type Page struct {
	ID        int      `json:"id"`
	Slug      string   `json:"slug"`
	Link      string   `json:"link"`
	Modified  string   `json:"modified"`
	Parent    int      `json:"parent"`
	MenuOrder int      `json:"menu_order"`
	Title     Rendered `json:"title"`
	Content   Rendered `json:"content"`
	Excerpt   Rendered `json:"excerpt"`
}

// Homepage 是首页所需数据的聚合；Degraded 列出获取失败而降级为空的部分。
type Homepage struct {
	Latest     []Post   `json:"latest"`
	Featured   []Post   `json:"featured"`
	Categories []Term   `json:"categories"`
	Degraded   []string `json:"degraded,omitempty"`
}

// FeaturedImage 返回嵌入的特色图片地址，没有时为空。
func (p Post) FeaturedImage() string {
	if p.Embedded == nil {
		return ""
	}
	for _, m := range p.Embedded.FeaturedMedia {
		if m.SourceURL != "" {
			return m.SourceURL
		}
	}
	return ""
}

// AuthorName 返回嵌入的作者名。
func (p Post) AuthorName() string {
	if p.Embedded == nil || len(p.Embedded.Author) == 0 {
		return ""
	}
	return p.Embedded.Author[0].Name
}

// Terms 返回指定 taxonomy（category、post_tag）的嵌入条目。
func (p Post) Terms(taxonomy string) []Term {
	if p.Embedded == nil {
		return nil
	}
	var out []Term
	for _, group := range p.Embedded.Terms {
		for _, t := range group {
			if strings.EqualFold(t.Taxonomy, taxonomy) {
				out = append(out, t)
			}
		}
	}
	return out
}
