// Package content is the typed WordPress REST client used by the page routes.
// Every call goes through the shared fetcher, so results are cached per
// namespace and survive primary-origin outages through the fallback origin.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/cache"
	"github.com/wpedge/wpedge/internal/domainmap"
	"github.com/wpedge/wpedge/internal/fetcher"
	"github.com/wpedge/wpedge/internal/logging"
)

// ErrNotFound 表示按 slug 查询的内容不存在。
var ErrNotFound = errors.New("content not found")

const (
	apiPrefix       = "wp-json/wp/v2/"
	defaultPerPage  = 10
	maxPerPage      = 100
	homepageLatest  = 6
	homepageFeature = 3
)

// ListOptions 是文章列表的查询参数。
type ListOptions struct {
	Page     int
	PerPage  int
	Category int
	Tag      int
	Search   string
	Embed    bool
}

func (o ListOptions) params() url.Values {
	params := url.Values{}
	page := o.Page
	if page < 1 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(clampPerPage(o.PerPage)))
	if o.Category > 0 {
		params.Set("categories", strconv.Itoa(o.Category))
	}
	if o.Tag > 0 {
		params.Set("tags", strconv.Itoa(o.Tag))
	}
	if s := strings.TrimSpace(o.Search); s != "" {
		params.Set("search", s)
	}
	if o.Embed {
		params.Set("_embed", "1")
	}
	return params
}

// Client 封装 WordPress REST 资源。
type Client struct {
	fetcher *fetcher.Fetcher
	domain  *domainmap.Transformer
	logger  *logrus.Logger
}

// NewClient 构建内容客户端；domain 为 nil 时不改写链接。
func NewClient(f *fetcher.Fetcher, domain *domainmap.Transformer, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{fetcher: f, domain: domain, logger: logger}
}

// Posts 返回文章列表；带搜索词时使用 search 命名空间。
func (c *Client) Posts(ctx context.Context, opts ListOptions) ([]Post, error) {
	namespace := "posts"
	if strings.TrimSpace(opts.Search) != "" {
		namespace = "search"
	}
	return c.posts(ctx, namespace, opts.params())
}

// PostBySlug 返回单篇文章，不存在时返回 ErrNotFound。
func (c *Client) PostBySlug(ctx context.Context, slug string) (*Post, error) {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" {
		return nil, ErrNotFound
	}
	params := url.Values{}
	params.Set("slug", slug)
	params.Set("_embed", "1")

	posts, err := c.posts(ctx, "posts", params)
	if err != nil {
		if fetcher.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return &posts[0], nil
}

// Categories 返回全部非空分类。
func (c *Client) Categories(ctx context.Context) ([]Term, error) {
	return c.terms(ctx, "categories")
}

// Tags 返回全部非空标签。
func (c *Client) Tags(ctx context.Context) ([]Term, error) {
	return c.terms(ctx, "tags")
}

// Pages 返回页面列表；slug 非空时只查询该页面。
func (c *Client) Pages(ctx context.Context, slug string) ([]Page, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(maxPerPage))
	if slug = strings.Trim(strings.TrimSpace(slug), "/"); slug != "" {
		params.Set("slug", slug)
	}

	var pages []Page
	err := c.fetcher.FetchInto(ctx, fetcher.Request{
		Namespace: "pages",
		Path:      apiPrefix + "pages",
		Params:    params,
	}, &pages)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		pages[i].Link = c.frontend(pages[i].Link)
		pages[i].Content.Rendered = c.rewrite(pages[i].Content.Rendered)
		pages[i].Excerpt.Rendered = c.rewrite(pages[i].Excerpt.Rendered)
	}
	return pages, nil
}

// Popular 按评论数倒序返回 n 篇文章。
func (c *Client) Popular(ctx context.Context, n int) ([]Post, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(clampPerPage(n)))
	params.Set("orderby", "comment_count")
	params.Set("order", "desc")
	params.Set("_embed", "1")
	return c.posts(ctx, "popular", params)
}

// Featured 返回置顶文章。
func (c *Client) Featured(ctx context.Context, n int) ([]Post, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(clampPerPage(n)))
	params.Set("sticky", "true")
	params.Set("_embed", "1")
	return c.posts(ctx, "featured", params)
}

// Homepage 聚合首页数据。任一部分失败只会降级为空列表并记录在 Degraded 中；
// 只有完整的聚合结果才会写入 homepage 命名空间。
func (c *Client) Homepage(ctx context.Context) (Homepage, error) {
	key := cache.BuildKey("homepage", "", nil)
	svc := c.fetcher.Cache()
	if svc != nil {
		var cached Homepage
		if hit, ok := svc.Load(ctx, key); ok && json.Unmarshal(hit.Value, &cached) == nil {
			return cached, nil
		}
	}

	home := Homepage{Latest: []Post{}, Featured: []Post{}, Categories: []Term{}}
	degrade := func(part string, err error) {
		home.Degraded = append(home.Degraded, part)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "homepage",
			"part":   part,
		}).Warn("homepage_part_degraded")
	}

	if posts, err := c.Posts(ctx, ListOptions{Page: 1, PerPage: homepageLatest, Embed: true}); err != nil {
		degrade("latest", err)
	} else {
		home.Latest = posts
	}
	if posts, err := c.Featured(ctx, homepageFeature); err != nil {
		degrade("featured", err)
	} else {
		home.Featured = posts
	}
	if terms, err := c.Categories(ctx); err != nil {
		degrade("categories", err)
	} else {
		home.Categories = terms
	}

	if ctx.Err() != nil {
		return home, ctx.Err()
	}
	if len(home.Degraded) == 0 && svc != nil {
		if data, err := json.Marshal(home); err == nil {
			svc.Store(ctx, key, data, 0)
		}
	}
	return home, nil
}

func (c *Client) posts(ctx context.Context, namespace string, params url.Values) ([]Post, error) {
	var posts []Post
	err := c.fetcher.FetchInto(ctx, fetcher.Request{
		Namespace: namespace,
		Path:      apiPrefix + "posts",
		Params:    params,
	}, &posts)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	for i := range posts {
		c.localizePost(&posts[i])
	}
	return posts, nil
}

func (c *Client) terms(ctx context.Context, resource string) ([]Term, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(maxPerPage))
	params.Set("hide_empty", "true")

	var terms []Term
	err := c.fetcher.FetchInto(ctx, fetcher.Request{
		Namespace: resource,
		Path:      apiPrefix + resource,
		Params:    params,
	}, &terms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resource, err)
	}
	if terms == nil {
		terms = []Term{}
	}
	for i := range terms {
		terms[i].Link = c.frontend(terms[i].Link)
	}
	return terms, nil
}

func (c *Client) localizePost(p *Post) {
	p.Link = c.frontend(p.Link)
	p.Content.Rendered = c.rewrite(p.Content.Rendered)
	p.Excerpt.Rendered = c.rewrite(p.Excerpt.Rendered)
	if p.Embedded == nil {
		return
	}
	for i := range p.Embedded.Author {
		p.Embedded.Author[i].Link = c.frontend(p.Embedded.Author[i].Link)
	}
	for _, group := range p.Embedded.Terms {
		for i := range group {
			group[i].Link = c.frontend(group[i].Link)
		}
	}
}

func (c *Client) frontend(link string) string {
	if c.domain == nil {
		return link
	}
	return c.domain.ToFrontend(link)
}

func (c *Client) rewrite(text string) string {
	if c.domain == nil {
		return text
	}
	return c.domain.RewriteAll(text)
}

func clampPerPage(n int) int {
	switch {
	case n <= 0:
		return defaultPerPage
	case n > maxPerPage:
		return maxPerPage
	default:
		return n
	}
}
