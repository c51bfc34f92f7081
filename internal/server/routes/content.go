package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/content"
	"github.com/wpedge/wpedge/internal/server"
)

const defaultListLimit = 6

// RegisterContentRoutes 暴露 /api/content/*。上游失败时列表接口返回空数组并带上 DegradedHeader。
func RegisterContentRoutes(app *fiber.App, deps Deps) {
	if deps.Content == nil {
		return
	}
	h := contentHandler{client: deps.Content, logger: deps.Logger}

	group := app.Group("/api/content")
	group.Get("/posts", h.posts)
	group.Get("/posts/:slug", h.post)
	group.Get("/categories", h.categories)
	group.Get("/tags", h.tags)
	group.Get("/pages", h.pages)
	group.Get("/popular", h.popular)
	group.Get("/featured", h.featured)
	group.Get("/homepage", h.homepage)
}

type contentHandler struct {
	client *content.Client
	logger *logrus.Logger
}

func (h contentHandler) posts(c fiber.Ctx) error {
	opts := content.ListOptions{
		Page:     queryInt(c, "page", 1),
		PerPage:  queryInt(c, "per_page", 0),
		Category: queryInt(c, "category", 0),
		Tag:      queryInt(c, "tag", 0),
		Search:   c.Query("search"),
		Embed:    true,
	}
	posts, err := h.client.Posts(c.Context(), opts)
	if err != nil {
		return h.degrade(c, "posts", err, []content.Post{})
	}
	return c.JSON(posts)
}

func (h contentHandler) post(c fiber.Ctx) error {
	post, err := h.client.PostBySlug(c.Context(), c.Params("slug"))
	switch {
	case errors.Is(err, content.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "post_not_found"})
	case err != nil:
		h.logFailure(c, "post", err)
		c.Set(DegradedHeader, "true")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_unavailable"})
	}
	return c.JSON(post)
}

func (h contentHandler) categories(c fiber.Ctx) error {
	terms, err := h.client.Categories(c.Context())
	if err != nil {
		return h.degrade(c, "categories", err, []content.Term{})
	}
	return c.JSON(terms)
}

func (h contentHandler) tags(c fiber.Ctx) error {
	terms, err := h.client.Tags(c.Context())
	if err != nil {
		return h.degrade(c, "tags", err, []content.Term{})
	}
	return c.JSON(terms)
}

func (h contentHandler) pages(c fiber.Ctx) error {
	pages, err := h.client.Pages(c.Context(), c.Query("slug"))
	if err != nil {
		return h.degrade(c, "pages", err, []content.Page{})
	}
	return c.JSON(pages)
}

func (h contentHandler) popular(c fiber.Ctx) error {
	posts, err := h.client.Popular(c.Context(), queryInt(c, "limit", defaultListLimit))
	if err != nil {
		return h.degrade(c, "popular", err, []content.Post{})
	}
	return c.JSON(posts)
}

func (h contentHandler) featured(c fiber.Ctx) error {
	posts, err := h.client.Featured(c.Context(), queryInt(c, "limit", defaultListLimit))
	if err != nil {
		return h.degrade(c, "featured", err, []content.Post{})
	}
	return c.JSON(posts)
}

func (h contentHandler) homepage(c fiber.Ctx) error {
	home, err := h.client.Homepage(c.Context())
	if err != nil {
		h.logFailure(c, "homepage", err)
	}
	if err != nil || len(home.Degraded) > 0 {
		c.Set(DegradedHeader, "true")
	}
	return c.JSON(home)
}

func (h contentHandler) degrade(c fiber.Ctx, resource string, err error, empty any) error {
	h.logFailure(c, resource, err)
	c.Set(DegradedHeader, "true")
	return c.JSON(empty)
}

func (h contentHandler) logFailure(c fiber.Ctx, resource string, err error) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"action":     "content",
		"resource":   resource,
		"request_id": server.RequestID(c),
	}).Warn("content_degraded")
}
