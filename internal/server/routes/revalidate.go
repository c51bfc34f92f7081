package routes

import (
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/revalidate"
	"github.com/wpedge/wpedge/internal/server"
)

// RegisterRevalidateRoutes 暴露 GET|POST /api/revalidate-cache。
func RegisterRevalidateRoutes(app *fiber.App, deps Deps) {
	if deps.Cache == nil {
		return
	}
	h := revalidateHandler{deps: deps}
	app.Get("/api/revalidate-cache", h.handle)
	app.Post("/api/revalidate-cache", h.handle)
}

type revalidateHandler struct {
	deps Deps
}

// stringList 同时接受 JSON 字符串与字符串数组。
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

type revalidateBody struct {
	Path  stringList `json:"path"`
	Paths stringList `json:"paths"`
	Tag   stringList `json:"tag"`
	Tags  stringList `json:"tags"`
}

func (h revalidateHandler) handle(c fiber.Ctx) error {
	token := ""
	if h.deps.Config != nil {
		token = h.deps.Config.Site.RevalidateToken
	}
	if token == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"revalidated": false,
			"error":       "revalidate token not configured",
		})
	}
	if subtle.ConstantTimeCompare([]byte(providedToken(c)), []byte(token)) != 1 {
		h.deps.Logger.WithFields(logrus.Fields{
			"action":     "revalidate",
			"request_id": server.RequestID(c),
			"ip":         c.IP(),
		}).Warn("revalidate_unauthorized")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"revalidated": false,
			"error":       "invalid token",
		})
	}

	paths, tags, err := collectTargets(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"revalidated": false,
			"error":       "invalid body",
		})
	}

	cleared := h.deps.Cache.ClearAll(c.Context())
	h.deps.Metrics.Invalidations.Inc()

	now := time.Now()
	sig := revalidate.Signal{Paths: paths, Tags: tags, At: now}
	if h.deps.Bus != nil {
		h.deps.Bus.Publish(sig)
	}

	h.deps.Logger.WithFields(logrus.Fields{
		"action":             "revalidate",
		"request_id":         server.RequestID(c),
		"paths":              paths,
		"tags":               tags,
		"cleared_memory":     cleared.Memory,
		"cleared_persistent": cleared.Persistent,
	}).Info("cache_revalidated")

	return c.JSON(fiber.Map{
		"revalidated": true,
		"cleared":     cleared,
		"paths":       nonNilStrings(paths),
		"tags":        nonNilStrings(tags),
		"now":         now.UnixMilli(),
	})
}

// providedToken 读取 Authorization: Bearer 或 ?secret=。
func providedToken(c fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return c.Query("secret")
}

// collectTargets 合并查询参数、表单与 JSON 正文中的 path/tag，去重并保持顺序。
func collectTargets(c fiber.Ctx) ([]string, []string, error) {
	var paths, tags []string
	args := c.Request().URI().QueryArgs()
	paths = appendBytes(paths, args.PeekMulti("path"))
	tags = appendBytes(tags, args.PeekMulti("tag"))

	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		contentType := strings.ToLower(string(c.Request().Header.ContentType()))
		switch {
		case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
			var body revalidateBody
			if err := json.Unmarshal(c.Body(), &body); err != nil {
				return nil, nil, err
			}
			paths = append(paths, body.Path...)
			paths = append(paths, body.Paths...)
			tags = append(tags, body.Tag...)
			tags = append(tags, body.Tags...)
		case strings.HasPrefix(contentType, fiber.MIMEApplicationForm):
			form := c.Request().PostArgs()
			paths = appendBytes(paths, form.PeekMulti("path"))
			tags = appendBytes(tags, form.PeekMulti("tag"))
		}
	}
	return dedupe(paths), dedupe(tags), nil
}

func appendBytes(dst []string, values [][]byte) []string {
	for _, v := range values {
		dst = append(dst, string(v))
	}
	return dst
}

func dedupe(values []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
