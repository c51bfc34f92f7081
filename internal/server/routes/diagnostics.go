package routes

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/wpedge/wpedge/internal/cache"
	"github.com/wpedge/wpedge/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/ 下的诊断接口，供运维查询缓存与进程状态。
func RegisterDiagnosticsRoutes(app *fiber.App, deps Deps) {
	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"uptime":         humanize.RelTime(deps.Started, time.Now(), "", ""),
			"uptime_seconds": int64(time.Since(deps.Started).Seconds()),
		})
	})

	app.Get("/-/version", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"version": version.Version,
			"commit":  version.Commit,
			"full":    version.Full(),
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	if deps.Cache != nil {
		app.Get("/-/cache", func(c fiber.Ctx) error {
			payload := fiber.Map{
				"tiers":  encodeTiers(deps.Cache.TierUsage(c.Context())),
				"memory": deps.Cache.Memory().Stats(),
				"policy": encodePolicy(deps.Cache.Memory().Policy()),
			}
			if deps.Bus != nil {
				if last, ok := deps.Bus.Last(); ok {
					payload["last_revalidation"] = fiber.Map{
						"paths": last.Paths,
						"tags":  last.Tags,
						"at":    last.At,
						"ago":   humanize.Time(last.At),
					}
				}
				payload["revalidations"] = deps.Bus.Count()
			}
			return c.JSON(payload)
		})
	}
}

type tierPayload struct {
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	HumanSize string `json:"human_size"`
	MaxBytes  int64  `json:"max_bytes,omitempty"`
	HumanMax  string `json:"human_max,omitempty"`
}

type policyPayload struct {
	Prefix     string `json:"prefix"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func encodeTiers(usage map[string]cache.Usage) []tierPayload {
	result := make([]tierPayload, 0, len(usage))
	for name, u := range usage {
		item := tierPayload{
			Name:      name,
			Entries:   u.Entries,
			Bytes:     u.Bytes,
			HumanSize: humanize.IBytes(uint64(u.Bytes)),
			MaxBytes:  u.MaxBytes,
		}
		if u.MaxBytes > 0 {
			item.HumanMax = humanize.IBytes(uint64(u.MaxBytes))
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func encodePolicy(policy cache.TTLPolicy) []policyPayload {
	rules := policy.Rules()
	result := make([]policyPayload, 0, len(rules)+1)
	for _, rule := range rules {
		result = append(result, policyPayload{
			Prefix:     rule.Prefix,
			TTLSeconds: int64(rule.TTL / time.Second),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Prefix < result[j].Prefix
	})
	result = append(result, policyPayload{Prefix: "*", TTLSeconds: int64(policy.Resolve("") / time.Second)})
	return result
}
