package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.MaxMemoryEntries <= 0 {
		return newFieldError("Global.MaxMemoryEntries", "必须大于 0")
	}
	if g.MaxPersistentBytes < 0 {
		return newFieldError("Global.MaxPersistentBytes", "不能为负数")
	}
	if g.MaxRetries <= 0 {
		return newFieldError("Global.MaxRetries", "至少为 1")
	}
	if g.RetryBackoff.DurationValue() < 0 {
		return newFieldError("Global.RetryBackoff", "不能为负数")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.SEOTimeout.DurationValue() <= 0 {
		return newFieldError("Global.SEOTimeout", "必须大于 0")
	}

	s := c.Site
	if strings.TrimSpace(s.ContentAPIOrigin) == "" {
		return missingOrigin("Site.ContentAPIOrigin")
	}
	if strings.TrimSpace(s.PublicSiteOrigin) == "" {
		return missingOrigin("Site.PublicSiteOrigin")
	}
	if strings.TrimSpace(s.BackendOrigin) == "" {
		return missingOrigin("Site.BackendOrigin")
	}

	origins := []struct {
		field string
		value string
	}{
		{"Site.ContentAPIOrigin", s.ContentAPIOrigin},
		{"Site.FallbackAPIOrigin", s.FallbackAPIOrigin},
		{"Site.SEOAPIOrigin", s.SEOAPIOrigin},
		{"Site.PublicSiteOrigin", s.PublicSiteOrigin},
		{"Site.BackendOrigin", s.BackendOrigin},
	}
	for _, o := range origins {
		if strings.TrimSpace(o.value) == "" {
			continue
		}
		if err := validateOrigin(o.value); err != nil {
			return fmt.Errorf("%s: %w", o.field, err)
		}
	}
	for i, alias := range s.BackendAliases {
		if err := validateOrigin(alias); err != nil {
			return fmt.Errorf("Site.BackendAliases[%d]: %w", i, err)
		}
	}
	for i, alias := range s.FrontendAliases {
		if err := validateOrigin(alias); err != nil {
			return fmt.Errorf("Site.FrontendAliases[%d]: %w", i, err)
		}
	}
	if s.SEOEnabled && strings.TrimSpace(s.SEOAPIOrigin) == "" {
		return newFieldError("Site.SEOAPIOrigin", "SEOEnabled 为 true 时不能为空")
	}

	if c.Valkey.Enabled() && c.Valkey.MaxEntryBytes < 0 {
		return newFieldError("Valkey.MaxEntryBytes", "不能为负数")
	}

	return nil
}

func validateOrigin(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
