package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听端口、日志、缓存容量与回源策略。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	StoragePath        string   `mapstructure:"StoragePath"`
	MaxMemoryEntries   int      `mapstructure:"MaxMemoryEntries"`
	MaxPersistentBytes int64    `mapstructure:"MaxPersistentBytes"`
	MaxRetries         int      `mapstructure:"MaxRetries"`
	RetryBackoff       Duration `mapstructure:"RetryBackoff"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	SEOTimeout         Duration `mapstructure:"SEOTimeout"`
}

// SiteConfig 汇总内容源、SEO 接口与公开站点之间的域名关系。
type SiteConfig struct {
	Name              string   `mapstructure:"SiteName"`
	ContentAPIOrigin  string   `mapstructure:"ContentAPIOrigin"`
	FallbackAPIOrigin string   `mapstructure:"FallbackAPIOrigin"`
	SEOAPIOrigin      string   `mapstructure:"SEOAPIOrigin"`
	SEOEnabled        bool     `mapstructure:"SEOEnabled"`
	PublicSiteOrigin  string   `mapstructure:"PublicSiteOrigin"`
	BackendOrigin     string   `mapstructure:"BackendOrigin"`
	BackendAliases    []string `mapstructure:"BackendAliases"`
	FrontendAliases   []string `mapstructure:"FrontendAliases"`
	RevalidateToken   string   `mapstructure:"RevalidateToken"`
}

// ValkeyConfig 控制可选的 Valkey 持久层；Address 为空时使用磁盘持久层。
type ValkeyConfig struct {
	Address       string   `mapstructure:"Address"`
	Password      string   `mapstructure:"Password"`
	DB            int      `mapstructure:"DB"`
	KeyPrefix     string   `mapstructure:"KeyPrefix"`
	MaxEntryBytes int64    `mapstructure:"MaxEntryBytes"`
	DialTimeout   Duration `mapstructure:"DialTimeout"`
}

// Enabled 表示是否配置了 Valkey 地址。
func (v ValkeyConfig) Enabled() bool {
	return strings.TrimSpace(v.Address) != ""
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Site   SiteConfig   `mapstructure:",squash"`
	Valkey ValkeyConfig `mapstructure:"Valkey"`
}

// HasFallback 表示是否配置了与主源不同的备用内容源。
func (c *Config) HasFallback() bool {
	fallback := trimOrigin(c.Site.FallbackAPIOrigin)
	return fallback != "" && fallback != trimOrigin(c.Site.ContentAPIOrigin)
}

// SEOActive 表示 SEO 接口既已启用又配置了地址。
func (c *Config) SEOActive() bool {
	return c.Site.SEOEnabled && strings.TrimSpace(c.Site.SEOAPIOrigin) != ""
}

func trimOrigin(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
