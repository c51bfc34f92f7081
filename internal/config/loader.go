package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultPath 是未通过 flag/环境变量指定时使用的配置文件。
const DefaultPath = "config.toml"

// envPrefix 用于 AutomaticEnv，例如 WPEDGE_LISTENPORT、WPEDGE_VALKEY_ADDRESS。
const envPrefix = "WPEDGE"

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
// 默认路径的文件不存在时允许只依赖环境变量启动。
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	loadDotEnv(filepath.Dir(path))

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if !(path == DefaultPath && isMissingFile(path)) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	normalizeSite(&cfg.Site)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

// loadDotEnv 尝试加载配置目录与工作目录下的 .env，缺失时静默跳过；已存在的环境变量不会被覆盖。
func loadDotEnv(dir string) {
	candidates := []string{filepath.Join(dir, ".env")}
	if dir != "." {
		candidates = append(candidates, ".env")
	}
	for _, file := range candidates {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		_ = godotenv.Load(file)
	}
}

func isMissingFile(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 3000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("MaxMemoryEntries", 1000)
	v.SetDefault("MaxPersistentBytes", 50*1024*1024)
	v.SetDefault("MaxRetries", 4)
	v.SetDefault("RetryBackoff", "200ms")
	v.SetDefault("UpstreamTimeout", "10s")
	v.SetDefault("SEOTimeout", "10s")

	v.SetDefault("SiteName", "")
	v.SetDefault("ContentAPIOrigin", "")
	v.SetDefault("FallbackAPIOrigin", "")
	v.SetDefault("SEOAPIOrigin", "")
	v.SetDefault("SEOEnabled", false)
	v.SetDefault("PublicSiteOrigin", "")
	v.SetDefault("BackendOrigin", "")
	v.SetDefault("BackendAliases", []string{})
	v.SetDefault("FrontendAliases", []string{})
	v.SetDefault("RevalidateToken", "")

	v.SetDefault("Valkey.Address", "")
	v.SetDefault("Valkey.Password", "")
	v.SetDefault("Valkey.DB", 0)
	v.SetDefault("Valkey.KeyPrefix", "wpedge")
	v.SetDefault("Valkey.MaxEntryBytes", 1024*1024)
	v.SetDefault("Valkey.DialTimeout", "5s")
}

// bindLegacyEnv 兼容前端部署沿用的环境变量名。
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"ContentAPIOrigin":  {"WPEDGE_CONTENT_API_ORIGIN", "WORDPRESS_API_URL"},
		"FallbackAPIOrigin": {"WPEDGE_FALLBACK_API_ORIGIN", "WORDPRESS_FALLBACK_API_URL"},
		"SEOAPIOrigin":      {"WPEDGE_SEO_API_ORIGIN", "RANKMATH_API_URL"},
		"SEOEnabled":        {"WPEDGE_SEO_ENABLED", "RANKMATH_ENABLED"},
		"PublicSiteOrigin":  {"WPEDGE_PUBLIC_SITE_ORIGIN", "SITE_URL"},
		"BackendOrigin":     {"WPEDGE_BACKEND_ORIGIN", "BACKEND_URL"},
		"RevalidateToken":   {"WPEDGE_REVALIDATE_TOKEN", "REVALIDATE_SECRET"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return err
		}
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 3000
	}
	if g.MaxMemoryEntries == 0 {
		g.MaxMemoryEntries = 1000
	}
	if g.MaxRetries == 0 {
		g.MaxRetries = 4
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(10 * time.Second)
	}
	if g.SEOTimeout.DurationValue() == 0 {
		g.SEOTimeout = Duration(10 * time.Second)
	}
}

func normalizeSite(s *SiteConfig) {
	s.ContentAPIOrigin = trimOrigin(s.ContentAPIOrigin)
	s.FallbackAPIOrigin = trimOrigin(s.FallbackAPIOrigin)
	s.SEOAPIOrigin = strings.TrimSpace(s.SEOAPIOrigin)
	s.PublicSiteOrigin = trimOrigin(s.PublicSiteOrigin)
	s.BackendOrigin = trimOrigin(s.BackendOrigin)
	s.BackendAliases = trimAll(s.BackendAliases)
	s.FrontendAliases = trimAll(s.FrontendAliases)
	s.RevalidateToken = strings.TrimSpace(s.RevalidateToken)
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if trimmed := trimOrigin(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
