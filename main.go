package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/wpedge/wpedge/internal/cache"
	"github.com/wpedge/wpedge/internal/config"
	"github.com/wpedge/wpedge/internal/content"
	"github.com/wpedge/wpedge/internal/domainmap"
	"github.com/wpedge/wpedge/internal/fetcher"
	"github.com/wpedge/wpedge/internal/logging"
	"github.com/wpedge/wpedge/internal/metrics"
	"github.com/wpedge/wpedge/internal/proxy"
	"github.com/wpedge/wpedge/internal/revalidate"
	"github.com/wpedge/wpedge/internal/seo"
	"github.com/wpedge/wpedge/internal/server"
	"github.com/wpedge/wpedge/internal/server/routes"
	"github.com/wpedge/wpedge/internal/valkey"
	"github.com/wpedge/wpedge/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if config.IsConfigurationError(err) {
			fmt.Fprintf(stdErr, "配置不完整: %v\n", err)
		} else {
			fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		}
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["content_origin"] = cfg.Site.ContentAPIOrigin
		fields["fallback"] = cfg.HasFallback()
		fields["seo"] = cfg.SEOActive()
		fields["valkey"] = cfg.Valkey.Enabled()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	app, cleanup, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer cleanup()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["content_origin"] = cfg.Site.ContentAPIOrigin
	fields["public_origin"] = cfg.Site.PublicSiteOrigin
	fields["fallback"] = cfg.HasFallback()
	fields["seo"] = cfg.SEOActive()
	fields["memory_entries"] = cfg.Global.MaxMemoryEntries
	fields["persistent_limit"] = humanize.IBytes(uint64(max(cfg.Global.MaxPersistentBytes, 0)))
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildApp 遵循“缓存层 → fetcher → 内容/SEO → Fiber 路由”的顺序装配，
// 所有请求共享同一份缓存与失效总线。
func buildApp(cfg *config.Config, logger *logrus.Logger) (*fiber.App, func(), error) {
	collector := metrics.NewCollector("wpedge")
	memory := cache.NewMemoryStore(cfg.Global.MaxMemoryEntries, cache.DefaultPolicy())

	cleanup := func() {}
	var persistent cache.Tier
	if cfg.Valkey.Enabled() {
		client, err := valkey.NewClient(cfg.Valkey)
		if err != nil {
			return nil, cleanup, fmt.Errorf("连接 Valkey 失败: %w", err)
		}
		cleanup = client.Close
		persistent = cache.NewValkeyStore(client, cfg.Valkey.MaxEntryBytes, logger)
	} else {
		store, err := cache.NewFileStore(cfg.Global.StoragePath, cfg.Global.MaxPersistentBytes, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("初始化缓存目录失败: %w", err)
		}
		persistent = store
	}
	svc := cache.NewService(memory, persistent, logger)

	httpClient := server.NewUpstreamClient(cfg)
	fetch := fetcher.New(httpClient, svc, logger, collector, fetcher.OptionsFromConfig(cfg))
	domain := domainmap.FromConfig(cfg.Site)

	bus := revalidate.NewBus()
	bus.Subscribe(func(sig revalidate.Signal) {
		logger.WithFields(logrus.Fields{
			"action": "revalidate",
			"paths":  sig.Paths,
			"tags":   sig.Tags,
		}).Info("cache_invalidated")
	})

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Metrics:    collector,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	routes.Register(app, routes.Deps{
		Config:    cfg,
		Logger:    logger,
		Cache:     svc,
		Fetcher:   fetch,
		Content:   content.NewClient(fetch, domain, logger),
		Extractor: seo.NewRegexExtractor(domain, cfg.Site.Name),
		Domain:    domain,
		Bus:       bus,
		Metrics:   collector,
		SEOProxy:  proxy.NewHandler(httpClient, logger, proxy.OptionsFromConfig(cfg)),
		Started:   time.Now(),
	})
	return app, cleanup, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("wpedge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 WPEDGE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("WPEDGE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = config.DefaultPath
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}
