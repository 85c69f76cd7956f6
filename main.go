package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sitecache/sitecache/internal/config"
	"github.com/sitecache/sitecache/internal/events"
	"github.com/sitecache/sitecache/internal/logging"
	"github.com/sitecache/sitecache/internal/proxy"
	"github.com/sitecache/sitecache/internal/server"
	"github.com/sitecache/sitecache/internal/server/routes"
	"github.com/sitecache/sitecache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath     string
	checkOnly      bool
	showVersion    bool
	flush          bool
	exportSettings bool
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
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origin"] = cfg.Global.Origin
		fields["permalinks"] = cfg.Global.PermalinksEnabled()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 设置存储 → 磁盘缓存 → 事件订阅 → Fiber server，
	// 所有请求共享同一份缓存与设置实例。
	svc, err := openServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存服务失败: %v\n", err)
		return 1
	}
	defer svc.Close()

	switch {
	case opts.flush:
		return runFlush(svc, logger, opts.configPath)
	case opts.exportSettings:
		return runExport(svc)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origin"] = cfg.Global.Origin
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")
	if !cfg.Global.PermalinksEnabled() {
		logger.WithFields(logging.BaseFields("startup", opts.configPath)).Warn(routes.WarningMissingPermalink)
	}

	if err := startHTTPServer(cfg, svc, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func runFlush(svc *services, logger *logrus.Logger, configPath string) int {
	evt := events.Event{Kind: events.CacheCleared, Actor: "cli"}
	if err := svc.dispatcher.Dispatch(context.Background(), evt); err != nil {
		fmt.Fprintf(stdErr, "清空缓存失败: %v\n", err)
		return 1
	}
	logger.WithFields(logging.BaseFields("flush", configPath)).Info("缓存已清空")
	fmt.Fprintln(stdOut, "cache flushed")
	return 0
}

func runExport(svc *services) int {
	doc, err := svc.settings.Export()
	if err != nil {
		fmt.Fprintf(stdErr, "导出设置失败: %v\n", err)
		return 1
	}
	_, _ = stdOut.Write(doc)
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("sitecache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	var configFlag string

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 SITECACHE_CONFIG 覆盖）")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&opts.flush, "flush", false, "清空整页缓存后退出")
	fs.BoolVar(&opts.exportSettings, "export-settings", false, "以 YAML 输出当前缓存设置后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if opts.flush && opts.exportSettings {
		return cliOptions{}, fmt.Errorf("--flush 与 --export-settings 不能同时使用")
	}

	path := os.Getenv("SITECACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}
	opts.configPath = path
	return opts, nil
}

func startHTTPServer(cfg *config.Config, svc *services, logger *logrus.Logger) error {
	pages, err := proxy.NewHandler(proxy.Options{
		Client:             server.NewOriginClient(cfg),
		Logger:             logger,
		Origin:             cfg.Global.Origin,
		Store:              svc.store,
		Resolver:           svc.resolver,
		Bypass:             svc.bypass,
		Settings:           svc.settings,
		PermalinkStructure: cfg.Global.PermalinkStructure,
	})
	if err != nil {
		return err
	}

	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Pages:      pages,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	err = routes.RegisterAdminRoutes(app, routes.AdminDeps{
		Token:             cfg.Global.AdminToken,
		Nonces:            server.NewNonceIssuer(cfg.Global.NonceSecret, nil),
		Dispatcher:        svc.dispatcher,
		Settings:          svc.settings,
		Invalidation:      svc.invalidation,
		Store:             svc.store,
		PermalinksEnabled: cfg.Global.PermalinksEnabled(),
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
