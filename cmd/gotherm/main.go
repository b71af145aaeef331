package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joshp123/gotherm/internal/config"
	"github.com/joshp123/gotherm/internal/core"
	"github.com/joshp123/gotherm/internal/oauth"
	"github.com/joshp123/gotherm/internal/plugins"
	"github.com/joshp123/gotherm/internal/rate"
	"github.com/joshp123/gotherm/internal/router"
	"github.com/joshp123/gotherm/internal/server"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		serveMain(nil)
		return
	}

	switch args[0] {
	case "serve":
		serveMain(args[1:])
	case "oauth":
		oauthMain(args[1:])
	case "dashboards":
		dashboardsMain(args[1:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("gotherm <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve [--config <path>]      Run the daemon (default)")
	fmt.Println("  oauth <command> [args]       Provision OAuth refresh tokens")
	fmt.Println("  dashboards [--dir <path>]    Write embedded Grafana dashboards to disk")
	fmt.Println("  version                      Print the build version")
}

func serveMain(args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", config.DefaultPath, "Path to config.yaml")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}

	logger, err := newLogger(cfg.Core.LogLevel)
	if err != nil {
		fatal("logger", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Sugar()

	compiled := plugins.Compiled(cfg, log)
	if err := core.ValidatePlugins(compiled); err != nil {
		log.Fatalw("plugin validation failed", "error", err)
	}
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		log.Fatalw("plugin selection failed", "error", err)
	}
	active := core.FilterPlugins(compiled, enabled, false)
	for _, plugin := range active {
		if plugin.Health() == core.HealthError {
			log.Errorw("plugin failed to initialize", "plugin", plugin.ID(), "error", plugin.HealthMessage())
		}
	}

	shared := append(oauth.MetricsCollectors(), rate.MetricsCollectors()...)
	shared = append(shared, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "gotherm_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 }))
	registry := core.MetricsRegistry(active, shared...)

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		log.Warnw("dashboard export failed", "dir", cfg.Core.DashboardDir, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, plugin := range active {
		runner, ok := plugin.(core.Runner)
		if !ok {
			continue
		}
		go runner.Run(ctx)
	}

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, router.New(active, registry), log)
	log.Infow("gotherm starting", "version", version, "addr", cfg.Core.HTTPAddr, "plugins", len(active))
	if err := httpServer.Run(ctx); err != nil {
		log.Fatalw("http serve failed", "error", err)
	}
	log.Infow("gotherm stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parsed)
	return zapCfg.Build()
}

func dashboardsMain(args []string) {
	flags := flag.NewFlagSet("dashboards", flag.ExitOnError)
	configPath := flags.String("config", config.DefaultPath, "Path to config.yaml")
	dir := flags.String("dir", "", "Output directory (defaults to core.dashboard_dir)")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}

	target := *dir
	if target == "" {
		target = cfg.Core.DashboardDir
	}

	active := plugins.Compiled(cfg, zap.NewNop().Sugar())
	if err := core.WriteDashboards(target, active); err != nil {
		fatal("dashboards", err)
	}
	for _, plugin := range active {
		for _, dash := range plugin.Dashboards() {
			fmt.Println(filepath.Join(target, plugin.Manifest().PluginID, dash.Name+".json"))
		}
	}
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
