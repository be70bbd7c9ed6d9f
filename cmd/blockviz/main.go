// Package main is the entry point for the L2 block visualizer.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fd1az/blockviz/business/blocks"
	"github.com/fd1az/blockviz/business/blocks/app"
	blocksDI "github.com/fd1az/blockviz/business/blocks/di"
	"github.com/fd1az/blockviz/internal/apm"
	"github.com/fd1az/blockviz/internal/config"
	"github.com/fd1az/blockviz/internal/health"
	"github.com/fd1az/blockviz/internal/logger"
	"github.com/fd1az/blockviz/internal/metrics"
	"github.com/fd1az/blockviz/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "blockviz",
	Short:         "L2 block visualizer",
	Long:          "Follows an L2 chain head, keeps a navigable window of recent blocks and shows their L1 origins.",
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().BoolVar(&watchOpts.cli, "cli", false, "run in CLI mode with logs (no TUI)")
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Setup context with cancellation on shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// application is the monolith as seen from main.
type application interface {
	monolith.Monolith
	RegisterModules(modules ...monolith.Module) error
	StartModules(ctx context.Context, modules ...monolith.Module) error
	Close() error
}

// runtime is what every command shares once configuration is loaded.
type runtime struct {
	cfg  *config.Config
	log  *logger.Logger
	mono application
	svc  *app.BlockService

	closers []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

type setupOptions struct {
	tuiMode   bool
	quiet     bool // one-shot commands only log warnings
	telemetry bool
	forceAPI  bool
	startFeed bool
}

// setup loads configuration, builds the logger and telemetry and registers
// the blocks module. Modules are not started.
func setup(ctx context.Context, opts setupOptions) (*runtime, *blocks.Module, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.App.TUIMode = opts.tuiMode
	if opts.forceAPI {
		cfg.API.Enabled = true
	}

	rt := &runtime{cfg: cfg}

	logLevel := logger.ParseLevel(cfg.App.LogLevel)
	if opts.quiet && logLevel < logger.LevelWarn {
		logLevel = logger.LevelWarn
	}

	var out io.Writer = os.Stderr
	if opts.tuiMode {
		// The TUI owns the terminal, so logs go to a rotating file.
		fw := logger.NewFileWriter(cfg.App.LogFile, 10, 7)
		rt.closers = append(rt.closers, func() { _ = fw.Close() })
		out = fw
	}
	rt.log = logger.New(out, logLevel, cfg.App.Name, logger.OtelTraceID)
	rt.log.Info(ctx, "starting blockviz", "version", version, "environment", cfg.App.Environment)

	if opts.telemetry && cfg.Telemetry.Enabled {
		if err := startTelemetry(ctx, rt); err != nil {
			rt.close()
			return nil, nil, err
		}
	}

	mono, err := monolith.New(ctx, cfg, rt.log)
	if err != nil {
		rt.close()
		return nil, nil, fmt.Errorf("failed to create monolith: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		if err := mono.Close(); err != nil {
			rt.log.Error(context.Background(), "error during shutdown", "error", err)
		}
	})
	rt.mono = mono

	module := &blocks.Module{StartFeed: opts.startFeed}
	if err := mono.RegisterModules(module); err != nil {
		rt.close()
		return nil, nil, fmt.Errorf("failed to register modules: %w", err)
	}
	rt.svc = blocksDI.GetBlockService(mono.Services())

	return rt, module, nil
}

func startTelemetry(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg

	traceProvider, err := apm.NewTraceProvider(
		apm.WithServiceName(cfg.Telemetry.ServiceName),
		apm.WithProvider(apm.Provider(cfg.Telemetry.TraceProvider), cfg.Telemetry.OTLPEndpoint, rt.log),
	)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = traceProvider.Stop() })
	rt.log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider, "endpoint", cfg.Telemetry.OTLPEndpoint)

	exporters, err := metrics.ParseExporters(cfg.Telemetry.MetricExporters, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	meterProvider, err := metrics.NewMetricProvider(
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(exporters...),
	)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = meterProvider.Shutdown(shutdownCtx)
	})

	if metrics.HasPrometheus(exporters) {
		promCtx, cancel := context.WithCancel(ctx)
		rt.closers = append(rt.closers, cancel)
		go metrics.ServePrometheusMetrics(promCtx, rt.log, metrics.WithPort(cfg.Telemetry.PrometheusPort))
		rt.log.Info(ctx, "prometheus metrics server started", "port", cfg.Telemetry.PrometheusPort)
	}

	return nil
}

// startHealth serves /health, /ready and /live with the feed and head checks.
func startHealth(ctx context.Context, rt *runtime) {
	port := rt.cfg.Health.Port
	if port == 0 {
		port = 8081
	}

	srv := health.NewServer(port, version, rt.log)
	srv.RegisterCheck("feed", func(context.Context) (bool, string) {
		switch s := rt.svc.FeedStatus(); s {
		case app.FeedSubscribed, app.FeedPolling:
			return true, string(s)
		default:
			return false, string(s)
		}
	})
	srv.RegisterCheck("l2_head", func(ctx context.Context) (bool, string) {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		head, err := rt.svc.Ping(pingCtx)
		if err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("head %d", head)
	})

	if err := srv.Start(); err != nil {
		rt.log.Warn(ctx, "failed to start health server", "error", err)
		return
	}
	rt.log.Info(ctx, "health server started", "port", port)
	rt.closers = append(rt.closers, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(stopCtx)
	})
}
