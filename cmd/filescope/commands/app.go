// Package commands implements CLI command handlers for filescope.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
	"github.com/forensiq/filescope/internal/analyzers/document"
	"github.com/forensiq/filescope/internal/analyzers/image"
	"github.com/forensiq/filescope/internal/analyzers/media"
	"github.com/forensiq/filescope/internal/analyzers/network"
	"github.com/forensiq/filescope/internal/analyzers/security"
	"github.com/forensiq/filescope/internal/config"
	"github.com/forensiq/filescope/internal/hashing"
	"github.com/forensiq/filescope/internal/manager"
	"github.com/forensiq/filescope/internal/scan"
	"github.com/forensiq/filescope/internal/store"
	"github.com/forensiq/filescope/pkg/observability"
	"github.com/forensiq/filescope/pkg/version"
)

const (
	serviceName = "filescope"

	metricsReadTimeout = 10 * time.Second
	closeTimeout       = 30 * time.Second
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
	quiet      bool
	noColor    bool
}

// NewRootCommand builds the filescope root command with all subcommands
// attached. Each subcommand wires the application lazily on execution, so
// flag parsing and help never touch the store.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "filescope",
		Short: "Filescope Forensic Toolkit - File metadata extraction and analysis",
		Long: `Filescope extracts forensic metadata from directory trees: file type
detection, format-specific analysis, cryptographic hashing, and duplicate
detection, with results persisted for later reporting.

Commands:
  analyze     Run an analysis session over a directory`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	factory := func() (*App, error) { return NewApp(opts) }

	rootCmd.AddCommand(
		NewAnalyzeCommand(factory),
		NewSessionsCommand(factory),
		NewDetailsCommand(factory),
		NewDuplicatesCommand(factory),
		NewCleanupCommand(factory),
		NewFormatsCommand(factory),
		NewReportCommand(factory),
	)

	return rootCmd
}

// AppFactory builds the wired application for one command invocation.
type AppFactory func() (*App, error)

// App bundles the wired collaborators a command needs: configuration, the
// session manager, and the ambient telemetry. Built once per invocation
// and closed when the command returns.
type App struct {
	Config  *config.Config
	Manager *manager.Manager
	Logger  *slog.Logger
	Quiet   bool

	metricsSrv *http.Server
	shutdown   func(ctx context.Context) error
}

// NewApp loads configuration and wires the full toolkit: telemetry, store,
// capability registry, scanner, hash engine, and the session manager.
func NewApp(opts *rootOptions) (*App, error) {
	cfg, loadErr := config.Load(opts.configPath)
	if loadErr != nil {
		return nil, loadErr
	}

	if opts.noColor {
		color.NoColor = true
	}

	level := cfg.Logging.SlogLevel()
	if opts.verbose {
		level = slog.LevelDebug
	}

	if opts.quiet {
		level = slog.LevelError
	}

	providers, initErr := observability.Init(observability.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPHeaders:    observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders),
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		Prometheus:     cfg.Telemetry.MetricsAddr != "",
		DebugTrace:     cfg.Telemetry.TraceVerbose,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		LogLevel:       level,
		LogJSON:        cfg.Logging.JSONLogs(),
	})
	if initErr != nil {
		return nil, fmt.Errorf("init telemetry: %w", initErr)
	}

	logger := providers.Logger

	metrics, metricsErr := observability.NewScanMetrics(providers.Meter)
	if metricsErr != nil {
		return nil, fmt.Errorf("init metrics: %w", metricsErr)
	}

	st, openErr := store.Open(cfg.Store.Path, logger)
	if openErr != nil {
		return nil, openErr
	}

	registry := BuildRegistry()

	scanner, scanErr := scan.NewScanner(scan.Policy{
		BlockedExtensions: cfg.Scan.BlockedExtensions,
		AllowedExtensions: registry.Extensions(),
		ExcludeGlobs:      cfg.Scan.ExcludeGlobs,
		MaxFileSize:       cfg.Scan.MaxFileSizeBytes(),
		MaxDepth:          cfg.Scan.MaxPathDepth,
		MaxFiles:          cfg.Analysis.MaxFilesPerSession,
		FollowSymlinks:    cfg.Scan.FollowSymlinks,
	}, logger)
	if scanErr != nil {
		closeErr := st.Close()

		return nil, errors.Join(fmt.Errorf("build scanner: %w", scanErr), closeErr)
	}

	engine := hashing.NewEngine(hashing.WithMaxFileSize(cfg.Scan.MaxFileSizeBytes()))

	mgr := manager.New(cfg.Analysis, st, registry, engine, scanner, manager.Options{
		Logger:  logger,
		Tracer:  providers.Tracer,
		Metrics: metrics,
	})

	app := &App{
		Config:   cfg,
		Manager:  mgr,
		Logger:   logger,
		Quiet:    opts.quiet,
		shutdown: providers.Shutdown,
	}

	if cfg.Telemetry.MetricsAddr != "" && providers.MetricsHandler != nil {
		app.serveMetrics(cfg.Telemetry.MetricsAddr, providers.MetricsHandler)
	}

	return app, nil
}

// serveMetrics exposes the Prometheus scrape endpoint for the lifetime of
// the command.
func (a *App) serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	a.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		serveErr := a.metricsSrv.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.Logger.Warn("metrics server stopped", "addr", addr, "error", serveErr)
		}
	}()
}

// Close drains active sessions, closes the store, and flushes telemetry.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	closeErr := a.Manager.Shutdown(ctx)

	if a.metricsSrv != nil {
		closeErr = errors.Join(closeErr, a.metricsSrv.Shutdown(ctx))
	}

	if a.shutdown != nil {
		closeErr = errors.Join(closeErr, a.shutdown(ctx))
	}

	return closeErr
}

// BuildRegistry assembles the capability registry in the default order.
// Registration order decides which analyzer claims a contested extension.
func BuildRegistry() *analyze.Registry {
	registry := analyze.NewRegistry()
	registry.Register(image.New())
	registry.Register(document.New())
	registry.Register(media.New())
	registry.Register(network.New())
	registry.Register(security.New())

	return registry
}
