// Package commands implements CLI command handlers for covarchive.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/covarchive/pkg/archive"
	"github.com/Sumatoshi-tech/covarchive/pkg/codec"
	"github.com/Sumatoshi-tech/covarchive/pkg/config"
	"github.com/Sumatoshi-tech/covarchive/pkg/filter"
	"github.com/Sumatoshi-tech/covarchive/pkg/observability"
	"github.com/Sumatoshi-tech/covarchive/pkg/render"
	"github.com/Sumatoshi-tech/covarchive/pkg/version"
)

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	ArchiveDir string
	Codec      CodecFlag
	Verbose    bool
	Quiet      bool
	NoColor    bool
	CI         bool
}

// Register adds the persistent flags to root.
func (g *GlobalOptions) Register(root *cobra.Command) {
	flags := root.PersistentFlags()

	flags.StringVar(&g.ConfigPath, "config", "", "Config file (default: .covarchive.yaml in ., ./config, /etc/covarchive)")
	flags.StringVar(&g.ArchiveDir, "archive", "", "Archive directory (overrides archive.dir)")
	flags.Var(&g.Codec, "codec", "Codec for historical entries: zlib, lz4, zstd (overrides archive.codec)")
	flags.BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&g.Quiet, "quiet", "q", false, "suppress output")
	flags.BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&g.CI, "ci", false, "Tag telemetry as a CI pipeline run")
}

// App is the wiring shared by the archive commands for one invocation.
type App struct {
	Config *config.Config
	Store  *archive.Store
	Filter *filter.Engine
	Logger *slog.Logger

	tracer   trace.Tracer
	red      *observability.REDMetrics
	metrics  *observability.ArchiveMetrics
	gauges   *observability.CoverageGauges
	noColor  bool
	shutdown func(ctx context.Context) error
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(g *GlobalOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}

	if g.ArchiveDir != "" {
		cfg.Archive.Dir = g.ArchiveDir
	}

	if g.Codec.Changed() {
		cfg.Archive.Codec = g.Codec.Kind().String()
	}

	if g.Verbose {
		cfg.Logging.Level = "debug"
	}

	if g.Quiet {
		cfg.Logging.Level = "error"
	}

	return cfg, nil
}

func observabilityConfig(cfg *config.Config, g *GlobalOptions, cmd *cobra.Command) (observability.Config, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.MetricsTextfile = cfg.Observability.MetricsTextfile
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.JSON()
	obsCfg.LogWriter = cmd.ErrOrStderr()

	if g.CI {
		obsCfg.Mode = observability.ModeCI
	}

	return obsCfg, nil
}

// openApp loads configuration, starts telemetry and opens the archive.
func openApp(cmd *cobra.Command, g *GlobalOptions) (*App, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	obsCfg, err := observabilityConfig(cfg, g, cmd)
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   providers.Logger,
		Filter:   filter.NewEngine(observability.Component(providers.Logger, "filter")),
		tracer:   providers.Tracer,
		noColor:  g.NoColor,
		shutdown: providers.Shutdown,
	}

	storeErr := app.openStore(providers)
	if storeErr != nil {
		return nil, app.closeWith(cmd.Context(), storeErr)
	}

	return app, nil
}

func (a *App) openStore(providers observability.Providers) error {
	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create command metrics: %w", err)
	}

	a.red = red

	a.metrics, err = observability.NewArchiveMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create archive metrics: %w", err)
	}

	if providers.Registry != nil {
		a.gauges, err = observability.NewCoverageGauges(providers.Registry)
		if err != nil {
			return err
		}
	}

	kind, err := a.Config.Archive.CodecKind()
	if err != nil {
		return err
	}

	maxSize, err := a.Config.Archive.MaxDecompressedBytes()
	if err != nil {
		return err
	}

	loc, err := a.Config.Archive.Location()
	if err != nil {
		return err
	}

	codecOpts := []codec.Option{codec.WithLevel(a.Config.Archive.Level)}
	if maxSize > 0 {
		codecOpts = append(codecOpts, codec.WithMaxSize(maxSize))
	}

	a.Store, err = archive.New(a.Config.Archive.Dir,
		archive.WithCodec(kind),
		archive.WithCodecOptions(codecOpts...),
		archive.WithLocation(loc),
		archive.WithLogger(a.Logger),
		archive.WithTracer(a.tracer),
		archive.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	return nil
}

// closeWith flushes telemetry and writes the metrics textfile. cause, the
// error of the command itself, wins over a shutdown error.
func (a *App) closeWith(ctx context.Context, cause error) error {
	if a.shutdown == nil {
		return cause
	}

	shutdownErr := a.shutdown(context.WithoutCancel(ctx))
	if shutdownErr != nil && cause == nil {
		return fmt.Errorf("shutdown observability: %w", shutdownErr)
	}

	if shutdownErr != nil {
		a.Logger.Warn("observability shutdown failed", "error", shutdownErr)
	}

	return cause
}

// Renderer builds a renderer for cmd's output in the named format.
func (a *App) Renderer(cmd *cobra.Command, format string) (*render.Renderer, error) {
	f, err := render.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	return render.New(cmd.OutOrStdout(), f, !a.noColor && !color.NoColor), nil
}

// Run executes fn as the named operation, with a span and RED metrics.
func (a *App) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, "covarchive.cmd."+op)
	defer span.End()

	done := a.red.TrackInflight(ctx, op)
	defer done()

	start := time.Now()
	err := fn(ctx)

	a.red.RecordRequest(ctx, op, observability.StatusOf(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}

	return err
}

// withApp opens the app, runs fn as op and closes the app.
func withApp(cmd *cobra.Command, g *GlobalOptions, op string, fn func(ctx context.Context, app *App) error) error {
	app, err := openApp(cmd, g)
	if err != nil {
		return err
	}

	runErr := app.Run(cmd.Context(), op, func(ctx context.Context) error { return fn(ctx, app) })

	return app.closeWith(cmd.Context(), runErr)
}
