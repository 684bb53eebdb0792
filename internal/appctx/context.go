// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quilldev/kurisu/internal/config"
	"github.com/quilldev/kurisu/internal/lookup"
	"github.com/quilldev/kurisu/internal/observability"
	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/resilience"
	"github.com/quilldev/kurisu/internal/riot"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Client   *riot.Client
	Resolver *lookup.Resolver
	Output   *output.Writer

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks
	Metrics   *observability.Metrics
	Tracing   *observability.TracingHooks

	// Resilience
	Gate *resilience.GatingHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	stdout   io.Writer
	stderr   io.Writer
	shutdown []func(context.Context) error
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON  bool
	Quiet bool
	JQ    string

	// Behavior flags
	Verbose int // 0=off, 1=operations, 2=operations+requests (stacks with -v -v or -vv)
	Stats   bool
	Trace   bool
}

// NewApp creates a new App with the given configuration. Logger creation is
// the only step that can fail.
func NewApp(cfg *config.Config) (*App, error) {
	return NewAppWithIO(cfg, os.Stdout, os.Stderr)
}

// NewAppWithIO is NewApp with explicit output streams.
func NewAppWithIO(cfg *config.Config, stdout, stderr io.Writer) (*App, error) {
	logFormat := cfg.LogFormat
	if logFormat == "" {
		logFormat = observability.LogFormatConsole
	}
	logLevel := cfg.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	logger, err := observability.NewLogger(logLevel, logFormat, stderr)
	if err != nil {
		return nil, output.ErrUsageHint(err.Error(), "Set log_level to debug, info, warn or error")
	}

	// Collector always runs to gather stats; hooks control output verbosity.
	// Level 0 initially; ApplyFlags sets the actual level from -v flags.
	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(0, collector, observability.NewTraceWriterTo(stderr))

	stateDir := resilience.DefaultStateDir()
	if cfg.CacheDir != "" {
		stateDir = cfg.StateDir()
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Collector: collector,
		Hooks:     hooks,
		Metrics:   observability.NewMetrics(),
		Gate:      resilience.NewGatingHooksFromConfig(resilience.NewStore(stateDir), resilience.DefaultConfig()),
		Output:    output.New(output.Options{Format: formatFromConfig(cfg.Format), Writer: stdout}),
		stdout:    stdout,
		stderr:    stderr,
	}
	a.wire()
	return a, nil
}

// wire builds the client and resolver over the current hook set.
func (a *App) wire() {
	chain := riot.NewChainHooks(a.Gate, a.Hooks, a.Metrics, tracingHooks(a.Tracing))

	a.Client = riot.NewClient(a.Config.APIKey,
		riot.WithPlatformURL(a.Config.PlatformURL),
		riot.WithDataDragonURL(a.Config.DataDragonURL),
		riot.WithHooks(chain),
	)

	a.Resolver = lookup.NewResolver(a.Client,
		lookup.WithSummonerTTL(a.Config.SummonerTTL),
		lookup.WithMasteryTTL(a.Config.MasteryTTL),
		lookup.WithVersionTTL(a.Config.VersionTTL),
		lookup.WithCapacity(a.Config.CacheCapacity),
		lookup.WithDedupe(a.Config.Dedupe),
		lookup.WithObserver(observability.NewObservers(a.Hooks, a.Metrics)),
		lookup.WithLogger(a.Logger),
	)
}

// tracingHooks avoids storing a typed nil in the riot.Hooks interface.
func tracingHooks(t *observability.TracingHooks) riot.Hooks {
	if t == nil {
		return nil
	}
	return t
}

func formatFromConfig(format string) output.Format {
	switch format {
	case "json":
		return output.FormatJSON
	case "text":
		return output.FormatText
	case "quiet":
		return output.FormatQuiet
	default:
		return output.FormatAuto
	}
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() error {
	format := formatFromConfig(a.Config.Format)
	switch {
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	}
	a.Output = output.New(output.Options{Format: format, Writer: a.stdout, JQ: a.Flags.JQ})

	// KURISU_DEBUG can be "1", "2", or "true" (treated as 2)
	verboseLevel := a.Flags.Verbose
	if debugEnv := os.Getenv("KURISU_DEBUG"); debugEnv != "" {
		if level, err := strconv.Atoi(debugEnv); err == nil {
			if level > verboseLevel {
				verboseLevel = level
			}
		} else if debugEnv == "true" {
			verboseLevel = 2
		}
	}
	a.Hooks.SetLevel(verboseLevel)

	if a.Flags.Trace && a.Tracing == nil {
		tp, shutdown, err := observability.NewTracerProvider(a.stderr)
		if err != nil {
			return fmt.Errorf("starting tracer: %w", err)
		}
		a.Tracing = observability.NewTracingHooks(tp)
		a.shutdown = append(a.shutdown, shutdown)
		a.wire()
	}
	return nil
}

// Close flushes tracing and the logger.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdown = nil
	// Sync on stderr returns EINVAL on some platforms; not worth reporting.
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}

// OK outputs a success response, automatically including stats if --stats flag is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats flag is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		a.printStats(a.Collector.Summary())
	}
	return nil
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
func (a *App) isMachineOutput() bool {
	if a.Flags.Quiet || a.Flags.JQ != "" {
		return true
	}
	return a.Config != nil && a.Config.Format == "quiet"
}

// printStats outputs a compact stats line to stderr.
func (a *App) printStats(stats observability.SessionMetrics) {
	var parts []string

	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	switch stats.TotalRequests {
	case 0:
	case 1:
		parts = append(parts, "1 request")
	default:
		parts = append(parts, fmt.Sprintf("%d requests", stats.TotalRequests))
	}

	if lookups := stats.CacheHits + stats.CacheMisses; lookups > 0 {
		rate := float64(stats.CacheHits) / float64(lookups) * 100
		parts = append(parts, fmt.Sprintf("%d cached (%.0f%%)", stats.CacheHits, rate))
	}

	if stats.FailedOps > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedOps))
	}

	fmt.Fprintf(a.stderr, "\nStats: %s\n", strings.Join(parts, " | "))
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
