package commands

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/bot"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var noBundle bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot",
		Long: `Run the chat bot.

Interactions are read one per line from stdin as "<command> [argument]" and
answered on stdout. The game data bundle is checked at startup and then
refreshed in the background, every bundle_interval or on the cron
bundle_schedule when one is set. Expired cache entries are swept every
sweep_interval. When metrics_addr is set, Prometheus metrics
are served on /metrics.

Both RIOT_API_KEY and TOKEN must be set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := app.Config.Validate(true); err != nil {
				return err
			}
			if err := app.Config.ValidateSchedule(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, app, cmd.InOrStdin(), cmd.OutOrStdout(), !noBundle)
		},
	}

	cmd.Flags().BoolVar(&noBundle, "no-bundle", false, "Do not refresh the game data bundle")
	return cmd
}

func runServe(ctx context.Context, app *appctx.App, in io.Reader, out io.Writer, refreshBundle bool) error {
	log := app.Logger
	reg := chatRegistry(app)

	scheduler, err := startScheduler(ctx, app, refreshBundle)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	if app.Config.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              app.Config.MetricsAddr,
			Handler:           metricsMux(app),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", zap.String("addr", app.Config.MetricsAddr))
	}

	names := make([]string, 0)
	for _, c := range reg.Commands() {
		names = append(names, c.Name())
	}
	log.Info("bot ready", zap.Strings("commands", names))

	console := bot.NewConsole(newDispatcher(app, reg), reg, out, log)
	err = console.Serve(ctx, in)
	log.Info("bot stopped", zap.Any("stats", app.Collector.Summary()))
	return err
}

func metricsMux(app *appctx.App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}

// startScheduler checks the game data bundle once, then registers the
// periodic sweep and bundle refresh. Jobs never overlap with themselves.
func startScheduler(ctx context.Context, app *appctx.App, refreshBundle bool) (*gocron.Scheduler, error) {
	log := app.Logger
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if d := app.Config.SweepInterval; d > 0 {
		_, err := s.Every(d).WaitForSchedule().Do(func() {
			removed := app.Resolver.Sweep()
			log.Debug("cache sweep", zap.Int("removed", removed))
		})
		if err != nil {
			return nil, err
		}
	}

	refresh := func() {
		b, err := app.Resolver.EnsureLatestBundle(ctx, app.Config.BundleDir())
		if err != nil {
			log.Warn("bundle refresh failed", zap.Error(err))
			return
		}
		log.Info("bundle checked",
			zap.String("version", b.Version),
			zap.Stringer("status", b.Status),
			zap.String("path", b.Path))
	}

	var bundleJob *gocron.Scheduler
	switch {
	case !refreshBundle:
	case app.Config.BundleSchedule != "":
		bundleJob = s.Cron(app.Config.BundleSchedule)
		if next, err := app.Config.NextBundleRefresh(time.Now().UTC()); err == nil {
			log.Info("bundle refresh scheduled", zap.String("schedule", app.Config.BundleSchedule), zap.Time("next", next))
		}
	case app.Config.BundleInterval > 0:
		bundleJob = s.Every(app.Config.BundleInterval).WaitForSchedule()
	}

	if refreshBundle {
		refresh()
	}
	if bundleJob != nil {
		if _, err := bundleJob.Do(refresh); err != nil {
			return nil, err
		}
	}

	s.StartAsync()
	return s, nil
}
