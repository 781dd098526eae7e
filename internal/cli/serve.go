package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/feedhue/internal/metrics"
	"github.com/jmylchreest/feedhue/internal/server"
	"github.com/jmylchreest/feedhue/internal/session"
)

func newServeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the palette web service",
		Long: `Run the web service.

The service offers an HTML form at /, a JSON API at POST /api/v1/palette,
the fetched profile picture at /sessions/{id}/avatar, and Prometheus
metrics at /metrics.

Downloaded images live in a scratch directory that is removed on shutdown.`,
		Example: `  feedhue serve --feed-url https://feed.example.com/api
  FEEDHUE_FEED_URL=https://feed.example.com/api feedhue serve --addr :9000 -c 4 -n 6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), o)
		},
	}
	o.cfg.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, o *options) error {
	if err := o.cfg.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sessions, err := session.NewManager(o.cfg.ScratchDir, o.logger.Named("session"))
	if err != nil {
		return fmt.Errorf("failed to create scratch storage: %w", err)
	}

	p, err := buildPipeline(&o.cfg, sessions, m, o.logger)
	if err != nil {
		teardown(o, sessions)
		return err
	}

	srv, err := server.New(server.Config{
		Addr:            o.cfg.Addr,
		ShutdownTimeout: o.cfg.ShutdownTimeout,
		RequestTimeout:  o.cfg.RequestTimeout,
		DefaultRange:    o.cfg.DefaultRange,
		SessionTTL:      o.cfg.SessionTTL,
		SweepInterval:   o.cfg.SweepInterval,
	}, p, sessions, m, o.logger.Named("http"))
	if err != nil {
		teardown(o, sessions)
		return err
	}

	o.logger.Info("starting",
		"addr", o.cfg.Addr,
		"scratch", sessions.Root(),
		"colours", o.cfg.K,
		"final_colours", o.cfg.FinalK,
		"seed_mode", o.cfg.SeedMode)

	return srv.ListenAndServe(ctx)
}

// teardown removes scratch storage after a failed startup.
func teardown(o *options, sessions *session.Manager) {
	if err := sessions.Teardown(); err != nil {
		o.logger.Error("failed to remove scratch storage", "root", sessions.Root(), "error", err)
	}
}
