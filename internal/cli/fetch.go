package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/feedhue/internal/download"
	"github.com/jmylchreest/feedhue/internal/pipeline"
	"github.com/jmylchreest/feedhue/internal/security"
	"github.com/jmylchreest/feedhue/internal/session"
)

func newFetchCmd(o *options) *cobra.Command {
	var (
		out   outputOptions
		since string
		until string
		keep  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <username>",
		Short: "Fetch an account's images and print their palette",
		Long: `Fetch the images an account posted between two dates and print their palette.

Dates are YYYY-MM-DD and inclusive. Without --until the range ends today;
without --since it starts --default-range before the end.

Downloaded images are removed afterwards unless --keep is given.`,
		Example: `  feedhue fetch natgeo --since 2024-05-01 --until 2024-05-31
  feedhue fetch natgeo --default-range 168h --format table --keep`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.cfg.Validate(); err != nil {
				return err
			}
			if err := out.validate(); err != nil {
				return err
			}

			username := security.NormalizeUsername(args[0])
			r, err := download.ParseDateRange(since, until, time.Now(), o.cfg.DefaultRange)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runFetch(ctx, cmd, o, &out, pipeline.Request{Username: username, Since: r.Since, Until: r.Until}, keep)
		},
	}

	o.cfg.RegisterPaletteFlags(cmd.Flags())
	o.cfg.RegisterFetchFlags(cmd.Flags())
	cmd.Flags().StringVar(&o.cfg.ScratchDir, "scratch-dir", o.cfg.ScratchDir, "directory for downloaded images (default: a temp dir)")
	cmd.Flags().DurationVar(&o.cfg.DefaultRange, "default-range", o.cfg.DefaultRange, "range length when --since is not given")
	cmd.Flags().StringVar(&since, "since", "", "first day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "last day of the range (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep downloaded images")
	out.register(cmd)
	return cmd
}

func runFetch(ctx context.Context, cmd *cobra.Command, o *options, out *outputOptions, req pipeline.Request, keep bool) (err error) {
	sessions, err := session.NewManager(o.cfg.ScratchDir, o.logger.Named("session"))
	if err != nil {
		return fmt.Errorf("failed to create scratch storage: %w", err)
	}
	defer func() {
		if keep {
			return
		}
		if tdErr := sessions.Teardown(); tdErr != nil && err == nil {
			err = tdErr
		}
	}()

	p, err := buildPipeline(&o.cfg, sessions, nil, o.logger)
	if err != nil {
		return err
	}

	res, err := p.Run(ctx, req)
	if err != nil {
		return err
	}

	o.logger.Info("fetched",
		"username", res.Username,
		"since", req.Since.Format(time.DateOnly),
		"until", req.Until.Format(time.DateOnly),
		"images", res.ImageCount,
		"failed", res.ImagesFailed)
	if keep {
		if sess, err := sessions.Get(res.SessionID); err == nil {
			o.logger.Info("images kept", "dir", sess.Dir)
		}
	}

	return out.write(cmd, res.Palette)
}
