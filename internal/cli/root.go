// Package cli provides the command-line interface for feedhue.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/feedhue/internal/config"
	"github.com/jmylchreest/feedhue/internal/version"
)

// options is the state shared by all commands.
type options struct {
	cfg    config.Config
	envErr error

	verbose  bool
	logLevel string
	logJSON  bool

	logger hclog.Logger
}

// NewRootCmd builds the feedhue command tree. Settings default to the
// FEEDHUE_* environment, which flags then override.
func NewRootCmd() *cobra.Command {
	o := &options{cfg: config.Default(), logger: hclog.NewNullLogger()}
	o.envErr = o.cfg.ApplyEnv(nil)

	rootCmd := &cobra.Command{
		Use:   "feedhue",
		Short: "Colour palettes from social media feeds",
		Long: `feedhue finds the handful of colours that summarise an account's posted
images over a date range.

Each image is reduced to its dominant colours with k-means clustering, then
the colours of all images are clustered again into one final palette.

Run it as a web service with "feedhue serve", fetch an account from the
command line with "feedhue fetch", or build a palette from local images
with "feedhue palette".`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if o.envErr != nil {
				return fmt.Errorf("invalid environment: %w", o.envErr)
			}
			logger, err := newLogger(cmd.ErrOrStderr(), o.verbose, o.logLevel, o.logJSON)
			if err != nil {
				return err
			}
			o.logger = logger
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&o.logJSON, "log-json", false, "write logs as JSON")

	rootCmd.SetVersionTemplate(version.String() + "\n")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd(o))
	rootCmd.AddCommand(newPaletteCmd(o))
	rootCmd.AddCommand(newFetchCmd(o))

	return rootCmd
}

// newLogger builds the root logger. --log-level wins over --verbose.
func newLogger(w io.Writer, verbose bool, level string, jsonFormat bool) (hclog.Logger, error) {
	lvl := hclog.Info
	if verbose {
		lvl = hclog.Debug
	}
	if level != "" {
		lvl = hclog.LevelFromString(strings.TrimSpace(level))
		if lvl == hclog.NoLevel {
			return nil, fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", level)
		}
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "feedhue",
		Level:      lvl,
		Output:     w,
		JSONFormat: jsonFormat,
		Color:      hclog.AutoColor,
	}), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information including build date, commit hash, and Go version.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
