// Command relgraph runs the relationship graph engine: an HTTP API server
// plus one-shot queries and result publishing from the command line.
//
// Configuration comes from RELGRAPH_* environment variables; scoring and
// influence parameters can be tuned with a YAML file (--tuning).
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scrypster/relgraph/internal/config"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	tuning string
	debug  bool
	logOut io.Writer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logOut: os.Stderr}

	root := &cobra.Command{
		Use:           "relgraph",
		Short:         "Relationship graph intelligence engine",
		Long:          "relgraph finds warm introduction paths and influence metrics over a relationship graph.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.tuning, "tuning", "", "YAML tuning file (overrides RELGRAPH_TUNING_FILE)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newIntrosCmd(opts),
		newPathsCmd(opts),
		newConnectivityCmd(opts),
		newInsightsCmd(opts),
		newPublishCmd(opts),
		newImportCmd(opts),
	)
	return root
}

// newLogger returns a slog.Logger writing through charmbracelet/log.
func newLogger(w io.Writer, debug bool, levelName string) *slog.Logger {
	level := log.InfoLevel
	if parsed, err := log.ParseLevel(levelName); err == nil {
		level = parsed
	}
	if debug {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	return slog.New(handler)
}

// loadConfig loads the environment configuration and applies --tuning.
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.tuning != "" {
		if err := cfg.LoadTuning(opts.tuning); err != nil {
			return nil, nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}
	logger := newLogger(opts.logOut, opts.debug, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
