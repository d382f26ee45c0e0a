package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/relgraph/internal/intro"
	"github.com/scrypster/relgraph/internal/notify"
	"github.com/scrypster/relgraph/internal/report"
	"github.com/scrypster/relgraph/internal/server"
	"github.com/scrypster/relgraph/internal/storage/memory"
	"github.com/scrypster/relgraph/pkg/types"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := openSession(ctx, opts, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			// The server starts without a snapshot; /health reports it and
			// POST /api/reload retries.
			if _, err := sess.svc.Reload(ctx); err != nil {
				sess.logger.Error("initial snapshot load failed", "error", err)
			}

			publisher := report.NewPublisher(sess.backend.results, sess.logger)
			handler := server.New(sess.cfg, sess.svc, server.WithPublisher(publisher), server.WithLogger(sess.logger))
			addr, done, err := server.Start(ctx, sess.cfg, handler, sess.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relgraph API running at http://%s\n", addr)

			if every := sess.cfg.Snapshot.Reload; every > 0 {
				go reloadLoop(ctx, sess, every)
			}
			stopWatchers := startWatchers(ctx, sess)
			defer stopWatchers()

			<-ctx.Done()
			sess.logger.Info("shutting down")
			return <-done
		},
	}
}

// reloadLoop refreshes the snapshot every interval until ctx is done. A
// failed reload keeps the current session.
func reloadLoop(ctx context.Context, sess *session, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sess.svc.Reload(ctx); err != nil && ctx.Err() == nil {
				sess.logger.Error("background reload failed", "error", err)
			}
		}
	}
}

// startWatchers reloads the snapshot on graph events from other processes
// and, for the file engine, on fixture changes. Watch failures are logged and
// leave serving unaffected.
func startWatchers(ctx context.Context, sess *session) func() {
	var stops []func()
	reload := func(reason string) {
		if ctx.Err() != nil {
			return
		}
		if sess.backend.fixture != nil {
			f, err := memory.LoadFixture(sess.cfg.Storage.FixturePath)
			if err != nil {
				sess.logger.Error("fixture reload failed", "error", err)
				return
			}
			if err := sess.backend.fixture.Replace(ctx, f); err != nil {
				sess.logger.Error("fixture reload failed", "error", err)
				return
			}
		}
		if _, err := sess.svc.Reload(ctx); err != nil {
			sess.logger.Error("reload failed", "reason", reason, "error", err)
			return
		}
		sess.logger.Info("snapshot reloaded", "reason", reason)
	}

	ew := notify.NewEventWatcher(sess.cfg.Snapshot.EventsDir, sess.logger, func(e notify.Event) {
		if e.Type == notify.EventGraphUpdated {
			reload("event from " + e.Source)
		}
	})
	if err := ew.Start(); err != nil {
		sess.logger.Warn("graph event watcher disabled", "dir", sess.cfg.Snapshot.EventsDir, "error", err)
	} else {
		stops = append(stops, ew.Stop)
	}

	if sess.backend.fixture != nil {
		pw, err := notify.WatchPath(sess.cfg.Storage.FixturePath, 0, sess.logger, func() { reload("fixture changed") })
		if err != nil {
			sess.logger.Warn("fixture watcher disabled", "error", err)
		} else {
			stops = append(stops, pw.Stop)
		}
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// warmFlags are the flags shared by intros and publish.
type warmFlags struct {
	maxResults  int
	maxHops     int
	maxSeeds    int
	minStrength float64
	strategies  []string
	seeds       []string
	query       string
}

func (f *warmFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxResults, "max-results", 0, "number of introductions per target (0 = configured default)")
	cmd.Flags().IntVar(&f.maxHops, "max-hops", 0, "maximum path length (0 = configured default)")
	cmd.Flags().IntVar(&f.maxSeeds, "max-seeds", 0, "keep only the most influential seeds (0 = all)")
	cmd.Flags().Float64Var(&f.minStrength, "min-strength", 0, "drop paths with lower cumulative strength")
	cmd.Flags().StringSliceVar(&f.strategies, "strategies", nil, "strategies to run (shortest, strongest, hub, organization)")
	cmd.Flags().StringSliceVar(&f.seeds, "seeds", nil, "seed entity ids (default: internal persons)")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "free-text context for semantic scoring")
}

func (f *warmFlags) options(cmd *cobra.Command) (intro.WarmOptions, error) {
	strategies, err := parseStrategies(f.strategies)
	if err != nil {
		return intro.WarmOptions{}, err
	}
	return intro.WarmOptions{
		MaxResults:      f.maxResults,
		MaxHops:         f.maxHops,
		MinPathStrength: strengthFlag(cmd, "min-strength", f.minStrength),
		Strategies:      strategies,
		Seeds:           f.seeds,
		MaxSeeds:        f.maxSeeds,
		Query:           f.query,
	}, nil
}

func newIntrosCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  warmFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "intros TARGET [TARGET...]",
		Short: "Find warm introductions to one or more targets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wo, err := flags.options(cmd)
			if err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				res, err := sess.svc.FindWarmIntroductions(cmd.Context(), args[0], wo)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, res)
				}
				return writeWarm(out, res)
			}

			items, err := sess.svc.FindWarmIntroductionsBatch(cmd.Context(), args, wo)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, items)
			}
			for _, item := range items {
				if item.Error != "" {
					fmt.Fprintf(out, "%s: error: %s\n\n", item.Target, item.Error)
					continue
				}
				if err := writeWarm(out, item.Result); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newPathsCmd(opts *rootOptions) *cobra.Command {
	var (
		mode        string
		strategies  []string
		maxHops     int
		maxPaths    int
		minStrength float64
		query       string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "paths SOURCE TARGET",
		Short: "Find ranked paths between two entities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseStrategies(strategies)
			if err != nil {
				return err
			}
			po := intro.PathOptions{
				Strategies:      parsed,
				MaxHops:         maxHops,
				MaxPaths:        maxPaths,
				MinPathStrength: strengthFlag(cmd, "min-strength", minStrength),
				Query:           query,
			}

			sess, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			var res *intro.PathResult
			switch mode {
			case "introduction":
				res, err = sess.svc.FindIntroductionPaths(cmd.Context(), args[0], args[1], po)
			case "optimal":
				res, err = sess.svc.FindOptimalPaths(cmd.Context(), args[0], args[1], po)
			default:
				return fmt.Errorf("unknown mode %q (want introduction or optimal)", mode)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			return writePaths(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "introduction", "introduction or optimal")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "strategies to run (default depends on mode)")
	cmd.Flags().IntVar(&maxHops, "max-hops", 0, "maximum path length (0 = configured default)")
	cmd.Flags().IntVar(&maxPaths, "max-paths", 0, "maximum paths returned (0 = configured default)")
	cmd.Flags().Float64Var(&minStrength, "min-strength", 0, "drop paths with lower cumulative strength")
	cmd.Flags().StringVarP(&query, "query", "q", "", "free-text context for semantic scoring")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newConnectivityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connectivity ENTITY",
		Short: "Print the connectivity summary of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			summary, err := sess.svc.AnalyzeConnectivity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if summary == nil {
				return fmt.Errorf("entity %q not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
}

func newInsightsCmd(opts *rootOptions) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Print network insights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			ins, err := sess.svc.ComputeNetworkInsights(cmd.Context(), top)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ins)
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "number of top influencers (0 = configured default)")
	return cmd
}

func newPublishCmd(opts *rootOptions) *cobra.Command {
	var (
		flags    warmFlags
		insights bool
	)
	cmd := &cobra.Command{
		Use:   "publish [TARGET...]",
		Short: "Persist warm introductions for targets and, optionally, network insights",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !insights {
				return fmt.Errorf("nothing to publish: give targets or --insights")
			}
			wo, err := flags.options(cmd)
			if err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			publisher := report.NewPublisher(sess.backend.results, sess.logger)
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				items, err := sess.svc.FindWarmIntroductionsBatch(ctx, args, wo)
				if err != nil {
					return err
				}
				for _, item := range items {
					if item.Error != "" {
						sess.logger.Error("skipping target", "target", item.Target, "error", item.Error)
						continue
					}
					n, err := publisher.PublishIntroductions(ctx, item.Target, item.Result.Introductions)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %d introduction paths published\n", item.Target, n)
				}
			}

			if insights {
				ins, err := sess.svc.ComputeNetworkInsights(ctx, 0)
				if err != nil {
					return err
				}
				if err := publisher.PublishInsights(ctx, ins); err != nil {
					return err
				}
				fmt.Fprintf(out, "network insights %s published\n", ins.ID)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&insights, "insights", false, "also publish network insights")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import PATH",
		Short: "Upsert entities and edges from a YAML/JSON fixture file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := memory.LoadFixture(args[0])
			if err != nil {
				return err
			}
			sess, err := openSession(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			if err := sess.backend.writer.UpsertEntities(ctx, f.Entities); err != nil {
				return fmt.Errorf("import entities: %w", err)
			}
			if err := sess.backend.writer.UpsertEdges(ctx, f.Edges); err != nil {
				return fmt.Errorf("import edges: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entities and %d edges\n", len(f.Entities), len(f.Edges))

			if err := notify.NewEventWriter(sess.cfg.Snapshot.EventsDir).Notify(notify.EventGraphUpdated, "import "+args[0]); err != nil {
				sess.logger.Warn("failed to notify running servers", "error", err)
			}
			return nil
		},
	}
}

// strengthFlag returns nil unless the flag was given, so the configured
// threshold applies by default and --min-strength 0 disables it.
func strengthFlag(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return intro.Strength(v)
}

func parseStrategies(names []string) ([]types.Strategy, error) {
	var out []types.Strategy
	for _, name := range names {
		st, err := types.ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
