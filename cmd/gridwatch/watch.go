package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/gridwatch/internal/api"
	"github.com/nao1215/gridwatch/internal/config"
	"github.com/nao1215/gridwatch/internal/pipeline"
	"github.com/nao1215/gridwatch/internal/report"
	"github.com/nao1215/gridwatch/internal/retention"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check the configured tables periodically",
		Long: `Watch checks every selected target immediately and then on every interval
until it is interrupted.

In the background, resolved findings nobody commented on and raw exports are
purged once they are older than the retention age. With --listen, the
findings, comments and column catalog are served over HTTP, and checks can
be started with POST /checks.

Examples:
  # Check every 30 minutes (default) and deliver results
  gridwatch watch

  # Check every 10 minutes and serve the HTTP API
  gridwatch watch --interval 10m --listen 127.0.0.1:8080

  # Keep resolved findings for an hour
  gridwatch watch --retention-max-age 1h`,
		Args: cobra.NoArgs,
		RunE: runWatchCmd,
	}

	addCheckFlags(cmd)
	addReportFlags(cmd)

	cmd.Flags().DurationP("interval", "i", config.DefaultWatchInterval, "Time between checks")
	cmd.Flags().Duration("retention-max-age", config.DefaultRetentionMaxAge,
		"Age after which resolved findings and exports are purged")
	cmd.Flags().Duration("retention-interval", config.DefaultRetentionInterval,
		"Time between retention runs")
	cmd.Flags().StringP("listen", "l", "",
		"Serve the HTTP API on this address (e.g. "+config.DefaultListenAddr+")")
	cmd.Flags().StringSlice("cors-origin", nil, "Origins allowed to call the HTTP API (default: any)")

	return cmd
}

// readWatchFlags copies the watch flags into cfg.
func readWatchFlags(cmd *cobra.Command, cfg *config.Config) error {
	if err := readCheckFlags(cmd, cfg); err != nil {
		return err
	}

	var err error
	cfg.WatchInterval, err = cmd.Flags().GetDuration("interval")
	if err != nil {
		return err
	}

	cfg.RetentionMaxAge, err = cmd.Flags().GetDuration("retention-max-age")
	if err != nil {
		return err
	}

	cfg.RetentionInterval, err = cmd.Flags().GetDuration("retention-interval")
	if err != nil {
		return err
	}

	cfg.ListenAddr, err = cmd.Flags().GetString("listen")
	return err
}

// runWatchCmd executes the watch command.
func runWatchCmd(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, func(cfg *config.Config) error {
		return readWatchFlags(cmd, cfg)
	})
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := readCheckOptions(cmd)
	if err != nil {
		return err
	}

	origins, err := cmd.Flags().GetStringSlice("cors-origin")
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	out, closeOut, err := openOutput(a.cfg.ReportFile, a.out)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // report file is closed on exit

	writer, err := report.NewWriter(reportFormat(a.cfg), out,
		report.WithVerbose(a.cfg.Verbose),
		report.WithShowResolved(!opts.hideResolved),
	)
	if err != nil {
		return err
	}

	return a.watch(ctx, a.checkers(opts), writer, origins)
}

// watch runs the check loop, the retention scheduler and the optional API
// until ctx is cancelled. The first failing component stops the others.
func (a *app) watch(ctx context.Context, checkers []*pipeline.Checker, writer report.Writer, origins []string) error {
	cfg := a.cfg

	a.logger.Info("starting watch",
		"targets", len(checkers),
		"interval", cfg.WatchInterval,
		"retention", cfg.RetentionMaxAge,
		"listen", cfg.ListenAddr,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.checkLoop(gctx, checkers, writer)
	})

	scheduler := retention.NewScheduler(a.retentionManagers(), cfg.RetentionInterval, cfg.RetentionMaxAge,
		retention.WithSweep(cfg.ArtifactDir, nil),
		retention.WithSchedulerLogger(a.logger),
	)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if cfg.ListenAddr != "" {
		targets := make([]api.Target, 0, len(checkers))
		for _, c := range checkers {
			targets = append(targets, api.Target{Store: c.Store(), Checker: c})
		}
		apiOpts := []api.Option{api.WithLogger(a.logger)}
		if len(origins) > 0 {
			apiOpts = append(apiOpts, api.WithAllowedOrigins(origins))
		}
		srv := api.NewServer(targets, apiOpts...)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.ListenAddr)
		})
	}

	return g.Wait()
}

// checkLoop checks all targets now and then on every interval. Failed
// checks are logged; the loop only ends with ctx.
func (a *app) checkLoop(ctx context.Context, checkers []*pipeline.Checker, writer report.Writer) error {
	ticker := time.NewTicker(a.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		failed, err := a.checkAll(ctx, checkers, writer)
		if err != nil && ctx.Err() == nil {
			a.logger.Error("check round failed", "error", err)
		}
		if len(failed) > 0 {
			a.logger.Warn("checks failed", "targets", failed)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// retentionManagers returns one retention manager per target.
func (a *app) retentionManagers() []*retention.Manager {
	managers := make([]*retention.Manager, 0, len(a.targets))
	for _, t := range a.targets {
		opts := []retention.Option{
			retention.WithArtifacts(a.artifacts),
			retention.WithLogger(a.logger.With("target", t.Name)),
		}
		if t.runs != nil {
			opts = append(opts, retention.WithRunPruner(t.runs))
		}
		managers = append(managers, retention.NewManager(t.store, opts...))
	}
	return managers
}
