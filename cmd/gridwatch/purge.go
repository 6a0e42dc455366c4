package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/config"
	"github.com/nao1215/gridwatch/internal/retention"
)

// NewPurgeCmd creates the purge command.
func NewPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete resolved findings and old exports now",
		Long: `Purge applies the retention rules once:

- Resolved findings last seen before the retention age are deleted, unless
  someone commented on them. Open findings and comments are never deleted.
- Stored checks older than the retention age are deleted.
- Exports and screenshots in the artifact directory older than the
  retention age are deleted.

Running purge twice in a row deletes nothing the second time. 'gridwatch watch'
runs the same rules on a schedule.

Examples:
  gridwatch purge
  gridwatch purge --max-age 24h`,
		Args: cobra.NoArgs,
		RunE: runPurgeCmd,
	}

	cmd.Flags().Duration("max-age", config.DefaultRetentionMaxAge,
		"Age after which resolved findings and exports are deleted")
	cmd.Flags().Bool("no-sweep", false, "Do not sweep the artifact directory")

	return cmd
}

// runPurgeCmd executes the purge command.
func runPurgeCmd(cmd *cobra.Command, _ []string) error {
	noSweep, err := cmd.Flags().GetBool("no-sweep")
	if err != nil {
		return err
	}

	a, err := setup(cmd, func(cfg *config.Config) error {
		var err error
		cfg.RetentionMaxAge, err = cmd.Flags().GetDuration("max-age")
		return err
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	now := time.Now()
	maxAge := a.cfg.RetentionMaxAge

	var failures int
	for _, m := range a.retentionManagers() {
		res, err := m.Purge(ctx, now, maxAge)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: deleted %d findings, %d stored checks, %d artifacts\n",
			m.Target(), res.Findings, res.Runs, res.Artifacts)
		for _, rerr := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", rerr)
		}
		failures += len(res.Errors)
	}

	if !noSweep {
		n, errs := retention.SweepArtifacts(a.cfg.ArtifactDir, retention.DefaultSweepPatterns, now, maxAge, a.logger)
		fmt.Fprintf(a.out, "%s: deleted %d files\n", a.cfg.ArtifactDir, n)
		for _, rerr := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", rerr)
		}
		failures += len(errs)
	}

	if failures > 0 {
		return fmt.Errorf("%d files could not be deleted", failures)
	}
	return nil
}
