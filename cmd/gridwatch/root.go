package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/config"
)

// NewRootCmd creates the root command for gridwatch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gridwatch",
		Short: "Find and track empty cells in a web table UI",
		Long: `gridwatch renders a web page that shows a data grid, finds the cells that
are blank and tracks them across checks. Each empty cell becomes a finding
that is new, persisting or resolved, and can carry comments.

Targets are configured in .gridwatch.yaml (see 'gridwatch init'). Without
a configuration file the public demo instance is checked.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .gridwatch.yaml in current or home directory)")
	cmd.PersistentFlags().StringSliceP("target", "t", nil,
		"Target names from the config file (default: all targets)")
	cmd.PersistentFlags().Bool("demo", false, "Use the public demo instance")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(), "Directory of the findings database")
	cmd.PersistentFlags().String("artifact-dir", config.XDGCacheDir(),
		"Directory for exports and screenshots")
	cmd.PersistentFlags().Bool("no-persist", false, "Keep findings in memory only")

	// Add subcommands
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewFindingsCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewColumnsCmd())
	cmd.AddCommand(NewCommentCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewImportCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
