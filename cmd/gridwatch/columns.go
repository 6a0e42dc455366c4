package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/config"
	"github.com/nao1215/gridwatch/internal/report"
)

// NewColumnsCmd creates the columns command.
func NewColumnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "List every column seen on the monitored tables",
		Long: `Columns prints the column catalog of each target: every column any check has
seen, when it was first and last seen, and a few sample values. Columns whose
names had to be guessed because the page had no header are marked.

The Markdown output documents the table for people configuring emptiness
rules and column descriptions.

Examples:
  gridwatch columns
  gridwatch columns --markdown -o docs/columns.md`,
		Args: cobra.NoArgs,
		RunE: runColumnsCmd,
	}

	addReportFlags(cmd)

	return cmd
}

// runColumnsCmd executes the columns command.
func runColumnsCmd(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, func(cfg *config.Config) error {
		return readReportFlags(cmd, cfg)
	})
	if err != nil {
		return err
	}
	defer a.Close()

	out, closeOut, err := openOutput(a.cfg.ReportFile, a.out)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // report file is closed on exit

	writer, err := report.NewWriter(reportFormat(a.cfg), out, report.WithVerbose(a.cfg.Verbose))
	if err != nil {
		return err
	}
	for _, t := range a.targets {
		if _, err := writer.WriteCatalog(t.Name, t.store.Columns()); err != nil {
			return fmt.Errorf("failed to write columns of %s: %w", t.Name, err)
		}
	}
	return nil
}
