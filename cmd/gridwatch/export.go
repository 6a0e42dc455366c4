package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/report"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the latest snapshot and findings as a JSON document",
		Long: `Export writes the export document of one target: the latest snapshot, every
finding, the comments and the column catalog. 'gridwatch import' reads it
back, for example to move a target to another machine.

The document contains raw cell values. Keep it as private as the table.

Examples:
  # Print to stdout
  gridwatch export -t ward-a

  # Write empty_cells_<time>.json into a directory
  gridwatch export -t ward-a -d backups/`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("output", "o", "", "Write the document to this file")
	cmd.Flags().StringP("dir", "d", "", "Write the document into this directory under its default name")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, _ []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}
	if output != "" && dir != "" {
		return errors.New("--output and --dir cannot be used together")
	}

	a, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.only()
	if err != nil {
		return err
	}

	now := time.Now()
	data, err := report.EncodeExport(t.store.Current().Export(now))
	if err != nil {
		return err
	}

	if dir != "" {
		output = filepath.Join(dir, report.ExportFileName(now))
	}
	if output == "" {
		_, err := a.out.Write(data)
		return err
	}

	if err := ensureParentDir(output); err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d findings of %s to %s\n",
		len(t.store.Current().Findings), t.Name, output)
	return nil
}
