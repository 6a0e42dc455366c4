package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/report"
)

// NewImportCmd creates the import command.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace a target's findings with an export document",
		Long: `Import reads a document written by 'gridwatch export' or attached to a chat
message, and replaces the stored snapshot, findings and comments of the
target with it. Statistics are recomputed from the imported findings.

The import fails while a check of the target is running.

Examples:
  gridwatch import -t ward-a empty_cells_20250101_120000.json`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCmd,
	}

	return cmd
}

// runImportCmd executes the import command.
func runImportCmd(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.only()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	doc, err := report.DecodeExport(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if doc.Target != "" && doc.Target != t.Name {
		a.logger.Warn("importing the export of another target", "from", doc.Target, "into", t.Name)
	}

	st, err := t.store.Import(context.Background(), doc)
	if err != nil {
		return fmt.Errorf("failed to import into %s: %w", t.Name, err)
	}
	fmt.Fprintf(a.out, "Imported %d findings (%d open) and %d comments into %s\n",
		len(st.Findings), st.Stats.Open, len(st.Comments), t.Name)
	return nil
}
