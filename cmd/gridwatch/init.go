package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/config"
)

//go:embed templates/gridwatch.yaml
var configTemplate embed.FS

// templatePath is the template inside configTemplate.
const templatePath = "templates/gridwatch.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new gridwatch configuration file",
		Long: `Initialize creates a new .gridwatch.yaml configuration file in the current directory.

The generated file includes:
- Emptiness rules and column descriptions shared by all targets
- Commented examples for named targets, stable columns and selectors
- Delivery settings for chat and webhook notifications

Examples:
  # Create .gridwatch.yaml in current directory
  gridwatch init

  # Create config file at a specific path
  gridwatch init -o myconfig.yaml

  # Force overwrite existing file
  gridwatch init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold chat tokens.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - The URL and stable columns of each monitored table")
	fmt.Fprintln(out, "  - What counts as an empty cell")
	fmt.Fprintln(out, "  - Where results are delivered")

	return nil
}
