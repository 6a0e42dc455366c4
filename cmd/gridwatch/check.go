package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/config"
	"github.com/nao1215/gridwatch/internal/pipeline"
	"github.com/nao1215/gridwatch/internal/report"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the configured tables for empty cells once",
		Long: `Check renders every selected target, extracts its table and compares the
empty cells with the previous check.

Each empty cell is reported as new, persisting, or resolved when it was filled
since the previous check. The result is stored, written as a JSON export into
the artifact directory and, when configured, delivered to the chat.

Examples:
  # Check every target of the config file
  gridwatch check

  # Check the public demo instance
  gridwatch check --demo

  # Check one target and print a Markdown report
  gridwatch check -t ward-a --markdown

  # Check a saved page without launching a browser
  gridwatch check --html-file page.html

  # Print the chat messages instead of sending them
  gridwatch check --print-messages --no-deliver`,
		Args: cobra.NoArgs,
		RunE: runCheckCmd,
	}

	addCheckFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

// addCheckFlags adds the flags that control how a check runs.
func addCheckFlags(cmd *cobra.Command) {
	// Browser flags
	cmd.Flags().String("html-file", "", "Render a saved HTML file instead of launching a browser")
	cmd.Flags().Bool("headless", true, "Run the browser without a window")
	cmd.Flags().Bool("no-sandbox", false, "Disable the Chrome sandbox (needed as root in containers)")
	cmd.Flags().String("browser-bin", "", "Path to the Chrome binary (default: download or find one)")
	cmd.Flags().String("browser-url", "", "DevTools URL of an already running browser")
	cmd.Flags().Bool("debug-screenshots", false, "Save a screenshot after every page load")

	// Timing flags
	cmd.Flags().Duration("render-timeout", config.DefaultRenderTimeout,
		"Timeout for navigation and the ready signal")
	cmd.Flags().Duration("settle", config.DefaultSettle,
		"Time the table must stay unchanged after it appeared")
	cmd.Flags().Duration("check-timeout", config.DefaultCheckTimeout,
		"Timeout for a whole check; a slower check commits a partial result")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of targets checked concurrently")

	// Delivery flags
	cmd.Flags().Bool("no-deliver", false, "Do not send results to the chat or webhook")
	cmd.Flags().Bool("print-messages", false, "Write chat messages to stdout")
	cmd.Flags().Int("max-cells", config.DefaultMaxCellsPerColumn,
		"Empty cells listed per column in chat messages")
	cmd.Flags().Int("message-limit", config.DefaultMessageLimit, "Maximum length of one chat message")

	// Output flags
	cmd.Flags().Bool("hide-resolved", false, "Leave resolved findings out of the text report")
}

// addReportFlags adds the output format flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// readCheckFlags copies the check flags into cfg.
func readCheckFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error

	cfg.HTMLFile, err = cmd.Flags().GetString("html-file")
	if err != nil {
		return err
	}

	cfg.Headless, err = cmd.Flags().GetBool("headless")
	if err != nil {
		return err
	}

	cfg.NoSandbox, err = cmd.Flags().GetBool("no-sandbox")
	if err != nil {
		return err
	}

	cfg.BrowserBin, err = cmd.Flags().GetString("browser-bin")
	if err != nil {
		return err
	}

	cfg.BrowserURL, err = cmd.Flags().GetString("browser-url")
	if err != nil {
		return err
	}

	cfg.DebugScreenshots, err = cmd.Flags().GetBool("debug-screenshots")
	if err != nil {
		return err
	}

	cfg.RenderTimeout, err = cmd.Flags().GetDuration("render-timeout")
	if err != nil {
		return err
	}

	cfg.Settle, err = cmd.Flags().GetDuration("settle")
	if err != nil {
		return err
	}

	cfg.CheckTimeout, err = cmd.Flags().GetDuration("check-timeout")
	if err != nil {
		return err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return err
	}

	noDeliver, err := cmd.Flags().GetBool("no-deliver")
	if err != nil {
		return err
	}
	cfg.Deliver = !noDeliver

	cfg.MaxCellsPerColumn, err = cmd.Flags().GetInt("max-cells")
	if err != nil {
		return err
	}

	cfg.MessageLimit, err = cmd.Flags().GetInt("message-limit")
	if err != nil {
		return err
	}

	return readReportFlags(cmd, cfg)
}

// readReportFlags copies the output format flags into cfg.
func readReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	return err
}

// readCheckOptions reads the check flags that are not part of the config.
func readCheckOptions(cmd *cobra.Command) (checkOptions, error) {
	var opts checkOptions
	var err error

	opts.printMessages, err = cmd.Flags().GetBool("print-messages")
	if err != nil {
		return opts, err
	}

	opts.hideResolved, err = cmd.Flags().GetBool("hide-resolved")
	return opts, err
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, func(cfg *config.Config) error {
		return readCheckFlags(cmd, cfg)
	})
	if err != nil {
		return err
	}
	defer a.Close()

	opts, err := readCheckOptions(cmd)
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

	failed, err := a.checkAll(ctx, a.checkers(opts), writer)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("check failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

// checkers builds one checker per target.
func (a *app) checkers(opts checkOptions) []*pipeline.Checker {
	out := make([]*pipeline.Checker, 0, len(a.targets))
	for _, t := range a.targets {
		out = append(out, a.newChecker(t, opts))
	}
	return out
}

// checkAll checks every target once and writes each report as soon as its
// check completes. It returns the targets whose check failed outright; a
// partial result is only logged.
func (a *app) checkAll(ctx context.Context, checkers []*pipeline.Checker, writer report.Writer) ([]string, error) {
	bp := pipeline.NewBatchProcessor(
		pipeline.WithConcurrency(a.cfg.BatchSize),
		pipeline.WithBatchLogger(a.logger),
	)

	var (
		mu     sync.Mutex
		failed []string
	)
	err := bp.ProcessBatchWithCallback(ctx, checkers, func(r pipeline.Result, _ int) {
		mu.Lock()
		defer mu.Unlock()

		if _, err := writer.Write(r.Run); err != nil {
			a.logger.Error("report failed", "target", r.Target, "error", err)
		}

		switch {
		case r.Err == nil:
		case errors.Is(r.Err, pipeline.ErrPartialResult):
			a.logger.Warn("partial result", "target", r.Target, "error", r.Err)
		default:
			failed = append(failed, r.Target)
		}
	})
	return failed, err
}
