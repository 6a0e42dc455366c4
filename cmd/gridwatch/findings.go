package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/gridwatch/internal/config"
	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/report"
)

// NewFindingsCmd creates the findings command.
func NewFindingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Show the empty cells found by the last check",
		Long: `Findings prints the stored findings of the selected targets without running
a check. By default only open findings (new and persisting) are shown.

Examples:
  # Open findings of every target
  gridwatch findings

  # Include findings resolved by the last checks
  gridwatch findings --all

  # Only the Phone and Insurance columns, as YAML
  gridwatch findings --column Phone --column Insurance --yaml`,
		Args: cobra.NoArgs,
		RunE: runFindingsCmd,
	}

	cmd.Flags().BoolP("all", "a", false, "Include resolved findings")
	cmd.Flags().StringSlice("column", nil, "Only show these columns (case-insensitive)")
	cmd.Flags().String("table", "", "Only show findings of this table")
	cmd.Flags().BoolP("yaml", "y", false, "Output findings as YAML")
	addReportFlags(cmd)

	return cmd
}

// findingsQuery holds the filter flags of the findings command.
type findingsQuery struct {
	all    bool
	filter findings.Filter
	yaml   bool
}

func readFindingsQuery(cmd *cobra.Command) (findingsQuery, error) {
	var q findingsQuery
	var err error

	q.all, err = cmd.Flags().GetBool("all")
	if err != nil {
		return q, err
	}

	q.filter.Columns, err = cmd.Flags().GetStringSlice("column")
	if err != nil {
		return q, err
	}

	q.filter.Table, err = cmd.Flags().GetString("table")
	if err != nil {
		return q, err
	}

	q.yaml, err = cmd.Flags().GetBool("yaml")
	return q, err
}

// runFindingsCmd executes the findings command.
func runFindingsCmd(cmd *cobra.Command, _ []string) error {
	q, err := readFindingsQuery(cmd)
	if err != nil {
		return err
	}

	a, err := setup(cmd, func(cfg *config.Config) error {
		if err := readReportFlags(cmd, cfg); err != nil {
			return err
		}
		if q.yaml && (cfg.JSONReport || cfg.MarkdownReport) {
			return config.ErrConflictingReportFormats
		}
		return nil
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

	if q.yaml {
		return a.writeFindingsYAML(out, q)
	}

	writer, err := report.NewWriter(reportFormat(a.cfg), out, report.WithVerbose(a.cfg.Verbose))
	if err != nil {
		return err
	}
	for _, t := range a.targets {
		if _, err := writer.Write(findingsView(t.store.Current(), q)); err != nil {
			return fmt.Errorf("failed to write findings of %s: %w", t.Name, err)
		}
	}
	return nil
}

// findingsView is the stored state as a run holding only the queried findings.
func findingsView(st *findings.State, q findingsQuery) *model.CheckRun {
	run := report.RunFromState(st)
	if q.all {
		run.Findings = st.All(q.filter)
	} else {
		run.Findings = st.Open(q.filter)
	}
	return run
}

// findingYAML is the YAML form of a finding.
type findingYAML struct {
	ID        string    `yaml:"id"`
	Column    string    `yaml:"column"`
	Row       string    `yaml:"row"`
	Table     string    `yaml:"table,omitempty"`
	Status    string    `yaml:"status"`
	FirstSeen time.Time `yaml:"first_seen"`
	LastSeen  time.Time `yaml:"last_seen"`
	Comment   string    `yaml:"comment,omitempty"`
	AINote    string    `yaml:"ai_note,omitempty"`
}

// targetFindingsYAML groups findings by target.
type targetFindingsYAML struct {
	Target   string        `yaml:"target"`
	Open     int           `yaml:"open"`
	Findings []findingYAML `yaml:"findings"`
}

func (a *app) writeFindingsYAML(w io.Writer, q findingsQuery) error {
	docs := make([]targetFindingsYAML, 0, len(a.targets))
	for _, t := range a.targets {
		run := findingsView(t.store.Current(), q)
		doc := targetFindingsYAML{
			Target:   t.Name,
			Open:     run.Stats.Open,
			Findings: make([]findingYAML, 0, len(run.Findings)),
		}
		for _, f := range run.Findings {
			row := f.RowLabel
			if row == "" {
				row = f.RowIdentity
			}
			doc.Findings = append(doc.Findings, findingYAML{
				ID:        f.ID,
				Column:    f.ColumnName,
				Row:       row,
				Table:     f.Table,
				Status:    f.Status.String(),
				FirstSeen: f.FirstSeenRun,
				LastSeen:  f.LastSeenRun,
				Comment:   f.Comment,
				AINote:    f.AINote,
			})
		}
		docs = append(docs, doc)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(docs); err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}
	return enc.Close()
}
