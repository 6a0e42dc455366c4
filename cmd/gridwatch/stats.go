package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/summarize"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics of the last check",
		Long: `Stats prints how many cells were empty in the last check of each target,
how many of them are new, still empty or filled since the check before, and
the breakdown per column.

Examples:
  gridwatch stats
  gridwatch stats --json`,
		Args: cobra.NoArgs,
		RunE: runStatsCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output statistics as JSON")

	return cmd
}

// targetStats is the JSON form of the stats command.
type targetStats struct {
	Target    string      `json:"target"`
	CheckedAt time.Time   `json:"checked_at"`
	Stats     model.Stats `json:"stats"`
	Summary   string      `json:"summary,omitempty"`
}

// runStatsCmd executes the stats command.
func runStatsCmd(cmd *cobra.Command, _ []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	a, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	all := make([]targetStats, 0, len(a.targets))
	for _, t := range a.targets {
		st := t.store.Current()
		all = append(all, targetStats{
			Target:    t.Name,
			CheckedAt: st.Stats.RunAt,
			Stats:     st.Stats,
			Summary:   st.Summary,
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}

	for _, ts := range all {
		if ts.CheckedAt.IsZero() {
			fmt.Fprintf(a.out, "%s: not checked yet\n\n", ts.Target)
			continue
		}
		fmt.Fprintf(a.out, "%s (checked %s)\n", ts.Target, ts.CheckedAt.Local().Format(time.DateTime))
		fmt.Fprintln(a.out, summarize.PlainStats(ts.Stats))
		fmt.Fprintln(a.out)
	}
	return nil
}
