package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/database"
	"github.com/nao1215/gridwatch/internal/model"
)

// Trend of the open findings between two runs.
const (
	trendWorsened  = "worsened"
	trendImproved  = "improved"
	trendUnchanged = "unchanged"
)

// errNoDatabase is returned by history with --no-persist.
var errNoDatabase = errors.New("history needs the database (remove --no-persist)")

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored checks and compare them",
		Long: `History lists the stored checks of the selected targets with their statistics.
With --run-id it shows one check and how it compares with the check before:
whether the number of empty cells grew or shrank, and which columns changed.

Stored checks older than the retention age are removed by 'gridwatch purge'
and by the retention scheduler of 'gridwatch watch'.

Examples:
  # List stored checks of every target
  gridwatch history

  # List targets with stored checks
  gridwatch history --list-targets

  # Show check 42 of ward-a compared with the one before
  gridwatch history -t ward-a --run-id 42

  # Output as JSON or Markdown
  gridwatch history --json
  gridwatch history --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-targets", "L", false, "List targets that have stored checks")
	cmd.Flags().Int64P("run-id", "i", 0, "Show one stored check (use the list to see ids)")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of checks listed per target (0: all)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown")

	return cmd
}

// historyOptions holds the flags of the history command.
type historyOptions struct {
	listTargets bool
	runID       int64
	limit       int
	json        bool
	markdown    bool
}

func readHistoryOptions(cmd *cobra.Command) (historyOptions, error) {
	var o historyOptions
	var err error

	if o.listTargets, err = cmd.Flags().GetBool("list-targets"); err != nil {
		return o, err
	}
	if o.runID, err = cmd.Flags().GetInt64("run-id"); err != nil {
		return o, err
	}
	if o.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return o, err
	}
	if o.json, err = cmd.Flags().GetBool("json"); err != nil {
		return o, err
	}
	if o.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return o, err
	}
	if o.json && o.markdown {
		return o, errors.New("--json and --markdown cannot be used together")
	}
	return o, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	o, err := readHistoryOptions(cmd)
	if err != nil {
		return err
	}

	a, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.db == nil {
		return errNoDatabase
	}

	ctx := context.Background()

	if o.listTargets {
		return listStoredTargets(ctx, a.out, a.db)
	}

	if o.runID != 0 {
		t, err := a.only()
		if err != nil {
			return err
		}
		cmp, err := compareRun(ctx, t.runs, o.runID)
		if err != nil {
			return err
		}
		switch {
		case o.json:
			return writeJSON(a.out, cmp)
		case o.markdown:
			return writeComparisonMarkdown(a.out, cmp)
		default:
			writeComparisonText(a.out, cmp)
			return nil
		}
	}

	histories := make([]targetHistory, 0, len(a.targets))
	for _, t := range a.targets {
		runs, err := t.runs.ListRuns(ctx)
		if err != nil {
			return fmt.Errorf("failed to get history of %s: %w", t.Name, err)
		}
		if o.limit > 0 && len(runs) > o.limit {
			runs = runs[:o.limit]
		}
		histories = append(histories, targetHistory{Target: t.Name, Runs: runs})
	}

	switch {
	case o.json:
		return writeJSON(a.out, histories)
	case o.markdown:
		return writeHistoryMarkdown(a.out, histories)
	default:
		writeHistoryText(a.out, histories)
		return nil
	}
}

// targetHistory is the stored runs of one target, newest first.
type targetHistory struct {
	Target string               `json:"target"`
	Runs   []database.RunRecord `json:"runs"`
}

// listStoredTargets lists every target that has stored runs.
func listStoredTargets(ctx context.Context, w io.Writer, db *database.FindingsDB) error {
	targets, err := db.ListTargets(ctx)
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		fmt.Fprintln(w, "No stored checks found in the database.")
		fmt.Fprintln(w, "\nUse 'gridwatch check' to run a check.")
		return nil
	}

	fmt.Fprintf(w, "Targets with stored checks (%d):\n\n", len(targets))
	for _, t := range targets {
		fmt.Fprintf(w, "  • %s\n", t)
	}
	fmt.Fprintln(w, "\nUse 'gridwatch history -t <target>' to see its checks.")
	return nil
}

func writeHistoryText(w io.Writer, histories []targetHistory) {
	for _, h := range histories {
		if len(h.Runs) == 0 {
			fmt.Fprintf(w, "No stored checks for %s\n\n", h.Target)
			continue
		}
		fmt.Fprintf(w, "Checks of %s (%d):\n\n", h.Target, len(h.Runs))
		fmt.Fprintf(w, "  %-6s  %-19s  %-5s  %s\n", "ID", "Date", "Open", "Changes")
		fmt.Fprintln(w, "  "+strings.Repeat("-", 60))
		for _, r := range h.Runs {
			fmt.Fprintf(w, "  %-6d  %-19s  %-5d  %s\n",
				r.ID, r.RunTimestamp.Local().Format(time.DateTime), r.Stats.Open, formatChanges(r))
		}
		fmt.Fprintln(w)
	}
}

func writeHistoryMarkdown(w io.Writer, histories []targetHistory) error {
	md := markdown.NewMarkdown(w)
	md.H1("Check history")
	for _, h := range histories {
		md.H2(h.Target)
		if len(h.Runs) == 0 {
			md.PlainText("No stored checks.")
			continue
		}
		rows := make([][]string, 0, len(h.Runs))
		for _, r := range h.Runs {
			rows = append(rows, []string{
				strconv.FormatInt(r.ID, 10),
				r.RunTimestamp.UTC().Format(time.RFC3339),
				strconv.Itoa(r.Stats.Open),
				formatChanges(r),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"ID", "Checked at", "Open", "Changes"},
			Rows:   rows,
		})
	}
	return md.Build()
}

// formatChanges describes the transitions of a run.
func formatChanges(r database.RunRecord) string {
	s := fmt.Sprintf("+%d new, %d still empty, -%d filled", r.Stats.New, r.Stats.Persisting, r.Stats.Resolved)
	if r.Partial {
		s += " (partial)"
	}
	return s
}

// Comparison is a stored run compared with the run before it.
type Comparison struct {
	Target   string              `json:"target"`
	Current  *database.RunRecord `json:"current"`
	Previous *database.RunRecord `json:"previous,omitempty"`
	Trend    string              `json:"trend"`
	Delta    int                 `json:"delta"`

	// Columns holds the per-column change of open findings, sorted by name.
	Columns []ColumnDelta `json:"columns"`
}

// ColumnDelta is the change of open findings in one column.
type ColumnDelta struct {
	Column   string `json:"column"`
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
}

// compareRun loads run id and the run stored before it.
func compareRun(ctx context.Context, runs *database.TargetStore, id int64) (*Comparison, error) {
	current, err := runs.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get check %d: %w", id, err)
	}
	if current == nil {
		return nil, fmt.Errorf("check %d not found", id)
	}

	all, err := runs.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	var previous *database.RunRecord
	for i := range all {
		// Newest first, so the first older id is the run before.
		if all[i].ID < id {
			previous = &all[i]
			break
		}
	}
	return compareRecords(current, previous), nil
}

// compareRecords compares two runs. previous may be nil for the first run.
func compareRecords(current, previous *database.RunRecord) *Comparison {
	cmp := &Comparison{
		Target:   current.Target,
		Current:  current,
		Previous: previous,
		Trend:    trendUnchanged,
	}

	var prevStats model.Stats
	if previous != nil {
		prevStats = previous.Stats
	}
	cmp.Delta = current.Stats.Open - prevStats.Open
	switch {
	case cmp.Delta > 0:
		cmp.Trend = trendWorsened
	case cmp.Delta < 0:
		cmp.Trend = trendImproved
	}

	names := make(map[string]bool)
	for c := range current.Stats.ByColumn {
		names[c] = true
	}
	for c := range prevStats.ByColumn {
		names[c] = true
	}
	for c := range names {
		d := ColumnDelta{Column: c, Previous: prevStats.ByColumn[c], Current: current.Stats.ByColumn[c]}
		if d.Previous != d.Current {
			cmp.Columns = append(cmp.Columns, d)
		}
	}
	sort.Slice(cmp.Columns, func(i, j int) bool {
		return cmp.Columns[i].Column < cmp.Columns[j].Column
	})
	return cmp
}

func writeComparisonText(w io.Writer, cmp *Comparison) {
	cur := cmp.Current
	fmt.Fprintf(w, "Check %d of %s (%s)\n", cur.ID, cmp.Target, cur.RunTimestamp.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  URL:      %s\n", cur.SourceURL)
	fmt.Fprintf(w, "  Strategy: %s\n", cur.Strategy)
	if cur.Snapshot != nil {
		fmt.Fprintf(w, "  Rows:     %d in %d columns\n", len(cur.Snapshot.Rows), len(cur.Snapshot.Columns))
	}
	fmt.Fprintf(w, "  Open:     %d (%s)\n", cur.Stats.Open, formatChanges(*cur))
	if cur.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", cur.Summary)
	}

	fmt.Fprintln(w)
	if cmp.Previous == nil {
		fmt.Fprintln(w, "This is the first stored check.")
		return
	}
	fmt.Fprintf(w, "Compared with check %d (%s): %s %s\n",
		cmp.Previous.ID, cmp.Previous.RunTimestamp.Local().Format(time.DateTime),
		formatTrend(cmp.Trend), formatDelta(cmp.Delta))
	for _, c := range cmp.Columns {
		fmt.Fprintf(w, "  %-24s %d -> %d\n", c.Column, c.Previous, c.Current)
	}
}

func writeComparisonMarkdown(w io.Writer, cmp *Comparison) error {
	cur := cmp.Current
	md := markdown.NewMarkdown(w)
	md.H1(fmt.Sprintf("Check %d of %s", cur.ID, cmp.Target))
	md.BulletList(
		"Checked at: "+cur.RunTimestamp.UTC().Format(time.RFC3339),
		"Open: "+strconv.Itoa(cur.Stats.Open),
		"Changes: "+formatChanges(*cur),
	)
	if cmp.Previous == nil {
		md.Note("This is the first stored check.")
		return md.Build()
	}

	md.H2(fmt.Sprintf("Compared with check %d", cmp.Previous.ID))
	md.PlainText(formatTrend(cmp.Trend) + " " + formatDelta(cmp.Delta))
	if len(cmp.Columns) > 0 {
		rows := make([][]string, 0, len(cmp.Columns))
		for _, c := range cmp.Columns {
			rows = append(rows, []string{c.Column, strconv.Itoa(c.Previous), strconv.Itoa(c.Current)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Column", "Before", "Now"},
			Rows:   rows,
		})
	}
	return md.Build()
}

func formatTrend(trend string) string {
	switch trend {
	case trendWorsened:
		return "⬆ more empty cells"
	case trendImproved:
		return "⬇ fewer empty cells"
	default:
		return "= same number of empty cells"
	}
}

func formatDelta(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("(+%d)", delta)
	}
	return fmt.Sprintf("(%d)", delta)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
