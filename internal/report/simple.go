package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/gridwatch/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal. It
// uses plain ASCII formatting, no ANSI colors.
type SimpleWriter struct {
	baseWriter

	// showResolved lists findings resolved by the run.
	showResolved bool

	// verbose adds row identities and raw values to each cell.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowResolved configures the writer to list resolved findings.
func WithShowResolved(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showResolved = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:   newBaseWriter(output),
		showResolved: true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run in human-readable format.
func (w *SimpleWriter) Write(run *model.CheckRun) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, run)
	w.writeSummary(&sb, run)
	w.writeOpen(&sb, run)
	if w.showResolved {
		w.writeResolved(&sb, run)
	}
	w.writeWarnings(&sb, run)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteCatalog outputs the column catalog as an aligned list.
func (w *SimpleWriter) WriteCatalog(target string, columns []model.ColumnInfo) (int, error) {
	var sb strings.Builder
	writeSection(&sb, "COLUMNS OF "+strings.ToUpper(target))

	if len(columns) == 0 {
		sb.WriteString("  No columns seen yet\n")
		return w.output.Write([]byte(sb.String()))
	}

	width := 0
	for _, c := range columns {
		width = max(width, len([]rune(c.Name)))
	}
	for _, c := range columns {
		guessed := ""
		if c.Guessed {
			guessed = " (guessed)"
		}
		sb.WriteString(fmt.Sprintf("  %-*s  first seen %s%s\n", width, c.Name, c.FirstSeen.Format("2006-01-02 15:04"), guessed))
		if len(c.Samples) > 0 {
			sb.WriteString(fmt.Sprintf("  %-*s  e.g. %s\n", width, "", strings.Join(c.Samples, ", ")))
		}
	}
	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with check information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *model.CheckRun) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       GRIDWATCH EMPTY CELL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Target:     %s\n", run.Target))
	sb.WriteString(fmt.Sprintf("URL:        %s\n", run.URL))
	sb.WriteString(fmt.Sprintf("Checked at: %s\n", run.RunAt.Format("2006-01-02 15:04:05 MST")))
	if run.Snapshot != nil {
		sb.WriteString(fmt.Sprintf("Rows:       %d (%s)\n", len(run.Snapshot.Rows), run.Snapshot.Strategy))
	}
	sb.WriteString(fmt.Sprintf("Status:     %s\n", statusText(run)))
	sb.WriteString("\n")
}

// writeSummary writes the transition counts and the per-column breakdown.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, run *model.CheckRun) {
	writeSection(sb, "SUMMARY")

	s := run.Stats
	sb.WriteString(fmt.Sprintf("  OPEN:       %d\n", s.Open))
	sb.WriteString(fmt.Sprintf("  NEW:        %d\n", s.New))
	sb.WriteString(fmt.Sprintf("  PERSISTING: %d\n", s.Persisting))
	sb.WriteString(fmt.Sprintf("  RESOLVED:   %d\n", s.Resolved))
	sb.WriteString("\n")

	if cols := s.SortedColumns(); len(cols) > 0 {
		sb.WriteString("  By column:\n")
		for _, c := range cols {
			sb.WriteString(fmt.Sprintf("    %-30s %d\n", c.Column, c.Count))
		}
		sb.WriteString("\n")
	}
	if run.Summary != "" {
		sb.WriteString(indent(run.Summary, "  "))
		sb.WriteString("\n\n")
	}
}

// writeOpen writes open findings grouped by column.
func (w *SimpleWriter) writeOpen(sb *strings.Builder, run *model.CheckRun) {
	open := run.OpenFindings()
	writeSection(sb, "EMPTY CELLS")
	if len(open) == 0 {
		sb.WriteString("  All cells are filled.\n\n")
		return
	}

	for _, g := range groupByColumn(open) {
		sb.WriteString(fmt.Sprintf("[%s] %d\n", g.Column, len(g.Findings)))
		for _, f := range g.Findings {
			marker := " "
			if f.Status == model.StatusNew {
				marker = "+"
			}
			sb.WriteString(fmt.Sprintf("  %s %s\n", marker, cellLabel(f)))
			if w.verbose {
				sb.WriteString(fmt.Sprintf("      id: %s  row: %s  since: %s\n",
					f.ID, f.RowIdentity, f.FirstSeenRun.Format("2006-01-02 15:04")))
			}
			if f.Comment != "" {
				sb.WriteString(fmt.Sprintf("      comment: %s\n", f.Comment))
			}
			if f.AINote != "" {
				sb.WriteString(fmt.Sprintf("      note: %s\n", f.AINote))
			}
		}
		sb.WriteString("\n")
	}
}

// writeResolved lists cells filled since the previous run.
func (w *SimpleWriter) writeResolved(sb *strings.Builder, run *model.CheckRun) {
	resolved := run.ResolvedThisRun()
	if len(resolved) == 0 {
		return
	}
	writeSection(sb, "FILLED SINCE LAST CHECK")
	for _, f := range resolved {
		sb.WriteString(fmt.Sprintf("  - %s / %s\n", cellLabel(f), f.ColumnName))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeWarnings(sb *strings.Builder, run *model.CheckRun) {
	if len(run.Warnings) == 0 {
		return
	}
	writeSection(sb, "WARNINGS")
	for _, warning := range run.Warnings {
		sb.WriteString(fmt.Sprintf("  ! %s\n", warning))
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by gridwatch\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
