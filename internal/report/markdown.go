package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/gridwatch/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, for example as a wiki
// page that lists what the care team still has to fill in. Open findings
// per column are drawn as a mermaid pie chart.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run in Markdown format.
func (w *MarkdownWriter) Write(run *model.CheckRun) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeSummary(md, run)
	w.writeOpen(md, run)
	w.writeResolved(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteCatalog outputs the column catalog as a Markdown document with sample
// values, the reference an assistant or a new colleague reads first.
func (w *MarkdownWriter) WriteCatalog(target string, columns []model.ColumnInfo) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Columns of " + target)
	md.PlainText("")
	if len(columns) == 0 {
		md.Note("No columns seen yet. Run a check first.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, 0, len(columns))
	guessed := 0
	for _, c := range columns {
		samples := "-"
		if len(c.Samples) > 0 {
			quoted := make([]string, len(c.Samples))
			for i, s := range c.Samples {
				quoted[i] = "`" + truncateString(s, 30) + "`"
			}
			samples = strings.Join(quoted, ", ")
		}
		name := c.Name
		if c.Guessed {
			name += " *"
			guessed++
		}
		rows = append(rows, []string{
			name,
			c.FirstSeen.Format("2006-01-02"),
			c.LastSeen.Format("2006-01-02"),
			samples,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Column", "First seen", "Last seen", "Sample values"},
		Rows:   rows,
	})
	md.PlainText("")
	if guessed > 0 {
		md.Note("Columns marked with * had no header text; their names were inferred.")
		md.PlainText("")
	}
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeHeader writes the report header with check information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.CheckRun) {
	md.H1("Empty Cell Report: " + run.Target)
	md.PlainText("")

	rows := [][]string{
		{"URL", "`" + run.URL + "`"},
		{"Checked at", run.RunAt.Format("2006-01-02 15:04:05 MST")},
		{"Status", w.getStatusText(run)},
	}
	if run.Snapshot != nil {
		rows = append(rows,
			[]string{"Rows", strconv.Itoa(len(run.Snapshot.Rows))},
			[]string{"Strategy", run.Snapshot.Strategy})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on run state.
func (w *MarkdownWriter) getStatusText(run *model.CheckRun) string {
	switch {
	case run.Error != "":
		return "❌ Error - " + run.Error
	case run.TimedOut:
		return "⚠️ Timed Out (partial results)"
	case run.Partial:
		return "⚠️ Partial"
	default:
		return "✅ Complete"
	}
}

// writeSummary writes the transition counts, chart and alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, run *model.CheckRun) {
	s := run.Stats
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"🆕 New", strconv.Itoa(s.New)},
			{"⏳ Persisting", strconv.Itoa(s.Persisting)},
			{"✅ Resolved", strconv.Itoa(s.Resolved)},
			{"**Open**", "**" + strconv.Itoa(s.Open) + "**"},
		},
	})
	md.PlainText("")

	if s.Open > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, run)

	if run.Summary != "" {
		md.H3("Assessment")
		md.PlainText("")
		md.PlainText(run.Summary)
		md.PlainText("")
	}
}

// writePieChart writes a mermaid pie chart of open cells per column.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Stats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Empty Cells by Column"),
		piechart.WithShowData(true),
	)
	for _, c := range s.SortedColumns() {
		chart.LabelAndIntValue(c.Column, uint64(c.Count)) //nolint:gosec // counts are never negative
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the state of the table.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, run *model.CheckRun) {
	s := run.Stats
	switch {
	case run.Error != "" || run.Partial:
		md.Cautionf("The table was only partly read. Cells on rows that were not loaded are neither reported nor resolved.")
	case s.New > 0:
		md.Warningf("%d cell(s) became empty since the last check.", s.New)
	case s.Open > 0:
		md.Importantf("%d cell(s) are still empty.", s.Open)
	default:
		md.Tip("All cells are filled.")
	}
	md.PlainText("")
}

// writeOpen writes one table of open cells per column.
func (w *MarkdownWriter) writeOpen(md *markdown.Markdown, run *model.CheckRun) {
	md.H2("Empty Cells")
	md.PlainText("")

	open := run.OpenFindings()
	if len(open) == 0 {
		md.PlainText("No empty cells.")
		md.PlainText("")
		return
	}

	for _, g := range groupByColumn(open) {
		md.H3(g.Column + " (" + strconv.Itoa(len(g.Findings)) + ")")
		md.PlainText("")
		rows := make([][]string, len(g.Findings))
		for i, f := range g.Findings {
			note := f.Comment
			if note == "" {
				note = f.AINote
			}
			if note == "" {
				note = "-"
			}
			rows[i] = []string{
				truncateString(cellLabel(f), 50),
				string(f.Status),
				f.FirstSeenRun.Format("2006-01-02 15:04"),
				truncateString(note, 60),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Row", "Status", "Empty since", "Note"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writeResolved lists cells filled by this run.
func (w *MarkdownWriter) writeResolved(md *markdown.Markdown, run *model.CheckRun) {
	resolved := run.ResolvedThisRun()
	if len(resolved) == 0 {
		return
	}
	md.H2("Filled Since Last Check")
	md.PlainText("")
	items := make([]string, len(resolved))
	for i, f := range resolved {
		items[i] = cellLabel(f) + " / " + f.ColumnName
	}
	md.BulletList(items...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by gridwatch*")
}
