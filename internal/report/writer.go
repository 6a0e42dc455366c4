package report

import (
	"fmt"
	"io"

	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
)

// Writer defines the interface for report output.
// Implementations write check results in various formats.
type Writer interface {
	// Write outputs the result of one check.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.CheckRun) (int, error)

	// WriteCatalog outputs the column catalog of a target.
	WriteCatalog(target string, columns []model.ColumnInfo) (int, error)
}

// Format names an output format.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// NewWriter returns the writer for format. textOpts only apply to the text
// format.
func NewWriter(format Format, output io.Writer, textOpts ...SimpleWriterOption) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output, textOpts...), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// RunFromState builds a CheckRun view of a committed state, so stored
// findings can be printed with the same writers as a fresh check.
func RunFromState(st *findings.State) *model.CheckRun {
	runAt := st.CommittedAt
	url := ""
	if st.Snapshot != nil {
		runAt = st.Snapshot.RunTimestamp
		url = st.Snapshot.SourceURL
	}
	run := model.NewCheckRun(st.Target, url, runAt)
	run.Snapshot = st.Snapshot
	run.Findings = append(run.Findings, st.Findings...)
	run.Stats = st.Stats
	run.Summary = st.Summary
	if st.Snapshot != nil {
		run.Partial = st.Snapshot.Partial
		run.Error = st.Snapshot.Error
	}
	return run
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText describes how complete a run is.
func statusText(run *model.CheckRun) string {
	switch {
	case run.Error != "":
		return "ERROR - " + run.Error
	case run.TimedOut:
		return "TIMED OUT (partial results)"
	case run.Partial:
		return "PARTIAL (some rows may be missing)"
	default:
		return "Complete"
	}
}

// cellLabel describes where an empty cell is, for people.
func cellLabel(f model.Finding) string {
	label := f.RowLabel
	if label == "" {
		label = "row " + shortID(f.RowIdentity)
	}
	if f.Table != "" {
		return f.Table + ": " + label
	}
	return label
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
