package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/gridwatch/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run in JSON format.
func (w *JSONWriter) Write(run *model.CheckRun) (int, error) {
	return w.writeJSON(run)
}

// WriteCatalog outputs the catalog in JSON format.
func (w *JSONWriter) WriteCatalog(target string, columns []model.ColumnInfo) (int, error) {
	if columns == nil {
		columns = []model.ColumnInfo{}
	}
	return w.writeJSON(struct {
		Target  string             `json:"target"`
		Columns []model.ColumnInfo `json:"columns"`
	}{target, columns})
}

// WriteExport outputs an export document.
func (w *JSONWriter) WriteExport(doc *model.ExportDocument) (int, error) {
	return w.writeJSON(doc)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// ErrUnsupportedExport is returned by DecodeExport for documents written by
// a newer, incompatible version.
var ErrUnsupportedExport = errors.New("unsupported export document version")

// EncodeExport returns the indented JSON of doc.
func EncodeExport(doc *model.ExportDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeExport reads an export document. The stats stored in the document
// are replaced by stats recomputed from its findings, so a hand-edited file
// cannot carry inconsistent counts into the store.
func DecodeExport(r io.Reader) (*model.ExportDocument, error) {
	var doc model.ExportDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	if doc.Version == 0 || doc.Version > model.ExportVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedExport, doc.Version)
	}
	for i, f := range doc.Findings {
		if f.ID == "" || f.RowIdentity == "" || f.ColumnName == "" {
			return nil, fmt.Errorf("failed to decode export: finding %d lacks id, row identity or column", i)
		}
	}
	if doc.Findings == nil {
		doc.Findings = []model.Finding{}
	}
	if doc.Comments == nil {
		doc.Comments = []model.Comment{}
	}
	doc.Stats = doc.RecomputeStats()
	return &doc, nil
}

// ExportKind is the artifact kind of per-check export files,
// giving names like empty_cells_20260302_080000.json.
const ExportKind = "empty_cells"

// ExportFileName returns the export file name of a run.
func ExportFileName(runAt time.Time) string {
	return fmt.Sprintf("%s_%s.json", ExportKind, runAt.UTC().Format("20060102_150405"))
}
