package model

import (
	"strings"
	"time"
)

// IdentityMode records how row identities of a snapshot were derived.
type IdentityMode string

const (
	// IdentityStableColumns means identities hash only the configured stable columns.
	// Rows keep their identity when they move or when unrelated columns appear.
	IdentityStableColumns IdentityMode = "stable_columns"

	// IdentityFullRow means no stable column was available and identities hash every value.
	// Editing any cell changes the identity, so diffing is degraded: a filled cell shows up
	// as a resolved finding plus findings on a "new" row.
	IdentityFullRow IdentityMode = "full_row"
)

// Cell is a single captured value. It is immutable once captured.
type Cell struct {
	RowIdentity string `json:"row_identity"`
	ColumnName  string `json:"column_name"`
	RawValue    string `json:"raw_value"`

	// IsEmpty is derived by the classifier and only cached for the run that computed it.
	IsEmpty bool `json:"is_empty"`
}

// Row is one table row: an ordered column -> value mapping plus its derived identity.
type Row struct {
	// Identity is stable across runs as long as the stable column values do not change.
	Identity string `json:"row_identity"`

	// Table names the grid container the row was read from when a page holds several grids.
	Table string `json:"table,omitempty"`

	// Label is a short human readable description (stable column values) for messages.
	Label string `json:"label,omitempty"`

	// Columns preserves the on-page column order of this row.
	Columns []string `json:"columns"`

	// Values holds the raw, unnormalized cell text keyed by column name.
	Values map[string]string `json:"values"`
}

// Value returns the raw value of column and whether the row has that column.
func (r Row) Value(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Cells returns the row's cells in column order. IsEmpty is left false;
// classification happens in the findings package.
func (r Row) Cells() []Cell {
	cells := make([]Cell, 0, len(r.Columns))
	for _, col := range r.Columns {
		cells = append(cells, Cell{
			RowIdentity: r.Identity,
			ColumnName:  col,
			RawValue:    r.Values[col],
		})
	}
	return cells
}

// TableSnapshot is every row captured in one run. A snapshot is never mutated after
// the extractor returns it.
type TableSnapshot struct {
	RunTimestamp time.Time `json:"run_timestamp"`
	SourceURL    string    `json:"source_url"`

	// Partial is set when rendering timed out or extraction failed. The differ will not
	// resolve findings for rows a partial snapshot did not capture.
	Partial bool `json:"partial"`

	// ColumnsGuessed is set when any column name came from a fallback instead of a header.
	ColumnsGuessed bool `json:"columns_guessed"`

	Strategy     string       `json:"strategy,omitempty"`
	IdentityMode IdentityMode `json:"identity_mode,omitempty"`
	Error        string       `json:"error,omitempty"`

	// Columns is the ordered union of all row columns.
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTableSnapshot creates an empty snapshot for sourceURL at runAt.
func NewTableSnapshot(sourceURL string, runAt time.Time) *TableSnapshot {
	return &TableSnapshot{
		RunTimestamp: runAt,
		SourceURL:    sourceURL,
		Columns:      []string{},
		Rows:         []Row{},
	}
}

// RowIndex returns the snapshot rows keyed by identity.
func (s *TableSnapshot) RowIndex() map[string]Row {
	idx := make(map[string]Row, len(s.Rows))
	for _, r := range s.Rows {
		idx[r.Identity] = r
	}
	return idx
}

// CellCount returns the number of captured cells.
func (s *TableSnapshot) CellCount() int {
	n := 0
	for _, r := range s.Rows {
		n += len(r.Columns)
	}
	return n
}

// Tables returns the distinct table names in row order.
func (s *TableSnapshot) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, r := range s.Rows {
		if r.Table == "" || seen[r.Table] {
			continue
		}
		seen[r.Table] = true
		tables = append(tables, r.Table)
	}
	return tables
}

// NormalizeValue collapses runs of whitespace and trims the value.
// Identity hashing and labels use the normalized form; classification uses the raw value.
func NormalizeValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
