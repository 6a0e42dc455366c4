package model

import "time"

// MaxColumnSamples bounds the sample values kept per catalog column.
const MaxColumnSamples = 3

// ColumnInfo describes one column ever observed on the monitored table.
type ColumnInfo struct {
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Guessed is true when the name came from a header fallback in the snapshot
	// that introduced it.
	Guessed bool `json:"guessed"`

	// Samples holds up to MaxColumnSamples distinct non-empty normalized values.
	Samples []string `json:"samples,omitempty"`
}

// ColumnCatalog is the append-only union of all snapshots' columns in discovery order.
// Merge returns a new catalog so that published store states are never mutated.
type ColumnCatalog struct {
	Columns []ColumnInfo `json:"columns"`
}

// Names returns the column names in discovery order.
func (c ColumnCatalog) Names() []string {
	names := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		names = append(names, col.Name)
	}
	return names
}

// Lookup returns the column named name.
func (c ColumnCatalog) Lookup(name string) (ColumnInfo, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnInfo{}, false
}

// Merge folds the snapshot's columns and sample values into a copy of the catalog.
// Row columns missing from the snapshot header are added after the header
// columns. Columns are never removed.
func (c ColumnCatalog) Merge(snap *TableSnapshot) ColumnCatalog {
	out := ColumnCatalog{Columns: make([]ColumnInfo, len(c.Columns))}
	index := make(map[string]int, len(c.Columns))
	for i, col := range c.Columns {
		col.Samples = append([]string(nil), col.Samples...)
		out.Columns[i] = col
		index[col.Name] = i
	}
	if snap == nil {
		return out
	}

	for _, name := range snap.Columns {
		if i, ok := index[name]; ok {
			if snap.RunTimestamp.After(out.Columns[i].LastSeen) {
				out.Columns[i].LastSeen = snap.RunTimestamp
			}
			continue
		}
		index[name] = len(out.Columns)
		out.Columns = append(out.Columns, ColumnInfo{
			Name:      name,
			FirstSeen: snap.RunTimestamp,
			LastSeen:  snap.RunTimestamp,
			Guessed:   snap.ColumnsGuessed,
		})
	}

	for _, row := range snap.Rows {
		for _, name := range row.Columns {
			i, ok := index[name]
			if !ok {
				i = len(out.Columns)
				index[name] = i
				out.Columns = append(out.Columns, ColumnInfo{
					Name:      name,
					FirstSeen: snap.RunTimestamp,
					LastSeen:  snap.RunTimestamp,
					Guessed:   snap.ColumnsGuessed,
				})
			}
			if len(out.Columns[i].Samples) >= MaxColumnSamples {
				continue
			}
			v := NormalizeValue(row.Values[name])
			if v == "" || containsString(out.Columns[i].Samples, v) {
				continue
			}
			out.Columns[i].Samples = append(out.Columns[i].Samples, v)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
