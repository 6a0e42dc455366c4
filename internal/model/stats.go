package model

import (
	"sort"
	"time"
)

// Stats summarizes one diff run.
type Stats struct {
	RunAt time.Time `json:"run_at"`

	// Rows is the number of rows the snapshot captured.
	Rows int `json:"rows"`

	// New, Persisting and Resolved count the transitions made in this run.
	New        int `json:"new"`
	Persisting int `json:"persisting"`
	Resolved   int `json:"resolved"`

	// Open counts every open finding after the run, including ones a partial
	// snapshot left untouched.
	Open int `json:"open"`

	// ByColumn counts open findings per column.
	ByColumn map[string]int `json:"by_column"`

	Partial        bool `json:"partial"`
	ColumnsGuessed bool `json:"columns_guessed"`
}

// ComputeStats derives run statistics from a committed finding set. A transition counts
// for the run when the finding's last_seen_run equals the snapshot's run timestamp, so
// stats recomputed from an exported document match the ones the differ reported.
func ComputeStats(findings []Finding, snap *TableSnapshot) Stats {
	stats := Stats{ByColumn: make(map[string]int)}
	if snap != nil {
		stats.RunAt = snap.RunTimestamp
		stats.Rows = len(snap.Rows)
		stats.Partial = snap.Partial
		stats.ColumnsGuessed = snap.ColumnsGuessed
	}

	for _, f := range findings {
		touched := snap != nil && f.LastSeenRun.Equal(snap.RunTimestamp)
		switch f.Status {
		case StatusNew:
			if touched {
				stats.New++
			}
		case StatusPersisting:
			if touched {
				stats.Persisting++
			}
		case StatusResolved:
			if touched {
				stats.Resolved++
			}
		}
		if f.IsOpen() {
			stats.Open++
			stats.ByColumn[f.ColumnName]++
		}
	}
	return stats
}

// ColumnCount is one entry of a per-column breakdown.
type ColumnCount struct {
	Column string `json:"column"`
	Count  int    `json:"count"`
}

// SortedColumns returns the ByColumn breakdown ordered by count descending, then name.
func (s Stats) SortedColumns() []ColumnCount {
	out := make([]ColumnCount, 0, len(s.ByColumn))
	for col, n := range s.ByColumn {
		out = append(out, ColumnCount{Column: col, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Column < out[j].Column
	})
	return out
}
