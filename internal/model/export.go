package model

import "time"

// ExportVersion is the current export document format version.
const ExportVersion = 1

// ExportDocument is the JSON document of the latest snapshot and its findings.
// Chat users receive it as a file and the import command reads it back.
type ExportDocument struct {
	Version     int            `json:"version"`
	Target      string         `json:"target,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
	Snapshot    *TableSnapshot `json:"snapshot,omitempty"`
	Findings    []Finding      `json:"findings"`
	Comments    []Comment      `json:"comments"`
	Columns     []ColumnInfo   `json:"columns,omitempty"`
	Stats       Stats          `json:"stats"`
	Summary     string         `json:"summary,omitempty"`
}

// RecomputeStats derives the stats from the document's findings and snapshot.
func (d *ExportDocument) RecomputeStats() Stats {
	return ComputeStats(d.Findings, d.Snapshot)
}
