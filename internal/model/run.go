package model

import (
	"sort"
	"time"
)

// CheckRun accumulates everything one check produces as it flows through the pipeline:
// the rendered page, the snapshot, the committed findings and the summary.
//
// A single mutable struct is passed between pipeline steps, the same way a report
// object travels through a scan. Only the committed findings are shared with readers;
// the run itself belongs to the goroutine executing the check.
type CheckRun struct {
	// Target is the configured target name.
	Target string `json:"target"`

	// URL is the page that was requested.
	URL string `json:"url"`

	// RunAt is the run timestamp shared by the snapshot and every finding it touches.
	RunAt time.Time `json:"run_at"`

	// Duration is the wall time of the check.
	Duration time.Duration `json:"duration"`

	// HTML is the rendered DOM handed from the render step to the extract step.
	HTML string `json:"-"`

	// FinalURL and Title describe the rendered page.
	FinalURL string `json:"final_url,omitempty"`
	Title    string `json:"title,omitempty"`

	// TimedOut is true when the render or the overall check ran out of time.
	TimedOut bool `json:"timed_out"`

	// Partial is true when the DOM was captured in an incomplete state.
	Partial bool `json:"partial"`

	// Screenshot is the artifact path of the screenshot taken on failure or in debug mode.
	Screenshot string `json:"screenshot,omitempty"`

	Snapshot *TableSnapshot `json:"snapshot,omitempty"`

	// Findings is the full committed finding set after the diff.
	Findings []Finding `json:"findings"`
	Stats    Stats     `json:"stats"`

	// Summary is the AI summary, or the plain stats text when the summarizer failed.
	Summary         string `json:"summary,omitempty"`
	SummaryFallback bool   `json:"summary_fallback,omitempty"`

	// ExportPath is where the JSON export document of this run was written.
	ExportPath string `json:"export_path,omitempty"`

	// PerformedSteps lists pipeline steps in execution order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Warnings holds recoverable problems (render timeout, no table found).
	Warnings []string `json:"warnings,omitempty"`

	// Error is set when the check failed outright.
	Error string `json:"error,omitempty"`
}

// NewCheckRun creates a run for target at runAt.
func NewCheckRun(target, url string, runAt time.Time) *CheckRun {
	return &CheckRun{
		Target:   target,
		URL:      url,
		RunAt:    runAt,
		Findings: []Finding{},
		Stats:    Stats{RunAt: runAt, ByColumn: map[string]int{}},
	}
}

// AddWarning records a recoverable problem.
func (r *CheckRun) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// OpenFindings returns the open findings ordered by column, then row label.
func (r *CheckRun) OpenFindings() []Finding {
	var open []Finding
	for _, f := range r.Findings {
		if f.IsOpen() {
			open = append(open, f)
		}
	}
	SortForDisplay(open)
	return open
}

// ResolvedThisRun returns findings resolved by this run.
func (r *CheckRun) ResolvedThisRun() []Finding {
	var resolved []Finding
	for _, f := range r.Findings {
		if f.Status == StatusResolved && f.LastSeenRun.Equal(r.RunAt) {
			resolved = append(resolved, f)
		}
	}
	SortForDisplay(resolved)
	return resolved
}

// SortForDisplay orders findings by table, column, row label and id.
func SortForDisplay(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.ColumnName != b.ColumnName {
			return a.ColumnName < b.ColumnName
		}
		if a.RowLabel != b.RowLabel {
			return a.RowLabel < b.RowLabel
		}
		return a.ID < b.ID
	})
}
