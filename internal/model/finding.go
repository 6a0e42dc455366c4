package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a finding.
type Status string

const (
	// StatusNew marks a finding first observed in the latest run that touched it.
	StatusNew Status = "new"

	// StatusPersisting marks an open finding seen again in a later run.
	StatusPersisting Status = "persisting"

	// StatusResolved marks a finding whose cell is no longer empty, or whose row disappeared
	// from a complete snapshot. Resolved findings are terminal; a re-emptied cell gets a new finding.
	StatusResolved Status = "resolved"
)

// IsOpen reports whether the status counts as open (new or persisting).
func (s Status) IsOpen() bool {
	return s == StatusNew || s == StatusPersisting
}

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusNew:
		return StatusNew, nil
	case StatusPersisting:
		return StatusPersisting, nil
	case StatusResolved:
		return StatusResolved, nil
	default:
		return "", fmt.Errorf("unknown finding status %q", s)
	}
}

// Key identifies an open finding across runs.
type Key struct {
	RowIdentity string
	ColumnName  string
}

// Finding is an empty cell tracked across runs.
type Finding struct {
	// ID is a UUID assigned when the finding is created.
	ID string `json:"id"`

	RowIdentity string `json:"row_identity"`
	ColumnName  string `json:"column_name"`
	Status      Status `json:"status"`

	FirstSeenRun time.Time `json:"first_seen_run"`
	LastSeenRun  time.Time `json:"last_seen_run"`

	// Table, RowLabel and RawValue are display hints refreshed whenever the cell is seen.
	Table    string `json:"table,omitempty"`
	RowLabel string `json:"row_label,omitempty"`
	RawValue string `json:"raw_value,omitempty"`

	// Comment is the body of the latest operator comment.
	Comment string `json:"comment,omitempty"`

	// AINote is the summarizer's note for this finding.
	AINote string `json:"ai_note,omitempty"`
}

// Key returns the (row identity, column) pair of the finding.
func (f Finding) Key() Key {
	return Key{RowIdentity: f.RowIdentity, ColumnName: f.ColumnName}
}

// IsOpen reports whether the finding is new or persisting.
func (f Finding) IsOpen() bool {
	return f.Status.IsOpen()
}

// Comment is an operator note attached to a finding. Retention never deletes comments,
// and a commented finding is never purged.
type Comment struct {
	ID        string    `json:"id"`
	FindingID string    `json:"finding_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
