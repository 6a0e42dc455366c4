package findings

import "errors"

var (
	// ErrCheckInProgress is returned by BeginCheck while another check holds the run lock.
	// Callers should report "check already in progress" and not retry automatically.
	ErrCheckInProgress = errors.New("check already in progress")

	// ErrNotFound is returned for unknown or purged finding ids.
	ErrNotFound = errors.New("finding not found")

	// ErrCheckClosed is returned when a Check is committed after Release or a previous Commit.
	ErrCheckClosed = errors.New("check already committed or released")

	// ErrStaleRun is returned when run notes target a snapshot that is no longer the latest.
	ErrStaleRun = errors.New("state changed since the run committed")

	// ErrEmptyComment is returned when a comment body is blank.
	ErrEmptyComment = errors.New("comment body is empty")
)
