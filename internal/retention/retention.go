package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
)

// RetentionError reports an artifact that could not be deleted.
// It is logged and the purge continues.
type RetentionError struct {
	Path  string
	Cause error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("failed to delete %s: %v", e.Path, e.Cause)
}

func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// RunPruner deletes stored run snapshots older than a cutoff.
type RunPruner interface {
	PruneRuns(ctx context.Context, cutoff time.Time) (int, error)
}

// Result summarizes one purge.
type Result struct {
	// Findings is the number of findings deleted.
	Findings int

	// Artifacts is the number of artifact files deleted.
	Artifacts int

	// Runs is the number of stored run snapshots deleted.
	Runs int

	// Errors holds the artifact deletions that failed.
	Errors []error
}

// Manager purges expired data of one target.
type Manager struct {
	store     *findings.Store
	artifacts *ArtifactStore
	runs      RunPruner
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithArtifacts makes Purge delete expired run artifacts.
func WithArtifacts(a *ArtifactStore) Option {
	return func(m *Manager) {
		m.artifacts = a
	}
}

// WithRunPruner makes Purge delete expired stored snapshots.
func WithRunPruner(p RunPruner) Option {
	return func(m *Manager) {
		m.runs = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns a manager for store.
func NewManager(store *findings.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Target returns the name of the managed target.
func (m *Manager) Target() string {
	return m.store.Target()
}

// Expired reports whether f may be purged at now: it is resolved, nobody
// commented on it and it was last seen more than maxAge ago.
func Expired(st *findings.State, f model.Finding, now time.Time, maxAge time.Duration) bool {
	return f.Status == model.StatusResolved &&
		!st.Pinned(f.ID) &&
		now.Sub(f.LastSeenRun) > maxAge
}

// Purge deletes resolved, uncommented findings last seen more than maxAge
// before now, then the artifacts of runs older than maxAge. Calling it again
// with the same now deletes nothing.
//
// Candidates are collected from the current state without any lock and
// re-checked against the latest state under the store's swap lock, so a
// finding that was re-opened or commented in between is kept.
func (m *Manager) Purge(ctx context.Context, now time.Time, maxAge time.Duration) (Result, error) {
	var res Result

	st := m.store.Current()
	var ids []string
	for _, f := range st.Findings {
		if Expired(st, f, now, maxAge) {
			ids = append(ids, f.ID)
		}
	}

	removed, err := m.store.RemoveFindings(ctx, ids, func(latest *findings.State, f model.Finding) bool {
		return Expired(latest, f, now, maxAge)
	})
	if err != nil {
		return res, fmt.Errorf("failed to purge findings of %s: %w", m.Target(), err)
	}
	res.Findings = len(removed)

	if m.artifacts != nil {
		for _, a := range m.artifacts.Expired(now, maxAge) {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			err := os.Remove(a.Path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				rerr := &RetentionError{Path: a.Path, Cause: err}
				res.Errors = append(res.Errors, rerr)
				m.logger.Warn("retention could not delete artifact", "path", a.Path, "error", err)
				continue
			}
			m.artifacts.Forget(a.Path)
			if err == nil {
				res.Artifacts++
			}
		}
	}

	if m.runs != nil {
		n, err := m.runs.PruneRuns(ctx, now.Add(-maxAge))
		if err != nil {
			return res, fmt.Errorf("failed to prune runs of %s: %w", m.Target(), err)
		}
		res.Runs = n
	}

	if res.Findings > 0 || res.Artifacts > 0 || res.Runs > 0 {
		m.logger.Info("retention purge",
			"target", m.Target(),
			"findings", res.Findings,
			"artifacts", res.Artifacts,
			"runs", res.Runs)
	}
	return res, nil
}
