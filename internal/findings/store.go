package findings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/gridwatch/internal/classify"
	"github.com/nao1215/gridwatch/internal/model"
)

// Persister writes committed states to durable storage. Store calls it under
// the swap lock before publishing, so a failing persister leaves the in-memory
// state unchanged.
type Persister interface {
	// SaveRun stores the run's snapshot, stats, catalog and the full finding set.
	SaveRun(ctx context.Context, state *State) error

	// SaveFindings upserts findings changed outside a run (notes, comments).
	SaveFindings(ctx context.Context, findings []model.Finding) error

	// SaveComment stores a new comment.
	SaveComment(ctx context.Context, comment model.Comment) error

	// DeleteFindings removes purged findings.
	DeleteFindings(ctx context.Context, ids []string) error

	// SaveSummary attaches the summarizer text to the stored run that
	// committed run.
	SaveSummary(ctx context.Context, run *State, summary string) error
}

// Store holds the committed findings of one target.
type Store struct {
	target string
	state  atomic.Pointer[State]

	// runMu is the single-run lock, held for the whole check.
	runMu sync.Mutex

	// swapMu serializes publishing of new states. It is only held while a
	// new state is built from the latest one and persisted.
	swapMu sync.Mutex

	classifier *classify.Classifier
	persister  Persister
	newID      func() string
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRules sets the emptiness rules used by Commit.
func WithRules(rules classify.Rules) Option {
	return func(s *Store) {
		s.classifier = classify.New(rules)
	}
}

// WithPersister sets durable storage.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithIDGenerator sets the finding and comment id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		s.newID = fn
	}
}

// WithClock sets the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		s.now = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithInitialState publishes a previously persisted state.
func WithInitialState(st *State) Option {
	return func(s *Store) {
		if st != nil {
			s.state.Store(st)
		}
	}
}

// NewStore creates a store for target.
func NewStore(target string, opts ...Option) *Store {
	s := &Store{
		target:     target,
		classifier: classify.New(classify.DefaultRules()),
		newID:      uuid.NewString,
		now:        time.Now,
		logger:     slog.Default(),
	}
	s.state.Store(emptyState(target))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target returns the target name.
func (s *Store) Target() string {
	return s.target
}

// Current returns the latest committed state. It never blocks.
func (s *Store) Current() *State {
	return s.state.Load()
}

// Check is a held run lock. It allows one Commit and is held until Release,
// so everything that belongs to the run, such as summaries and exports,
// finishes before the next check can begin. Release is idempotent.
type Check struct {
	store     *Store
	once      sync.Once
	mu        sync.Mutex
	done      bool
	committed bool
}

// BeginCheck acquires the run lock or fails immediately with ErrCheckInProgress.
func (s *Store) BeginCheck() (*Check, error) {
	if !s.runMu.TryLock() {
		return nil, ErrCheckInProgress
	}
	return &Check{store: s}, nil
}

// Release gives up the run lock without committing.
func (c *Check) Release() {
	c.once.Do(func() {
		c.mu.Lock()
		c.done = true
		c.mu.Unlock()
		c.store.runMu.Unlock()
	})
}

// Commit diffs snap against the latest state, persists and publishes the
// result. A check commits at most once; the lock stays held until Release.
func (c *Check) Commit(ctx context.Context, snap *model.TableSnapshot) (*State, error) {
	c.mu.Lock()
	if c.done || c.committed {
		c.mu.Unlock()
		return nil, ErrCheckClosed
	}
	c.committed = true
	c.mu.Unlock()
	return c.store.commit(ctx, snap)
}

func (s *Store) commit(ctx context.Context, snap *model.TableSnapshot) (*State, error) {
	if snap == nil {
		return nil, fmt.Errorf("commit %s: nil snapshot", s.target)
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	prev := s.state.Load()
	findings, stats := diff(prev.Findings, snap, s.classifier, s.newID)

	next := prev.clone()
	next.Revision = prev.Revision + 1
	next.CommittedAt = s.now()
	next.Snapshot = snap
	next.Findings = findings
	next.Stats = stats
	next.Catalog = prev.Catalog.Merge(snap)
	next.Summary = ""

	if s.persister != nil {
		if err := s.persister.SaveRun(ctx, next); err != nil {
			return nil, fmt.Errorf("failed to persist run for %s: %w", s.target, err)
		}
	}
	s.state.Store(next)

	s.logger.Debug("findings committed",
		"target", s.target,
		"revision", next.Revision,
		"new", stats.New,
		"persisting", stats.Persisting,
		"resolved", stats.Resolved,
		"open", stats.Open,
		"partial", stats.Partial)
	return next, nil
}

// update builds and publishes a new state under the swap lock. mutate returns
// the findings it changed, which are persisted before publishing.
func (s *Store) update(ctx context.Context, mutate func(next *State) ([]model.Finding, error)) (*State, error) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	next := s.state.Load().clone()
	changed, err := mutate(next)
	if err != nil {
		return nil, err
	}
	next.Revision++
	if s.persister != nil && len(changed) > 0 {
		if err := s.persister.SaveFindings(ctx, changed); err != nil {
			return nil, fmt.Errorf("failed to persist findings for %s: %w", s.target, err)
		}
	}
	s.state.Store(next)
	return next, nil
}

// AttachComment adds an operator comment to a finding. A commented finding is
// pinned and never purged by retention.
func (s *Store) AttachComment(ctx context.Context, findingID, author, body string) (model.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Comment{}, ErrEmptyComment
	}

	var comment model.Comment
	_, err := s.update(ctx, func(next *State) ([]model.Finding, error) {
		idx := indexOf(next.Findings, findingID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, findingID)
		}
		comment = model.Comment{
			ID:        s.newID(),
			FindingID: findingID,
			Author:    author,
			Body:      body,
			CreatedAt: s.now(),
		}
		if s.persister != nil {
			if err := s.persister.SaveComment(ctx, comment); err != nil {
				return nil, fmt.Errorf("failed to persist comment: %w", err)
			}
		}
		next.Comments = append(next.Comments, comment)
		next.Findings[idx].Comment = body
		return []model.Finding{next.Findings[idx]}, nil
	})
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

// SetAINotes attaches the summary and per-finding notes of the run that
// committed run. Unknown ids are ignored. It fails with ErrStaleRun when
// another snapshot has been committed since.
func (s *Store) SetAINotes(ctx context.Context, run *State, summary string, notes map[string]string) (*State, error) {
	return s.update(ctx, func(next *State) ([]model.Finding, error) {
		if run == nil || next.Snapshot != run.Snapshot {
			return nil, ErrStaleRun
		}
		if s.persister != nil && summary != next.Summary {
			if err := s.persister.SaveSummary(ctx, run, summary); err != nil {
				return nil, fmt.Errorf("failed to persist summary: %w", err)
			}
		}
		next.Summary = summary
		var changed []model.Finding
		for i := range next.Findings {
			note, ok := notes[next.Findings[i].ID]
			if !ok || note == next.Findings[i].AINote {
				continue
			}
			next.Findings[i].AINote = note
			changed = append(changed, next.Findings[i])
		}
		return changed, nil
	})
}

// RemoveFindings deletes findings by id from the latest state. Each candidate
// is re-checked with eligible against its latest version, so a finding that a
// concurrent commit or comment changed since the caller scanned is kept.
func (s *Store) RemoveFindings(ctx context.Context, ids []string, eligible func(st *State, f model.Finding) bool) ([]model.Finding, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	latest := s.state.Load()
	kept := make([]model.Finding, 0, len(latest.Findings))
	var removed []model.Finding
	for _, f := range latest.Findings {
		if want[f.ID] && eligible(latest, f) {
			removed = append(removed, f)
			continue
		}
		kept = append(kept, f)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	if s.persister != nil {
		removedIDs := make([]string, 0, len(removed))
		for _, f := range removed {
			removedIDs = append(removedIDs, f.ID)
		}
		if err := s.persister.DeleteFindings(ctx, removedIDs); err != nil {
			return nil, fmt.Errorf("failed to delete findings for %s: %w", s.target, err)
		}
	}

	next := latest.clone()
	next.Revision = latest.Revision + 1
	next.Findings = kept
	next.Stats.Open = 0
	next.Stats.ByColumn = make(map[string]int)
	for _, f := range kept {
		if f.IsOpen() {
			next.Stats.Open++
			next.Stats.ByColumn[f.ColumnName]++
		}
	}
	s.state.Store(next)
	return removed, nil
}

// Import replaces the store's state with an export document. It takes the run
// lock, so it fails with ErrCheckInProgress while a check is running.
func (s *Store) Import(ctx context.Context, doc *model.ExportDocument) (*State, error) {
	if !s.runMu.TryLock() {
		return nil, ErrCheckInProgress
	}
	defer s.runMu.Unlock()

	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	prev := s.state.Load()
	next := emptyState(s.target)
	next.Revision = prev.Revision + 1
	next.CommittedAt = s.now()
	next.Snapshot = doc.Snapshot
	next.Findings = append(next.Findings, doc.Findings...)
	sortFindings(next.Findings)
	next.Comments = append(next.Comments, doc.Comments...)
	next.Catalog = model.ColumnCatalog{Columns: append([]model.ColumnInfo(nil), doc.Columns...)}
	if len(next.Catalog.Columns) == 0 {
		next.Catalog = next.Catalog.Merge(doc.Snapshot)
	}
	next.Stats = doc.RecomputeStats()
	next.Summary = doc.Summary

	if s.persister != nil {
		var stale []string
		for _, f := range prev.Findings {
			if indexOf(next.Findings, f.ID) < 0 {
				stale = append(stale, f.ID)
			}
		}
		if err := s.persister.DeleteFindings(ctx, stale); err != nil {
			return nil, fmt.Errorf("failed to drop replaced findings for %s: %w", s.target, err)
		}
		if err := s.persister.SaveRun(ctx, next); err != nil {
			return nil, fmt.Errorf("failed to persist import for %s: %w", s.target, err)
		}
		for _, c := range next.Comments {
			if err := s.persister.SaveComment(ctx, c); err != nil {
				return nil, fmt.Errorf("failed to persist imported comment: %w", err)
			}
		}
	}
	s.state.Store(next)
	return next, nil
}

// Open returns open findings of the latest state.
func (s *Store) Open(f Filter) []model.Finding {
	return s.Current().Open(f)
}

// All returns all findings of the latest state.
func (s *Store) All(f Filter) []model.Finding {
	return s.Current().All(f)
}

// Get returns one finding of the latest state.
func (s *Store) Get(id string) (model.Finding, error) {
	return s.Current().Get(id)
}

// Columns returns the column catalog of the latest state.
func (s *Store) Columns() []model.ColumnInfo {
	return s.Current().Columns()
}

// Comments returns comments of one finding, or all comments for an empty id.
func (s *Store) Comments(findingID string) []model.Comment {
	return s.Current().CommentsFor(findingID)
}

func indexOf(fs []model.Finding, id string) int {
	for i, f := range fs {
		if f.ID == id {
			return i
		}
	}
	return -1
}
