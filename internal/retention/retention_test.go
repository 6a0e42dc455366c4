package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func ids() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func snap(runAt time.Time, phones map[string]string) *model.TableSnapshot {
	s := model.NewTableSnapshot("https://example.com/grid", runAt)
	s.Columns = []string{"Name", "Phone"}
	for _, name := range []string{"A", "B", "C"} {
		phone, ok := phones[name]
		if !ok {
			continue
		}
		s.Rows = append(s.Rows, model.Row{
			Identity: name,
			Label:    name,
			Columns:  []string{"Name", "Phone"},
			Values:   map[string]string{"Name": name, "Phone": phone},
		})
	}
	return s
}

func commit(t *testing.T, s *findings.Store, sn *model.TableSnapshot) *findings.State {
	t.Helper()
	check, err := s.BeginCheck()
	if err != nil {
		t.Fatalf("BeginCheck() error = %v", err)
	}
	defer check.Release()
	st, err := check.Commit(context.Background(), sn)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return st
}

func finding(t *testing.T, st *findings.State, row string) model.Finding {
	t.Helper()
	for _, f := range st.Findings {
		if f.RowIdentity == row {
			return f
		}
	}
	t.Fatalf("no finding for row %s", row)
	return model.Finding{}
}

// newScenario commits two runs: A and B empty, then both filled. B gets a
// comment, and C is left empty in a third run.
func newScenario(t *testing.T) *findings.Store {
	t.Helper()
	s := findings.NewStore("demo", findings.WithIDGenerator(ids()))
	commit(t, s, snap(t0, map[string]string{"A": "", "B": ""}))
	st := commit(t, s, snap(t0.Add(time.Minute), map[string]string{"A": "1", "B": "2"}))
	if _, err := s.AttachComment(context.Background(), finding(t, st, "B").ID, "ops", "called the family"); err != nil {
		t.Fatal(err)
	}
	commit(t, s, snap(t0.Add(2*time.Minute), map[string]string{"A": "1", "B": "2", "C": ""}))
	return s
}

func TestPurgeRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		now     time.Time
		deleted int
		kept    []string
	}{
		{name: "nothing older than max age", now: t0.Add(10 * time.Minute), deleted: 0, kept: []string{"A", "B", "C"}},
		{name: "exactly max age is kept", now: t0.Add(16 * time.Minute), deleted: 0, kept: []string{"A", "B", "C"}},
		{name: "expired resolved finding purged", now: t0.Add(17 * time.Minute), deleted: 1, kept: []string{"B", "C"}},
		{name: "open and commented findings never purged", now: t0.Add(48 * time.Hour), deleted: 1, kept: []string{"B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newScenario(t)
			m := NewManager(s)
			res, err := m.Purge(context.Background(), tt.now, 15*time.Minute)
			if err != nil {
				t.Fatalf("Purge() error = %v", err)
			}
			if res.Findings != tt.deleted {
				t.Errorf("deleted %d findings, want %d", res.Findings, tt.deleted)
			}
			for _, row := range tt.kept {
				finding(t, s.Current(), row)
			}
			if len(s.Comments("")) != 1 {
				t.Error("comments must never be purged")
			}
		})
	}
}

func TestPurgeIdempotent(t *testing.T) {
	t.Parallel()

	s := newScenario(t)
	m := NewManager(s)
	now := t0.Add(time.Hour)

	first, err := m.Purge(context.Background(), now, 15*time.Minute)
	if err != nil || first.Findings != 1 {
		t.Fatalf("first Purge() = %+v, %v", first, err)
	}
	second, err := m.Purge(context.Background(), now, 15*time.Minute)
	if err != nil {
		t.Fatalf("second Purge() error = %v", err)
	}
	if second.Findings != 0 || second.Artifacts != 0 {
		t.Errorf("second Purge() = %+v, want nothing", second)
	}
	if got := s.Current().Stats.Open; got != 1 {
		t.Errorf("open = %d after purge, want 1", got)
	}
}

type fakePruner struct {
	cutoff time.Time
	n      int
}

func (p *fakePruner) PruneRuns(_ context.Context, cutoff time.Time) (int, error) {
	p.cutoff = cutoff
	return p.n, nil
}

func TestPurgeArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	artifacts := NewArtifactStore(dir)

	oldPath, err := artifacts.SaveArtifact("screenshot", t0, "png", []byte("png"))
	if err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	dupPath, err := artifacts.SaveArtifact("screenshot", t0, "png", []byte("png"))
	if err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}
	if oldPath == dupPath {
		t.Fatal("second artifact of the same run overwrote the first")
	}
	if filepath.Base(oldPath) != "screenshot_20260302_080000.png" {
		t.Errorf("artifact name = %s", filepath.Base(oldPath))
	}
	freshPath, err := artifacts.SaveArtifact("empty_cells", t0.Add(time.Hour), "json", []byte("{}"))
	if err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}

	// Already gone: not an error.
	artifacts.Register(filepath.Join(dir, "findings_gone.json"), "findings", t0)

	// A non-empty directory cannot be removed: a RetentionError, purge continues.
	stuck := filepath.Join(dir, "stuck")
	if err := os.MkdirAll(filepath.Join(stuck, "child"), 0750); err != nil {
		t.Fatal(err)
	}
	artifacts.Register(stuck, "findings", t0)

	pruner := &fakePruner{n: 2}
	m := NewManager(findings.NewStore("demo"), WithArtifacts(artifacts), WithRunPruner(pruner))
	now := t0.Add(30 * time.Minute)
	res, err := m.Purge(context.Background(), now, 15*time.Minute)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}

	if res.Artifacts != 2 {
		t.Errorf("deleted %d artifacts, want 2", res.Artifacts)
	}
	if res.Runs != 2 || !pruner.cutoff.Equal(now.Add(-15*time.Minute)) {
		t.Errorf("runs = %d, cutoff = %v", res.Runs, pruner.cutoff)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one", res.Errors)
	}
	var rerr *RetentionError
	if !errors.As(res.Errors[0], &rerr) || rerr.Path != stuck {
		t.Errorf("error = %v, want RetentionError for %s", res.Errors[0], stuck)
	}
	for _, p := range []string{oldPath, dupPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("fresh artifact was deleted: %v", err)
	}
	if artifacts.Len() != 2 {
		t.Errorf("registry holds %d artifacts, want fresh and stuck", artifacts.Len())
	}
}

func TestSweepArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now()
	files := map[string]time.Time{
		"empty_cells_20260302_080000.json": now.Add(-time.Hour),
		"screenshot_20260302_080000.png":   now.Add(-time.Hour),
		"findings_recent.json":             now.Add(-time.Minute),
		"notes.txt":                        now.Add(-time.Hour),
	}
	for name, mtime := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	n, errs := SweepArtifacts(dir, DefaultSweepPatterns, now, 15*time.Minute, nil)
	if len(errs) != 0 {
		t.Fatalf("SweepArtifacts() errors = %v", errs)
	}
	if n != 2 {
		t.Errorf("swept %d files, want 2", n)
	}
	for _, keep := range []string{"findings_recent.json", "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, keep)); err != nil {
			t.Errorf("%s was deleted", keep)
		}
	}

	t.Run("bad pattern", func(t *testing.T) {
		t.Parallel()
		if _, errs := SweepArtifacts(t.TempDir(), []string{"[", "*.json"}, now, time.Minute, nil); len(errs) != 1 {
			t.Errorf("errors = %v, want one", errs)
		}
	})
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	s := newScenario(t)
	ctx, cancel := context.WithCancel(context.Background())

	sched := NewScheduler([]*Manager{NewManager(s)}, 5*time.Millisecond, 15*time.Minute,
		WithSchedulerClock(func() time.Time { return t0.Add(time.Hour) }),
		WithSweep(t.TempDir(), nil))

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(s.Current().Findings) != 2 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not purge")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
