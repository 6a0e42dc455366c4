package findings

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/gridwatch/internal/classify"
	"github.com/nao1215/gridwatch/internal/model"
)

var baseRun = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// sequentialIDs returns an id generator yielding id-1, id-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// snapshot builds a snapshot from rows of identity -> column values.
func snapshot(runAt time.Time, rows ...model.Row) *model.TableSnapshot {
	s := model.NewTableSnapshot("https://example.com", runAt)
	s.Rows = rows
	s.Columns = []string{"Name", "Phone"}
	return s
}

func row(identity, name, phone string) model.Row {
	return model.Row{
		Identity: identity,
		Label:    name,
		Columns:  []string{"Name", "Phone"},
		Values:   map[string]string{"Name": name, "Phone": phone},
	}
}

func findByKey(t *testing.T, fs []model.Finding, identity, column string) model.Finding {
	t.Helper()
	for _, f := range fs {
		if f.RowIdentity == identity && f.ColumnName == column {
			return f
		}
	}
	t.Fatalf("no finding for %s/%s in %+v", identity, column, fs)
	return model.Finding{}
}

// TestDiffFourRuns walks the lifecycle: A opens, persists and resolves while B opens later.
func TestDiffFourRuns(t *testing.T) {
	t.Parallel()

	rules := classify.DefaultRules()
	newID := sequentialIDs()
	runs := []time.Time{baseRun, baseRun.Add(time.Hour), baseRun.Add(2 * time.Hour), baseRun.Add(3 * time.Hour)}

	// Run 1: A has an empty phone.
	f1, s1 := Diff(nil, snapshot(runs[0], row("A", "Anna", ""), row("B", "Bernd", "1")), rules, newID)
	if s1.New != 1 || s1.Open != 1 {
		t.Fatalf("run 1 stats = %+v", s1)
	}
	a := findByKey(t, f1, "A", "Phone")
	if a.Status != model.StatusNew || !a.FirstSeenRun.Equal(runs[0]) {
		t.Errorf("run 1 A = %+v", a)
	}

	// Run 2: A still empty.
	f2, s2 := Diff(f1, snapshot(runs[1], row("A", "Anna", " "), row("B", "Bernd", "1")), rules, newID)
	if s2.New != 0 || s2.Persisting != 1 || s2.Resolved != 0 {
		t.Fatalf("run 2 stats = %+v", s2)
	}
	a2 := findByKey(t, f2, "A", "Phone")
	if a2.ID != a.ID || a2.Status != model.StatusPersisting || !a2.LastSeenRun.Equal(runs[1]) || !a2.FirstSeenRun.Equal(runs[0]) {
		t.Errorf("run 2 A = %+v", a2)
	}

	// Run 3: A filled, B emptied with a sentinel.
	f3, s3 := Diff(f2, snapshot(runs[2], row("A", "Anna", "555"), row("B", "Bernd", "-")), rules, newID)
	if s3.New != 1 || s3.Resolved != 1 || s3.Open != 1 {
		t.Fatalf("run 3 stats = %+v", s3)
	}
	a3 := findByKey(t, f3, "A", "Phone")
	if a3.Status != model.StatusResolved || !a3.LastSeenRun.Equal(runs[2]) {
		t.Errorf("run 3 A = %+v", a3)
	}
	b3 := findByKey(t, f3, "B", "Phone")
	if b3.Status != model.StatusNew {
		t.Errorf("run 3 B = %+v", b3)
	}

	// Run 4: A empty again gets a new finding; the resolved one is kept.
	f4, s4 := Diff(f3, snapshot(runs[3], row("A", "Anna", ""), row("B", "Bernd", "-")), rules, newID)
	if s4.New != 1 || s4.Persisting != 1 || s4.Resolved != 0 || s4.Open != 2 {
		t.Fatalf("run 4 stats = %+v", s4)
	}
	var aIDs []string
	for _, f := range f4 {
		if f.RowIdentity == "A" {
			aIDs = append(aIDs, f.ID+":"+string(f.Status))
		}
	}
	want := []string{"id-3:new", a.ID + ":resolved"}
	if diff := cmp.Diff(want, aIDs); diff != "" {
		t.Errorf("A findings mismatch (-want +got):\n%s", diff)
	}
	if len(f4) != 3 {
		t.Errorf("got %d findings, want 3", len(f4))
	}
}

func TestDiffIdempotent(t *testing.T) {
	t.Parallel()

	rules := classify.DefaultRules()
	snap := snapshot(baseRun, row("A", "Anna", ""), row("B", "", "1"))

	first, _ := Diff(nil, snap, rules, sequentialIDs())
	second, stats := Diff(first, snap, rules, sequentialIDs())

	if stats.New != 0 || stats.Resolved != 0 {
		t.Errorf("second diff made transitions: %+v", stats)
	}
	if stats.Persisting != 2 || stats.Open != 2 {
		t.Errorf("second diff stats = %+v", stats)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("finding %d changed id: %s -> %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestDiffStableUnderReorderAndNewColumns(t *testing.T) {
	t.Parallel()

	rules := classify.DefaultRules()
	first, _ := Diff(nil, snapshot(baseRun, row("A", "Anna", ""), row("B", "Bernd", "")), rules, sequentialIDs())

	reordered := snapshot(baseRun.Add(time.Hour), row("B", "Bernd", ""), row("A", "Anna", ""))
	for i := range reordered.Rows {
		reordered.Rows[i].Columns = append([]string{"Email"}, reordered.Rows[i].Columns...)
		reordered.Rows[i].Values["Email"] = "x@example.com"
	}
	second, stats := Diff(first, reordered, rules, sequentialIDs())

	if stats.New != 0 || stats.Resolved != 0 || stats.Persisting != 2 {
		t.Errorf("reorder caused transitions: %+v", stats)
	}
	if len(second) != 2 {
		t.Errorf("got %d findings, want 2", len(second))
	}
}

func TestDiffPartialSnapshot(t *testing.T) {
	t.Parallel()

	rules := classify.DefaultRules()
	prev, _ := Diff(nil, snapshot(baseRun, row("A", "Anna", ""), row("B", "Bernd", "")), rules, sequentialIDs())

	t.Run("missing rows stay open", func(t *testing.T) {
		t.Parallel()
		partial := snapshot(baseRun.Add(time.Hour), row("A", "Anna", "1"))
		partial.Partial = true
		next, stats := Diff(prev, partial, rules, sequentialIDs())

		if !stats.Partial {
			t.Error("stats must carry the partial flag")
		}
		if stats.Resolved != 1 || stats.Open != 1 {
			t.Errorf("stats = %+v, want A resolved and B left open", stats)
		}
		b := findByKey(t, next, "B", "Phone")
		if b.Status != model.StatusNew || !b.LastSeenRun.Equal(baseRun) {
			t.Errorf("B = %+v, want untouched", b)
		}
	})

	t.Run("empty partial snapshot resolves nothing", func(t *testing.T) {
		t.Parallel()
		empty := snapshot(baseRun.Add(time.Hour))
		empty.Partial = true
		_, stats := Diff(prev, empty, rules, sequentialIDs())
		if stats.Resolved != 0 || stats.Open != 2 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("complete snapshot resolves vanished rows", func(t *testing.T) {
		t.Parallel()
		_, stats := Diff(prev, snapshot(baseRun.Add(time.Hour)), rules, sequentialIDs())
		if stats.Resolved != 2 || stats.Open != 0 {
			t.Errorf("stats = %+v", stats)
		}
	})
}

func TestDiffDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	rules := classify.DefaultRules()
	prev, _ := Diff(nil, snapshot(baseRun, row("A", "Anna", "")), rules, sequentialIDs())
	before := append([]model.Finding(nil), prev...)

	Diff(prev, snapshot(baseRun.Add(time.Hour), row("A", "Anna", "1")), rules, sequentialIDs())

	if diff := cmp.Diff(before, prev); diff != "" {
		t.Errorf("previous findings mutated (-before +after):\n%s", diff)
	}
}

func TestDiffStatsMatchComputeStats(t *testing.T) {
	t.Parallel()

	rules := classify.DefaultRules()
	f1, _ := Diff(nil, snapshot(baseRun, row("A", "Anna", ""), row("B", "", "")), rules, sequentialIDs())
	snap2 := snapshot(baseRun.Add(time.Hour), row("A", "Anna", "1"), row("B", "", ""), row("C", "Carl", "-"))
	f2, stats := Diff(f1, snap2, rules, sequentialIDs())

	if diff := cmp.Diff(stats, model.ComputeStats(f2, snap2)); diff != "" {
		t.Errorf("diff stats differ from recomputed stats (-diff +recomputed):\n%s", diff)
	}
}

func TestDiffKeepsAnnotations(t *testing.T) {
	t.Parallel()

	rules := classify.DefaultRules()
	prev, _ := Diff(nil, snapshot(baseRun, row("A", "Anna", "")), rules, sequentialIDs())
	prev[0].Comment = "called, no answer"
	prev[0].AINote = "phone needed for appointments"

	next, _ := Diff(prev, snapshot(baseRun.Add(time.Hour), row("A", "Anna Schmidt", "")), rules, sequentialIDs())
	if next[0].Comment != prev[0].Comment || next[0].AINote != prev[0].AINote {
		t.Errorf("annotations lost: %+v", next[0])
	}
	if next[0].RowLabel != "Anna Schmidt" {
		t.Errorf("RowLabel = %q, want refreshed label", next[0].RowLabel)
	}
}

func TestDiffDuplicateOpenKeys(t *testing.T) {
	t.Parallel()

	older := model.Finding{ID: "old", RowIdentity: "A", ColumnName: "Phone", Status: model.StatusNew, FirstSeenRun: baseRun, LastSeenRun: baseRun}
	newer := older
	newer.ID = "dup"
	newer.FirstSeenRun = baseRun.Add(time.Minute)
	newer.LastSeenRun = newer.FirstSeenRun
	prev := []model.Finding{older, newer}

	tests := []struct {
		name        string
		phone       string
		wantOldStat model.Status
	}{
		{name: "still empty", phone: "", wantOldStat: model.StatusPersisting},
		{name: "filled", phone: "555", wantOldStat: model.StatusResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runAt := baseRun.Add(time.Hour)
			next, stats := Diff(prev, snapshot(runAt, row("A", "Anna", tt.phone)), classify.DefaultRules(), sequentialIDs())
			if len(next) != 2 {
				t.Fatalf("got %d findings, want both kept: %+v", len(next), next)
			}
			byID := map[string]model.Finding{}
			for _, f := range next {
				byID[f.ID] = f
			}
			if got := byID["old"].Status; got != tt.wantOldStat {
				t.Errorf("old status = %s, want %s", got, tt.wantOldStat)
			}
			dup := byID["dup"]
			if dup.Status != model.StatusResolved || !dup.LastSeenRun.Equal(runAt) {
				t.Errorf("duplicate = %+v, want resolved at %v", dup, runAt)
			}
			if stats.New != 0 || stats.Open > 1 {
				t.Errorf("stats = %+v, want at most one open finding and none new", stats)
			}
		})
	}
}
