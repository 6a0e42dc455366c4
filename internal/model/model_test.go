package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{in: "new", want: StatusNew},
		{in: " Persisting ", want: StatusPersisting},
		{in: "RESOLVED", want: StatusResolved},
		{in: "open", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseStatus(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	run1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	run2 := run1.Add(time.Hour)
	snap := NewTableSnapshot("https://example.com", run2)
	snap.Rows = []Row{{Identity: "a"}, {Identity: "b"}}
	snap.Partial = true

	findings := []Finding{
		{ID: "1", ColumnName: "Phone", Status: StatusNew, FirstSeenRun: run2, LastSeenRun: run2},
		{ID: "2", ColumnName: "Phone", Status: StatusPersisting, FirstSeenRun: run1, LastSeenRun: run2},
		{ID: "3", ColumnName: "Mail", Status: StatusResolved, FirstSeenRun: run1, LastSeenRun: run2},
		{ID: "4", ColumnName: "Mail", Status: StatusNew, FirstSeenRun: run1, LastSeenRun: run1},
		{ID: "5", ColumnName: "Mail", Status: StatusResolved, FirstSeenRun: run1, LastSeenRun: run1},
	}

	got := ComputeStats(findings, snap)
	want := Stats{
		RunAt:      run2,
		Rows:       2,
		New:        1,
		Persisting: 1,
		Resolved:   1,
		Open:       3,
		ByColumn:   map[string]int{"Phone": 2, "Mail": 1},
		Partial:    true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ComputeStats() mismatch (-want +got):\n%s", diff)
	}

	sorted := got.SortedColumns()
	if sorted[0].Column != "Phone" || sorted[0].Count != 2 {
		t.Errorf("SortedColumns()[0] = %+v, want Phone/2", sorted[0])
	}
}

func TestColumnCatalogMerge(t *testing.T) {
	t.Parallel()

	run1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	run2 := run1.Add(time.Hour)

	first := NewTableSnapshot("u", run1)
	first.Columns = []string{"Name", "Phone"}
	first.Rows = []Row{
		{Columns: []string{"Name", "Phone"}, Values: map[string]string{"Name": " Alice ", "Phone": ""}},
		{Columns: []string{"Name", "Phone"}, Values: map[string]string{"Name": "Bob", "Phone": "123"}},
		{Columns: []string{"Name", "Phone"}, Values: map[string]string{"Name": "Alice", "Phone": "456"}},
	}

	second := NewTableSnapshot("u", run2)
	second.ColumnsGuessed = true
	second.Columns = []string{"Phone", "col_3"}
	second.Rows = []Row{}

	var empty ColumnCatalog
	c1 := empty.Merge(first)
	c2 := c1.Merge(second)

	t.Run("merge does not mutate the receiver", func(t *testing.T) {
		t.Parallel()
		if len(c1.Columns) != 2 {
			t.Errorf("c1 has %d columns, want 2", len(c1.Columns))
		}
	})

	t.Run("columns are appended in discovery order", func(t *testing.T) {
		t.Parallel()
		if diff := cmp.Diff([]string{"Name", "Phone", "col_3"}, c2.Names()); diff != "" {
			t.Errorf("Names() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("samples are distinct and normalized", func(t *testing.T) {
		t.Parallel()
		name, _ := c2.Lookup("Name")
		if diff := cmp.Diff([]string{"Alice", "Bob"}, name.Samples); diff != "" {
			t.Errorf("samples mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("last seen and guessed flags", func(t *testing.T) {
		t.Parallel()
		phone, _ := c2.Lookup("Phone")
		if !phone.FirstSeen.Equal(run1) || !phone.LastSeen.Equal(run2) {
			t.Errorf("Phone seen %v..%v, want %v..%v", phone.FirstSeen, phone.LastSeen, run1, run2)
		}
		guessed, _ := c2.Lookup("col_3")
		if !guessed.Guessed {
			t.Error("expected col_3 to be flagged guessed")
		}
	})
}

func TestColumnCatalogMergeRowOnlyColumns(t *testing.T) {
	t.Parallel()

	runAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	snap := NewTableSnapshot("u", runAt)
	snap.Columns = []string{"Name"}
	snap.Rows = []Row{
		{Columns: []string{"Name", "Phone"}, Values: map[string]string{"Name": "Alice", "Phone": "123"}},
	}

	for _, base := range []ColumnCatalog{{}, {Columns: []ColumnInfo{{Name: "Ward"}}}} {
		got := base.Merge(snap)
		phone, ok := got.Lookup("Phone")
		if !ok {
			t.Fatalf("Phone missing from %v", got.Names())
		}
		if diff := cmp.Diff([]string{"123"}, phone.Samples); diff != "" {
			t.Errorf("Phone samples mismatch (-want +got):\n%s", diff)
		}
		first := got.Columns[0]
		if len(first.Samples) > 0 && first.Name != "Name" {
			t.Errorf("samples attributed to %s: %v", first.Name, first.Samples)
		}
	}
}

func TestCheckRunViews(t *testing.T) {
	t.Parallel()

	runAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	run := NewCheckRun("demo", "https://example.com", runAt)
	run.Findings = []Finding{
		{ID: "2", ColumnName: "Phone", RowLabel: "Bob", Status: StatusNew, LastSeenRun: runAt},
		{ID: "1", ColumnName: "Phone", RowLabel: "Alice", Status: StatusPersisting, LastSeenRun: runAt},
		{ID: "3", ColumnName: "Mail", Status: StatusResolved, LastSeenRun: runAt},
		{ID: "4", ColumnName: "Mail", Status: StatusResolved, LastSeenRun: runAt.Add(-time.Hour)},
	}

	open := run.OpenFindings()
	if len(open) != 2 || open[0].RowLabel != "Alice" {
		t.Errorf("OpenFindings() = %+v, want Alice first", open)
	}
	if resolved := run.ResolvedThisRun(); len(resolved) != 1 || resolved[0].ID != "3" {
		t.Errorf("ResolvedThisRun() = %+v, want only finding 3", resolved)
	}
}

func TestNormalizeValue(t *testing.T) {
	t.Parallel()

	if got := NormalizeValue("  Frau \n\t Müller  "); got != "Frau Müller" {
		t.Errorf("NormalizeValue() = %q", got)
	}
}
