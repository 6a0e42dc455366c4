package extract

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/render"
)

var runAt = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

const extjsFixture = `<html><body>
<div class="x-panel x-grid" id="gridpanel-1010">
  <div class="x-grid-header-ct">
    <div class="x-column-header"><span class="x-column-header-text">Name</span></div>
    <div class="x-column-header"><span class="x-column-header-text">Telefon</span></div>
    <div class="x-column-header" style="display: none"><span class="x-column-header-text">Intern</span></div>
    <div class="x-column-header"><span class="x-column-header-text">Pflegegrad</span></div>
  </div>
  <div class="x-grid-view">
    <table class="x-grid-item" data-recordindex="0"><tbody><tr class="x-grid-row">
      <td class="x-grid-cell"><div class="x-grid-cell-inner">Anna Schmidt</div></td>
      <td class="x-grid-cell"><div class="x-grid-cell-inner">&nbsp;</div></td>
      <td class="x-grid-cell"><div class="x-grid-cell-inner">3</div></td>
    </tr></tbody></table>
    <table class="x-grid-item" data-recordindex="1"><tbody><tr class="x-grid-row">
      <td class="x-grid-cell"><div class="x-grid-cell-inner">Bernd Meier</div></td>
      <td class="x-grid-cell"><div class="x-grid-cell-inner">0171 123</div></td>
      <td class="x-grid-cell"><div class="x-grid-cell-inner">-</div></td>
    </tr></tbody></table>
  </div>
</div>
</body></html>`

func page(html string) *render.Page {
	return &render.Page{URL: "https://example.com/mp/#uebersicht", HTML: html}
}

func htmlTable(header string, rows ...string) string {
	var b strings.Builder
	b.WriteString("<table>")
	if header != "" {
		b.WriteString("<thead><tr>" + header + "</tr></thead>")
	}
	b.WriteString("<tbody>")
	for _, r := range rows {
		b.WriteString("<tr>" + r + "</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func TestExtractExtJSGrid(t *testing.T) {
	t.Parallel()

	snap, err := New(WithStableColumns([]string{"name"})).Extract(page(extjsFixture), runAt)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	t.Run("uses the extjs strategy", func(t *testing.T) {
		t.Parallel()
		if snap.Strategy != "extjs-grid" {
			t.Errorf("Strategy = %q, want extjs-grid", snap.Strategy)
		}
		if snap.IdentityMode != model.IdentityStableColumns {
			t.Errorf("IdentityMode = %q", snap.IdentityMode)
		}
	})

	t.Run("skips hidden headers", func(t *testing.T) {
		t.Parallel()
		if diff := cmp.Diff([]string{"Name", "Telefon", "Pflegegrad"}, snap.Columns); diff != "" {
			t.Errorf("Columns mismatch (-want +got):\n%s", diff)
		}
		if snap.ColumnsGuessed {
			t.Error("columns should not be guessed")
		}
	})

	t.Run("reads inner cell text verbatim", func(t *testing.T) {
		t.Parallel()
		if len(snap.Rows) != 2 {
			t.Fatalf("got %d rows, want 2", len(snap.Rows))
		}
		if got := snap.Rows[0].Values["Telefon"]; got != "\u00a0" {
			t.Errorf("Telefon = %q, want NBSP", got)
		}
		if got := snap.Rows[1].Values["Pflegegrad"]; got != "-" {
			t.Errorf("Pflegegrad = %q, want -", got)
		}
	})

	t.Run("generated ids do not name tables", func(t *testing.T) {
		t.Parallel()
		if snap.Rows[0].Table != "table_1" {
			t.Errorf("Table = %q, want table_1", snap.Rows[0].Table)
		}
	})

	t.Run("label uses stable columns", func(t *testing.T) {
		t.Parallel()
		if snap.Rows[1].Label != "Bernd Meier" {
			t.Errorf("Label = %q", snap.Rows[1].Label)
		}
	})
}

func TestExtractHTMLTable(t *testing.T) {
	t.Parallel()

	t.Run("thead headers", func(t *testing.T) {
		t.Parallel()
		doc := htmlTable("<th>Name</th><th>Mail</th>", "<td>A</td><td></td>", "<td>B</td><td>b@x</td>")
		snap, err := New().Extract(page(doc), runAt)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if snap.Strategy != "html-table" {
			t.Errorf("Strategy = %q", snap.Strategy)
		}
		if diff := cmp.Diff([]string{"Name", "Mail"}, snap.Columns); diff != "" {
			t.Errorf("Columns mismatch (-want +got):\n%s", diff)
		}
		if snap.IdentityMode != model.IdentityFullRow {
			t.Errorf("IdentityMode = %q, want full_row without stable columns", snap.IdentityMode)
		}
	})

	t.Run("header row without thead", func(t *testing.T) {
		t.Parallel()
		doc := `<table id="termine"><tr><th>Datum</th><th>Kunde</th></tr><tr><td>1.3.</td><td>X</td></tr></table>`
		snap, err := New().Extract(page(doc), runAt)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if diff := cmp.Diff([]string{"Datum", "Kunde"}, snap.Columns); diff != "" {
			t.Errorf("Columns mismatch (-want +got):\n%s", diff)
		}
		if len(snap.Rows) != 1 || snap.Rows[0].Table != "termine" {
			t.Errorf("rows = %+v", snap.Rows)
		}
	})

	t.Run("duplicate and blank headers", func(t *testing.T) {
		t.Parallel()
		doc := htmlTable("<th>Name</th><th>Name</th><th> </th>", "<td>a</td><td>b</td><td>c</td>")
		snap, err := New().Extract(page(doc), runAt)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if diff := cmp.Diff([]string{"Name", "Name_2", "col_3"}, snap.Columns); diff != "" {
			t.Errorf("Columns mismatch (-want +got):\n%s", diff)
		}
		if !snap.ColumnsGuessed {
			t.Error("blank header should mark columns guessed")
		}
	})

	t.Run("attribute fallback", func(t *testing.T) {
		t.Parallel()
		doc := htmlTable("", `<td data-column="name">a</td><td title="Phone">1</td>`, "<td>b</td><td>2</td>")
		snap, err := New().Extract(page(doc), runAt)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if diff := cmp.Diff([]string{"name", "Phone"}, snap.Columns); diff != "" {
			t.Errorf("Columns mismatch (-want +got):\n%s", diff)
		}
		if !snap.ColumnsGuessed {
			t.Error("attribute names must mark columns guessed")
		}
	})

	t.Run("positional fallback", func(t *testing.T) {
		t.Parallel()
		doc := htmlTable("", "<td>a</td><td>b</td>")
		snap, err := New().Extract(page(doc), runAt)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if diff := cmp.Diff([]string{"col_1", "col_2"}, snap.Columns); diff != "" {
			t.Errorf("Columns mismatch (-want +got):\n%s", diff)
		}
		if !snap.ColumnsGuessed {
			t.Error("expected columns_guessed")
		}
	})

	t.Run("nested tables are not double counted", func(t *testing.T) {
		t.Parallel()
		inner := `<table id="inner"><tr><td>i1</td></tr></table>`
		doc := `<table id="outer"><thead><tr><th>A</th><th>B</th></tr></thead><tbody>` +
			`<tr><td>x</td><td>` + inner + `</td></tr></tbody></table>`
		snap, err := New().Extract(page(doc), runAt)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if got := len(snap.Tables()); got != 2 {
			t.Errorf("got %d tables, want 2", got)
		}
		if len(snap.Rows) != 2 {
			t.Errorf("got %d rows, want 2", len(snap.Rows))
		}
	})
}

func TestExtractAriaGrid(t *testing.T) {
	t.Parallel()

	doc := `<div role="grid" aria-label="Einsätze">
  <div role="row"><span role="columnheader">Kunde</span><span role="columnheader">Uhrzeit</span></div>
  <div role="row"><span role="gridcell">A</span><span role="gridcell"></span></div>
</div>`
	snap, err := New().Extract(page(doc), runAt)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if snap.Strategy != "aria-grid" {
		t.Errorf("Strategy = %q", snap.Strategy)
	}
	if diff := cmp.Diff([]string{"Kunde", "Uhrzeit"}, snap.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	if snap.Rows[0].Table != "Einsätze" {
		t.Errorf("Table = %q", snap.Rows[0].Table)
	}
}

func TestExtractRaggedRows(t *testing.T) {
	t.Parallel()

	doc := htmlTable("<th>A</th><th>B</th>", "<td>1</td><td>2</td>", "<td>3</td>")

	t.Run("rejected by default", func(t *testing.T) {
		t.Parallel()
		_, err := New().Extract(page(doc), runAt)
		var ee *ExtractionError
		if !errors.As(err, &ee) {
			t.Fatalf("expected ExtractionError, got %v", err)
		}
	})

	t.Run("accepted with allow_ragged", func(t *testing.T) {
		t.Parallel()
		s := DefaultStrategies()[1]
		s.AllowRagged = true
		snap, err := New(WithStrategies([]Strategy{s})).Extract(page(doc), runAt)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if len(snap.Rows) != 2 {
			t.Fatalf("got %d rows", len(snap.Rows))
		}
		if v, ok := snap.Rows[1].Value("B"); !ok || v != "" {
			t.Errorf("short row B = %q, %v; want padded empty value", v, ok)
		}
		if diff := cmp.Diff([]string{"A", "B"}, snap.Rows[1].Columns); diff != "" {
			t.Errorf("short row columns mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestExtractNoTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page *render.Page
	}{
		{name: "nil page", page: nil},
		{name: "empty html", page: page("")},
		{name: "no grid markup", page: page("<p>Bitte anmelden</p>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			snap, err := New().Extract(tt.page, runAt)
			if !errors.Is(err, ErrNoTable) {
				t.Fatalf("expected ErrNoTable, got %v", err)
			}
			var ee *ExtractionError
			if !errors.As(err, &ee) || len(ee.Tried) != 3 {
				t.Errorf("expected 3 tried strategies, got %v", err)
			}
			if snap == nil || !snap.Partial || len(snap.Rows) != 0 || snap.Error == "" {
				t.Errorf("expected empty partial snapshot with error, got %+v", snap)
			}
		})
	}
}

func TestExtractPartialPage(t *testing.T) {
	t.Parallel()

	p := page(htmlTable("<th>A</th>", "<td>1</td>"))
	p.Partial = true
	snap, err := New().Extract(p, runAt)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !snap.Partial {
		t.Error("partial page must give a partial snapshot")
	}
}

func TestRowIdentityStability(t *testing.T) {
	t.Parallel()

	before := htmlTable("<th>Name</th><th>Telefon</th>",
		"<td>Anna</td><td></td>",
		"<td>Bernd</td><td>1</td>")
	after := htmlTable("<th>Telefon</th><th>E-Mail</th><th>name</th>",
		"<td>1</td><td>b@x</td><td>Bernd</td>",
		"<td></td><td></td><td> Anna </td>")

	ex := New(WithStableColumns([]string{"Name"}))
	s1, err := ex.Extract(page(before), runAt)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := ex.Extract(page(after), runAt.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	ids := func(s *model.TableSnapshot) map[string]string {
		out := map[string]string{}
		for _, r := range s.Rows {
			out[r.Label] = r.Identity
		}
		return out
	}
	if diff := cmp.Diff(ids(s1), ids(s2)); diff != "" {
		t.Errorf("identities changed under reorder/new column (-before +after):\n%s", diff)
	}
}

func TestRowIdentityCollisions(t *testing.T) {
	t.Parallel()

	doc := htmlTable("<th>Name</th><th>Telefon</th>",
		"<td>Anna</td><td></td>",
		"<td>Anna</td><td>2</td>",
		"<td>Anna</td><td>3</td>")
	snap, err := New(WithStableColumns([]string{"Name"})).Extract(page(doc), runAt)
	if err != nil {
		t.Fatal(err)
	}

	base := snap.Rows[0].Identity
	if len(base) != 32 {
		t.Errorf("identity %q should be 32 hex chars", base)
	}
	if snap.Rows[1].Identity != base+"#2" || snap.Rows[2].Identity != base+"#3" {
		t.Errorf("collision suffixes = %q, %q", snap.Rows[1].Identity, snap.Rows[2].Identity)
	}
}

func TestRowIdentityFullRowFallback(t *testing.T) {
	t.Parallel()

	values := map[string]string{"A": "1", "B": ""}
	if RowIdentity("t", values, []string{"A", "B"}) != RowIdentity("t", values, []string{"B", "A"}) {
		t.Error("column order must not change the identity")
	}
	if RowIdentity("t", values, []string{"A"}) == RowIdentity("u", values, []string{"A"}) {
		t.Error("table name must be part of the identity")
	}

	doc := htmlTable("<th>A</th>", "<td>1</td>")
	snap, err := New(WithStableColumns([]string{"Missing"})).Extract(page(doc), runAt)
	if err != nil {
		t.Fatal(err)
	}
	if snap.IdentityMode != model.IdentityFullRow {
		t.Errorf("IdentityMode = %q, want full_row when stable columns are absent", snap.IdentityMode)
	}
}

func TestStrategyValidate(t *testing.T) {
	t.Parallel()

	for _, s := range DefaultStrategies() {
		if err := s.Validate(); err != nil {
			t.Errorf("default strategy %s invalid: %v", s.Name, err)
		}
	}

	bad := []Strategy{
		{Container: "table", Row: "tr", Cell: "td"},
		{Name: "x", Row: "tr", Cell: "td"},
		{Name: "x", Container: "table", Row: "tr[", Cell: "td"},
	}
	for _, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalidStrategy) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidStrategy", s, err)
		}
	}
}

func TestReadySelectors(t *testing.T) {
	t.Parallel()

	got := ReadySelectors(DefaultStrategies())
	want := []string{".x-grid .x-grid-row .x-grid-cell", "table tr td", "[role=grid] [role=row] [role=gridcell]"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadySelectors mismatch (-want +got):\n%s", diff)
	}
}
