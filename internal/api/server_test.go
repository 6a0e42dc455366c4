package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/gridwatch/internal/extract"
	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/pipeline"
	"github.com/nao1215/gridwatch/internal/render"
)

var runAt = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

const fixture = `<table><thead><tr><th>Name</th><th>Phone</th><th>Mail</th></tr></thead><tbody>
<tr><td>Alice</td><td></td><td>a@example.com</td></tr>
<tr><td>Bob</td><td>0171</td><td>-</td></tr>
</tbody></table>`

// newTestServer returns a server over two targets; "demo" has one committed
// check with two open findings.
func newTestServer(t *testing.T) (*httptest.Server, *findings.Store) {
	t.Helper()

	store := findings.NewStore("demo", findings.WithClock(func() time.Time { return runAt }))
	checker := pipeline.NewChecker(store, "https://example.com/grid",
		render.NewStatic(fixture),
		extract.New(extract.WithStableColumns([]string{"Name"})),
		pipeline.WithClock(func() time.Time { return runAt }),
	)
	if _, err := checker.Check(context.Background()); err != nil {
		t.Fatalf("seed check: %v", err)
	}

	other := findings.NewStore("office")
	srv := NewServer([]Target{
		{Store: store, Checker: checker},
		{Store: other},
	}, WithClock(func() time.Time { return runAt }))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test server URL
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func post(t *testing.T, url, body string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body)) //nolint:gosec,noctx // test server URL
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestReadRoutes(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t)

	t.Run("healthz", func(t *testing.T) {
		t.Parallel()
		var body map[string]string
		if code := get(t, ts.URL+"/healthz", &body); code != http.StatusOK || body["status"] != "ok" {
			t.Errorf("healthz = %d %v", code, body)
		}
	})

	t.Run("targets", func(t *testing.T) {
		t.Parallel()
		var body struct {
			Default string   `json:"default"`
			Targets []string `json:"targets"`
		}
		get(t, ts.URL+"/targets", &body)
		if body.Default != "demo" || cmp.Diff([]string{"demo", "office"}, body.Targets) != "" {
			t.Errorf("targets = %+v", body)
		}
	})

	t.Run("open findings with column filter", func(t *testing.T) {
		t.Parallel()
		var all, phone []model.Finding
		get(t, ts.URL+"/findings", &all)
		get(t, ts.URL+"/findings?column=phone", &phone)
		if len(all) != 2 {
			t.Errorf("open findings = %d, want 2", len(all))
		}
		if len(phone) != 1 || phone[0].ColumnName != "Phone" {
			t.Errorf("phone findings = %+v", phone)
		}
	})

	t.Run("invalid status is a bad request", func(t *testing.T) {
		t.Parallel()
		if code := get(t, ts.URL+"/findings?status=closed", nil); code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", code)
		}
	})

	t.Run("single finding and 404", func(t *testing.T) {
		t.Parallel()
		id := store.Current().Findings[0].ID
		var f model.Finding
		if code := get(t, ts.URL+"/findings/"+id, &f); code != http.StatusOK || f.ID != id {
			t.Errorf("GET finding = %d %+v", code, f)
		}
		if code := get(t, ts.URL+"/findings/nope", nil); code != http.StatusNotFound {
			t.Errorf("unknown finding = %d, want 404", code)
		}
	})

	t.Run("columns stats export", func(t *testing.T) {
		t.Parallel()
		var cols []model.ColumnInfo
		get(t, ts.URL+"/columns", &cols)
		if len(cols) != 3 {
			t.Errorf("columns = %d, want 3", len(cols))
		}
		var stats model.Stats
		get(t, ts.URL+"/stats", &stats)
		if stats.Open != 2 || stats.New != 2 {
			t.Errorf("stats = %+v", stats)
		}
		var doc model.ExportDocument
		get(t, ts.URL+"/export", &doc)
		if doc.Version != model.ExportVersion || len(doc.Findings) != 2 || !doc.GeneratedAt.Equal(runAt) {
			t.Errorf("export = %+v", doc)
		}
	})

	t.Run("per target routes", func(t *testing.T) {
		t.Parallel()
		var fs []model.Finding
		if code := get(t, ts.URL+"/targets/office/findings", &fs); code != http.StatusOK || len(fs) != 0 {
			t.Errorf("office findings = %d %v", code, fs)
		}
		if code := get(t, ts.URL+"/targets/nowhere/findings", nil); code != http.StatusNotFound {
			t.Errorf("unknown target = %d, want 404", code)
		}
	})
}

func TestCommentRoutes(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t)
	id := store.Current().Findings[0].ID

	var c model.Comment
	if code := post(t, ts.URL+"/findings/"+id+"/comments", `{"author":"nurse","body":"asked the family"}`, &c); code != http.StatusCreated {
		t.Fatalf("POST comment = %d", code)
	}
	if c.FindingID != id || c.Body != "asked the family" {
		t.Errorf("comment = %+v", c)
	}

	var comments []model.Comment
	get(t, ts.URL+"/comments", &comments)
	if len(comments) != 1 {
		t.Errorf("comments = %d, want 1", len(comments))
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "unknown finding", path: "/findings/nope/comments", body: `{"body":"x"}`, want: http.StatusNotFound},
		{name: "empty body", path: "/findings/" + id + "/comments", body: `{"body":"  "}`, want: http.StatusBadRequest},
		{name: "invalid json", path: "/findings/" + id + "/comments", body: `{`, want: http.StatusBadRequest},
		{name: "unknown field", path: "/findings/" + id + "/comments", body: `{"text":"x"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if code := post(t, ts.URL+tt.path, tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestCheckRoute(t *testing.T) {
	t.Parallel()

	t.Run("runs a check", func(t *testing.T) {
		t.Parallel()

		ts, _ := newTestServer(t)
		var resp checkResponse
		if code := post(t, ts.URL+"/checks", "", &resp); code != http.StatusAccepted {
			t.Fatalf("POST /checks = %d", code)
		}
		if resp.Run == nil || resp.Run.Stats.Persisting != 2 {
			t.Errorf("unexpected run: %+v", resp.Run)
		}
	})

	t.Run("conflict while a check runs", func(t *testing.T) {
		t.Parallel()

		ts, store := newTestServer(t)
		lock, err := store.BeginCheck()
		if err != nil {
			t.Fatal(err)
		}
		defer lock.Release()

		var body map[string]string
		if code := post(t, ts.URL+"/checks", "", &body); code != http.StatusConflict {
			t.Errorf("status = %d, want 409", code)
		}
		if body["error"] != "check already in progress" {
			t.Errorf("error = %q", body["error"])
		}
	})

	t.Run("target without checker", func(t *testing.T) {
		t.Parallel()

		ts, _ := newTestServer(t)
		if code := post(t, ts.URL+"/targets/office/checks", "", nil); code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", code)
		}
	})
}

func TestCORS(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, ts.URL+"/findings", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
