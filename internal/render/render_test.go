package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRenderError(t *testing.T) {
	t.Parallel()

	t.Run("unwraps cause", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("net::ERR_CONNECTION_REFUSED")
		err := error(&RenderError{URL: "https://example.com", Cause: cause})
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
		if IsTimeout(err) {
			t.Error("connection refused is not a timeout")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		err := error(&RenderError{URL: "u", Cause: context.DeadlineExceeded, Timeout: true})
		if !IsTimeout(err) {
			t.Error("expected IsTimeout")
		}
		var re *RenderError
		if !errors.As(err, &re) || re.URL != "u" {
			t.Errorf("errors.As failed: %v", err)
		}
	})

	t.Run("bare deadline counts as timeout", func(t *testing.T) {
		t.Parallel()
		if !IsTimeout(context.DeadlineExceeded) {
			t.Error("expected IsTimeout for context.DeadlineExceeded")
		}
	})
}

func TestStatic(t *testing.T) {
	t.Parallel()

	t.Run("serves html", func(t *testing.T) {
		t.Parallel()
		r := NewStatic("<table></table>").WithTitle("Overview")
		page, err := r.Render(context.Background(), "https://example.com")
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if page.HTML != "<table></table>" || page.Title != "Overview" || page.Partial {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("partial returns page and timeout error", func(t *testing.T) {
		t.Parallel()
		r := NewStatic("<div></div>").AsPartial()
		page, err := r.Render(context.Background(), "u")
		if page == nil || !page.Partial {
			t.Fatalf("expected partial page, got %+v", page)
		}
		if !IsTimeout(err) {
			t.Errorf("expected timeout error, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		page, err := NewStatic("x").Render(ctx, "u")
		if page != nil {
			t.Error("expected no page")
		}
		var re *RenderError
		if !errors.As(err, &re) {
			t.Fatalf("expected RenderError, got %v", err)
		}
	})

	t.Run("file is re-read on each render", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "page.html")
		if err := os.WriteFile(path, []byte("one"), 0o600); err != nil {
			t.Fatal(err)
		}
		r := NewStaticFile(path)
		if page, _ := r.Render(context.Background(), "u"); page.HTML != "one" {
			t.Errorf("got %q, want one", page.HTML)
		}
		if err := os.WriteFile(path, []byte("two"), 0o600); err != nil {
			t.Fatal(err)
		}
		if page, _ := r.Render(context.Background(), "u"); page.HTML != "two" {
			t.Errorf("got %q, want two", page.HTML)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := NewStaticFile(filepath.Join(t.TempDir(), "missing.html")).Render(context.Background(), "u")
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestRodExtraHeaders(t *testing.T) {
	t.Parallel()

	r := NewRod(
		WithHeaders(map[string]string{"X-B": "2", "X-A": "1"}),
		WithCookie("JSESSIONID=abc"),
	)
	got := r.extraHeaders()
	want := []string{"X-A", "1", "X-B", "2", "Cookie", "JSESSIONID=abc"}
	if len(got) != len(want) {
		t.Fatalf("extraHeaders() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("extraHeaders()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRodArtifactTime(t *testing.T) {
	t.Parallel()

	runAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	startedAt := runAt.Add(3 * time.Second)
	r := NewRod()

	tests := []struct {
		name string
		ctx  context.Context
		want time.Time
	}{
		{name: "run timestamp from context", ctx: WithRunAt(context.Background(), runAt), want: runAt},
		{name: "no run timestamp", ctx: context.Background(), want: startedAt},
		{name: "zero run timestamp", ctx: WithRunAt(context.Background(), time.Time{}), want: startedAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.artifactTime(tt.ctx, startedAt); !got.Equal(tt.want) {
				t.Errorf("artifactTime() = %v, want %v", got, tt.want)
			}
		})
	}
}
