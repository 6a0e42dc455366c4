package render

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Static is a Renderer that returns HTML without a browser. It is used by
// `check --html-file` to run the detection pipeline against a saved page, and by tests.
type Static struct {
	html    string
	path    string
	title   string
	partial bool
	now     func() time.Time
}

// NewStatic returns a renderer that always serves html.
func NewStatic(html string) *Static {
	return &Static{html: html, now: time.Now}
}

// NewStaticFile returns a renderer that reads path on every render, so a file
// edited between checks produces a new snapshot.
func NewStaticFile(path string) *Static {
	return &Static{path: path, now: time.Now}
}

// WithTitle sets the title reported for the page.
func (s *Static) WithTitle(title string) *Static {
	s.title = title
	return s
}

// AsPartial makes every render return a partial page and a timeout RenderError.
func (s *Static) AsPartial() *Static {
	s.partial = true
	return s
}

// SetHTML replaces the served HTML.
func (s *Static) SetHTML(html string) {
	s.html = html
}

// Render implements Renderer.
func (s *Static) Render(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RenderError{URL: url, Cause: err, Timeout: IsTimeout(err)}
	}

	html := s.html
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, &RenderError{URL: url, Cause: fmt.Errorf("failed to read %s: %w", s.path, err)}
		}
		html = string(data)
	}

	page := &Page{
		URL:        url,
		FinalURL:   url,
		Title:      s.title,
		HTML:       html,
		Partial:    s.partial,
		RenderedAt: s.now(),
	}
	if s.partial {
		return page, &RenderError{URL: url, Cause: context.DeadlineExceeded, Timeout: true}
	}
	return page, nil
}
