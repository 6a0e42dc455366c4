package render

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Page is the rendered DOM handle passed to the extractor.
type Page struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects, when known.
	FinalURL string

	// Title is the document title.
	Title string

	// HTML is the outer HTML of the document at capture time.
	HTML string

	// Partial is true when the DOM was captured before the ready signal.
	Partial bool

	// Screenshot is the artifact path of a screenshot taken during this render.
	Screenshot string

	// RenderedAt is when the DOM was captured.
	RenderedAt time.Time
}

// Renderer loads a URL and returns its rendered DOM.
//
// On failure a Renderer may return both a non-nil Page (captured partial DOM)
// and a *RenderError. Callers should extract from the page when it is non-nil.
type Renderer interface {
	Render(ctx context.Context, url string) (*Page, error)
}

type runAtKey struct{}

// WithRunAt returns a context carrying the run timestamp that keys the
// artifacts a Renderer saves.
func WithRunAt(ctx context.Context, runAt time.Time) context.Context {
	return context.WithValue(ctx, runAtKey{}, runAt)
}

// RunAt returns the run timestamp set by WithRunAt.
func RunAt(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(runAtKey{}).(time.Time)
	return t, ok && !t.IsZero()
}

// ArtifactSink stores binary artifacts such as screenshots and returns their path.
// The retention package provides the implementation used in production.
type ArtifactSink interface {
	SaveArtifact(kind string, runAt time.Time, ext string, data []byte) (string, error)
}

// RenderError reports a failed or incomplete render. It is recoverable.
type RenderError struct {
	// URL is the page that was being rendered.
	URL string

	// Cause is the underlying navigation, wait or browser error.
	Cause error

	// Timeout is true when the ready signal was not observed in time.
	Timeout bool

	// Screenshot is the path of the failure screenshot, empty if none was taken.
	Screenshot string
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("render %s: timed out: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("render %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is a render timeout.
func IsTimeout(err error) bool {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Timeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}
