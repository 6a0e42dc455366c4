package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// captureTimeout bounds DOM reads and screenshots taken after the render
// context is already done.
const captureTimeout = 10 * time.Second

// Default browser settings, matching the window the monitored UI was designed for.
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
	DefaultSettle         = 500 * time.Millisecond
)

// Rod renders pages with Chrome through the DevTools protocol.
// A browser is launched per render and torn down afterwards, unless a remote
// browser URL is configured, in which case only the tab is closed.
type Rod struct {
	headless   bool
	noSandbox  bool
	browserBin string
	browserURL string

	// timeout bounds navigation plus the ready signal wait.
	timeout time.Duration

	// settle is how long the DOM must stay unchanged after the ready signal.
	settle time.Duration

	readySelectors []string
	headers        map[string]string
	cookie         string

	debugScreenshots bool
	width, height    int

	artifacts ArtifactSink
	logger    *slog.Logger
	now       func() time.Time
}

// RodOption configures a Rod renderer.
type RodOption func(*Rod)

// WithHeadless controls headless mode.
func WithHeadless(headless bool) RodOption {
	return func(r *Rod) {
		r.headless = headless
	}
}

// WithNoSandbox disables the Chrome sandbox, required when running as root in a container.
func WithNoSandbox(noSandbox bool) RodOption {
	return func(r *Rod) {
		r.noSandbox = noSandbox
	}
}

// WithBrowserBin sets the Chrome binary to launch.
func WithBrowserBin(bin string) RodOption {
	return func(r *Rod) {
		r.browserBin = bin
	}
}

// WithBrowserURL connects to an already running browser (http or ws debugger URL)
// instead of launching one.
func WithBrowserURL(u string) RodOption {
	return func(r *Rod) {
		r.browserURL = u
	}
}

// WithTimeout sets the navigation and ready signal timeout.
func WithTimeout(d time.Duration) RodOption {
	return func(r *Rod) {
		r.timeout = d
	}
}

// WithSettle sets how long the DOM must be stable after the ready signal.
// Zero disables the settle wait.
func WithSettle(d time.Duration) RodOption {
	return func(r *Rod) {
		r.settle = d
	}
}

// WithReadySelectors sets the CSS selectors that signal a loaded table.
// The first one to match wins.
func WithReadySelectors(selectors []string) RodOption {
	return func(r *Rod) {
		r.readySelectors = append([]string(nil), selectors...)
	}
}

// WithHeaders adds extra request headers to every request of the page.
func WithHeaders(headers map[string]string) RodOption {
	return func(r *Rod) {
		r.headers = headers
	}
}

// WithCookie passes an existing session cookie through verbatim.
func WithCookie(cookie string) RodOption {
	return func(r *Rod) {
		r.cookie = cookie
	}
}

// WithDebugScreenshots takes a screenshot after every successful load.
func WithDebugScreenshots(enabled bool) RodOption {
	return func(r *Rod) {
		r.debugScreenshots = enabled
	}
}

// WithViewport sets the browser viewport size.
func WithViewport(width, height int) RodOption {
	return func(r *Rod) {
		r.width = width
		r.height = height
	}
}

// WithArtifacts sets where screenshots are stored. Without a sink no
// screenshots are taken.
func WithArtifacts(sink ArtifactSink) RodOption {
	return func(r *Rod) {
		r.artifacts = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RodOption {
	return func(r *Rod) {
		r.logger = logger
	}
}

// NewRod creates a rod renderer.
func NewRod(opts ...RodOption) *Rod {
	r := &Rod{
		headless: true,
		timeout:  20 * time.Second,
		settle:   DefaultSettle,
		width:    DefaultViewportWidth,
		height:   DefaultViewportHeight,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render implements Renderer.
func (r *Rod) Render(ctx context.Context, target string) (*Page, error) {
	startedAt := r.now()
	key := r.artifactTime(ctx, startedAt)

	browser, cleanup, err := r.connect(ctx)
	if err != nil {
		return nil, &RenderError{URL: target, Cause: err}
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &RenderError{URL: target, Cause: fmt.Errorf("failed to open tab: %w", err)}
	}
	defer func() {
		_ = page.Context(context.Background()).Close()
	}()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             r.width,
		Height:            r.height,
		DeviceScaleFactor: 1.0,
	}).Call(page); err != nil {
		r.logger.Debug("failed to set viewport", "error", err)
	}

	if dict := r.extraHeaders(); len(dict) > 0 {
		restore, err := page.SetExtraHeaders(dict)
		if err != nil {
			return nil, &RenderError{URL: target, Cause: fmt.Errorf("failed to set request headers: %w", err)}
		}
		defer restore()
	}

	loadCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loadErr := r.load(page.Context(loadCtx), target)
	if loadErr == nil {
		result, err := r.capture(ctx, page, target)
		if err != nil {
			return nil, &RenderError{URL: target, Cause: err}
		}
		if r.debugScreenshots {
			result.Screenshot = r.screenshot(ctx, page, "page_loaded", key)
		}
		r.logger.Debug("page rendered", "url", target, "elapsed", r.now().Sub(startedAt))
		return result, nil
	}

	renderErr := &RenderError{
		URL:     target,
		Cause:   loadErr,
		Timeout: errors.Is(loadErr, context.DeadlineExceeded),
	}
	renderErr.Screenshot = r.screenshot(ctx, page, "screenshot", key)
	r.logger.Warn("render incomplete", "url", target, "timeout", renderErr.Timeout, "error", loadErr)

	result, err := r.capture(ctx, page, target)
	if err != nil {
		r.logger.Debug("no DOM captured after failed render", "error", err)
		return nil, renderErr
	}
	result.Partial = true
	result.Screenshot = renderErr.Screenshot
	return result, renderErr
}

// artifactTime keys artifacts by the run timestamp in ctx, or by startedAt
// when rendering outside a check.
func (r *Rod) artifactTime(ctx context.Context, startedAt time.Time) time.Time {
	if runAt, ok := RunAt(ctx); ok {
		return runAt
	}
	return startedAt
}

// load navigates and waits for the ready signal. page carries the load deadline.
func (r *Rod) load(page *rod.Page, target string) error {
	if err := page.Navigate(target); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for load event: %w", err)
	}

	if len(r.readySelectors) > 0 {
		race := page.Race()
		for _, sel := range r.readySelectors {
			race = race.Element(sel)
		}
		if _, err := race.Do(); err != nil {
			return fmt.Errorf("ready signal not observed: %w", err)
		}
	}

	if r.settle > 0 {
		// Grids keep appending rows for a moment after the first one shows up.
		// An unstable page is not an error once the ready signal has fired.
		if err := page.Timeout(4 * r.settle).WaitStable(r.settle); err != nil {
			r.logger.Debug("page did not settle", "url", target, "error", err)
		}
	}
	return nil
}

// capture reads the DOM with a context detached from the caller, so a partial
// page can still be read after the render deadline passed.
func (r *Rod) capture(ctx context.Context, page *rod.Page, target string) (*Page, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()
	p := page.Context(cctx)

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read DOM: %w", err)
	}

	result := &Page{
		URL:        target,
		FinalURL:   target,
		HTML:       html,
		RenderedAt: r.now(),
	}
	if info, err := p.Info(); err == nil {
		result.FinalURL = info.URL
		result.Title = info.Title
	}
	return result, nil
}

func (r *Rod) screenshot(ctx context.Context, page *rod.Page, kind string, at time.Time) string {
	if r.artifacts == nil {
		return ""
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	data, err := page.Context(cctx).Screenshot(true, nil)
	if err != nil {
		r.logger.Warn("failed to take screenshot", "kind", kind, "error", err)
		return ""
	}
	path, err := r.artifacts.SaveArtifact(kind, at, "png", data)
	if err != nil {
		r.logger.Warn("failed to save screenshot", "kind", kind, "error", err)
		return ""
	}
	return path
}

// connect launches a browser or attaches to the configured one. The returned
// cleanup function never fails; it only logs.
func (r *Rod) connect(ctx context.Context) (*rod.Browser, func(), error) {
	if r.browserURL != "" {
		controlURL, err := launcher.ResolveURL(r.browserURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve browser URL: %w", err)
		}
		browser := rod.New().ControlURL(controlURL).Context(ctx)
		if err := browser.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
		}
		return browser, func() {}, nil
	}

	l := launcher.New().
		Context(ctx).
		Headless(r.headless).
		NoSandbox(r.noSandbox).
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", r.width, r.height)).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("disable-dev-shm-usage"))
	if r.browserBin != "" {
		l = l.Bin(r.browserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	cleanup := func() {
		if err := browser.Context(context.Background()).Close(); err != nil {
			r.logger.Debug("failed to close browser", "error", err)
		}
		l.Kill()
		l.Cleanup()
	}
	return browser, cleanup, nil
}

// extraHeaders returns the header dict in the key, value, key, value form rod expects.
func (r *Rod) extraHeaders() []string {
	keys := make([]string, 0, len(r.headers))
	for k := range r.headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dict := make([]string, 0, 2*len(keys)+2)
	for _, k := range keys {
		dict = append(dict, k, r.headers[k])
	}
	if r.cookie != "" {
		dict = append(dict, "Cookie", r.cookie)
	}
	return dict
}
