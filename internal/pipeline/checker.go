package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/gridwatch/internal/extract"
	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/render"
	"github.com/nao1215/gridwatch/internal/report"
	"github.com/nao1215/gridwatch/internal/summarize"
)

// ErrPartialResult is returned together with the report of a check that
// exceeded its overall timeout. The partial snapshot has been committed.
var ErrPartialResult = errors.New("check timed out; partial result committed")

// DefaultCheckTimeout bounds render and extraction of one check.
const DefaultCheckTimeout = 2 * time.Minute

// Checker runs checks of one target.
type Checker struct {
	store      *findings.Store
	url        string
	renderer   render.Renderer
	extractor  *extract.Extractor
	summarizer summarize.Summarizer
	summarize  bool
	artifacts  render.ArtifactSink
	deliverer  *report.Deliverer
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCheckTimeout bounds render and extraction.
func WithCheckTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSummarizer enables the summarize step. A nil summarizer still adds
// the step, which then uses plain stats.
func WithSummarizer(s summarize.Summarizer) CheckerOption {
	return func(c *Checker) {
		c.summarizer = s
		c.summarize = true
	}
}

// WithExport enables the export step writing to sink.
func WithExport(sink render.ArtifactSink) CheckerOption {
	return func(c *Checker) {
		c.artifacts = sink
	}
}

// WithDeliverer enables the deliver step.
func WithDeliverer(d *report.Deliverer) CheckerOption {
	return func(c *Checker) {
		c.deliverer = d
	}
}

// WithClock sets the clock used for run timestamps.
func WithClock(fn func() time.Time) CheckerOption {
	return func(c *Checker) {
		c.now = fn
	}
}

// WithCheckLogger sets the logger.
func WithCheckLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

// NewChecker creates a checker of url committing into store.
func NewChecker(store *findings.Store, url string, renderer render.Renderer, extractor *extract.Extractor, opts ...CheckerOption) *Checker {
	c := &Checker{
		store:     store,
		url:       url,
		renderer:  renderer,
		extractor: extractor,
		timeout:   DefaultCheckTimeout,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the name of the checked target.
func (c *Checker) Target() string {
	return c.store.Target()
}

// Store returns the findings store the checker commits into.
func (c *Checker) Store() *findings.Store {
	return c.store
}

// StepNames lists the steps of a check in execution order.
func (c *Checker) StepNames() []string {
	return append(c.acquisition().StepNames(), c.publication().StepNames()...)
}

func (c *Checker) acquisition() *Stage {
	return NewStage("acquire", c.logger,
		NewRenderStep(c.renderer, c.logger),
		NewExtractStep(c.extractor, c.logger),
	)
}

func (c *Checker) publication() *Stage {
	s := NewStage("publish", c.logger, CommitStep{})
	if c.summarize {
		s.Add(NewSummarizeStep(c.summarizer, c.logger))
	}
	if c.artifacts != nil {
		s.Add(NewExportStep(c.artifacts, c.logger))
	}
	if c.deliverer != nil {
		s.Add(NewDeliverStep(c.deliverer, c.logger))
	}
	return s
}

// Check runs one check. It fails immediately with findings.ErrCheckInProgress
// while another check of the same target runs. When render and extraction
// exceed the check timeout, whatever was captured is committed as a partial
// snapshot and the report is returned with ErrPartialResult.
func (c *Checker) Check(ctx context.Context) (*model.CheckRun, error) {
	lock, err := c.store.BeginCheck()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	start := c.now()
	run := NewRun(c.store, model.NewCheckRun(c.store.Target(), c.url, start))
	run.lock = lock

	acqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	acqErr := c.acquisition().Execute(acqCtx, run)
	timedOut := errors.Is(acqCtx.Err(), context.DeadlineExceeded)
	cancel()

	if timedOut {
		run.Report.TimedOut = true
		run.Report.Error = fmt.Sprintf("check timed out after %s", c.timeout)
	} else if acqErr != nil && run.Report.Error == "" {
		run.Report.Error = acqErr.Error()
	}

	// Publication runs even when the caller's context is done, so an aborted
	// check still records its partial snapshot.
	pubErr := c.publication().Execute(context.WithoutCancel(ctx), run)
	run.Report.Duration = c.now().Sub(start)

	c.logger.Info("check finished",
		"target", run.Report.Target,
		"open", run.Report.Stats.Open,
		"new", run.Report.Stats.New,
		"resolved", run.Report.Stats.Resolved,
		"partial", run.Report.Partial,
		"duration", run.Report.Duration)

	switch {
	case pubErr != nil:
		return run.Report, pubErr
	case timedOut:
		return run.Report, ErrPartialResult
	default:
		return run.Report, nil
	}
}
