package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/gridwatch/internal/extract"
	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/render"
	"github.com/nao1215/gridwatch/internal/report"
	"github.com/nao1215/gridwatch/internal/summarize"
)

// RenderStep loads the target page in a browser.
// Render failures are recoverable: whatever DOM was captured is kept for
// extraction and the failure becomes a warning on the report.
type RenderStep struct {
	renderer render.Renderer
	logger   *slog.Logger
}

// NewRenderStep creates a render step.
func NewRenderStep(renderer render.Renderer, logger *slog.Logger) *RenderStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderStep{renderer: renderer, logger: logger}
}

// Name returns the step name.
func (s *RenderStep) Name() string {
	return "render"
}

// Do executes the render step.
func (s *RenderStep) Do(ctx context.Context, run *Run) error {
	page, err := s.renderer.Render(render.WithRunAt(ctx, run.Report.RunAt), run.Report.URL)
	run.Page = page
	if page != nil {
		run.Report.FinalURL = page.FinalURL
		run.Report.Title = page.Title
		run.Report.Screenshot = page.Screenshot
		run.Report.Partial = run.Report.Partial || page.Partial
	}
	if err == nil {
		return nil
	}

	var re *render.RenderError
	if errors.As(err, &re) {
		if re.Screenshot != "" {
			run.Report.Screenshot = re.Screenshot
		}
	}
	if render.IsTimeout(err) {
		run.Report.TimedOut = true
	}
	run.Report.Partial = true
	run.Report.AddWarning(err.Error())
	s.logger.Warn("render incomplete",
		"target", run.Report.Target,
		"captured_dom", page != nil,
		"error", err)
	return nil
}

// ExtractStep builds a table snapshot from the rendered DOM.
type ExtractStep struct {
	extractor *extract.Extractor
	logger    *slog.Logger
}

// NewExtractStep creates an extract step.
func NewExtractStep(extractor *extract.Extractor, logger *slog.Logger) *ExtractStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStep{extractor: extractor, logger: logger}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do executes the extract step. An extraction failure still yields an empty
// partial snapshot, which is committed so the run is recorded.
func (s *ExtractStep) Do(_ context.Context, run *Run) error {
	snap, err := s.extractor.Extract(run.Page, run.Report.RunAt)
	if snap.SourceURL == "" {
		snap.SourceURL = run.Report.URL
	}
	if run.Report.Partial {
		snap.Partial = true
	}
	run.Snapshot = snap
	if err != nil {
		run.Report.Partial = true
		run.Report.AddWarning(err.Error())
		s.logger.Warn("extraction failed", "target", run.Report.Target, "error", err)
		return nil
	}
	if snap.ColumnsGuessed {
		run.Report.AddWarning("column headers were missing; column names were inferred")
	}
	return nil
}

// CommitStep diffs the snapshot against the stored findings and publishes
// the result. This is the only step whose failure fails the check.
type CommitStep struct{}

// Name returns the step name.
func (CommitStep) Name() string {
	return "commit"
}

// Do executes the commit step.
func (CommitStep) Do(ctx context.Context, run *Run) error {
	snap := run.Snapshot
	if snap == nil {
		// Acquisition was cut off before extraction.
		snap = model.NewTableSnapshot(run.Report.URL, run.Report.RunAt)
		snap.Partial = true
		snap.Error = "no snapshot captured"
		if run.Report.Error != "" {
			snap.Error = run.Report.Error
		}
		run.Snapshot = snap
	}
	if run.Report.TimedOut {
		snap.Partial = true
	}

	lock := run.lock
	if lock == nil {
		var err error
		if lock, err = run.Store.BeginCheck(); err != nil {
			return err
		}
		defer lock.Release()
	}
	st, err := lock.Commit(ctx, snap)
	if err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	run.State = st
	run.Report.Snapshot = st.Snapshot
	run.Report.Partial = st.Snapshot.Partial
	run.Report.Findings = append([]model.Finding(nil), st.Findings...)
	run.Report.Stats = st.Stats
	return nil
}

// DefaultSummarizeTimeout bounds the summarizer call.
const DefaultSummarizeTimeout = time.Minute

// SummarizeStep attaches a summary and per-finding notes. A failing or
// missing summarizer falls back to plain stats; the step never fails.
type SummarizeStep struct {
	summarizer summarize.Summarizer
	timeout    time.Duration
	logger     *slog.Logger
}

// NewSummarizeStep creates a summarize step. summarizer may be nil.
func NewSummarizeStep(summarizer summarize.Summarizer, logger *slog.Logger) *SummarizeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummarizeStep{summarizer: summarizer, timeout: DefaultSummarizeTimeout, logger: logger}
}

// Name returns the step name.
func (s *SummarizeStep) Name() string {
	return "summarize"
}

// Do executes the summarize step.
func (s *SummarizeStep) Do(ctx context.Context, run *Run) error {
	if run.State == nil {
		return nil
	}
	var sum summarize.Summary
	if run.Report.Stats.Open == 0 {
		sum = summarize.Summary{Text: summarize.PlainStats(run.Report.Stats)}
	} else {
		sctx, cancel := context.WithTimeout(ctx, s.timeout)
		sum = summarize.SummarizeOrFallback(sctx, s.summarizer, run.Report.OpenFindings(), run.Report.Stats, s.logger)
		cancel()
	}
	run.Report.Summary = sum.Text
	run.Report.SummaryFallback = sum.Fallback

	st, err := run.Store.SetAINotes(ctx, run.State, sum.Text, sum.Notes)
	if err != nil {
		run.Report.AddWarning("failed to store summary: " + err.Error())
		return nil
	}
	run.State = st
	for i := range run.Report.Findings {
		if note, ok := sum.Notes[run.Report.Findings[i].ID]; ok {
			run.Report.Findings[i].AINote = note
		}
	}
	return nil
}

// ExportStep writes the export document of the committed state as an
// artifact, for example empty_cells_20260302_080000.json.
type ExportStep struct {
	sink   render.ArtifactSink
	logger *slog.Logger
}

// NewExportStep creates an export step.
func NewExportStep(sink render.ArtifactSink, logger *slog.Logger) *ExportStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportStep{sink: sink, logger: logger}
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Do executes the export step.
func (s *ExportStep) Do(_ context.Context, run *Run) error {
	if run.State == nil {
		return nil
	}
	doc := run.State.Export(run.Report.RunAt)
	data, err := report.EncodeExport(doc)
	if err != nil {
		run.Report.AddWarning(err.Error())
		return nil
	}
	path, err := s.sink.SaveArtifact(report.ExportKind, run.Report.RunAt, "json", data)
	if err != nil {
		run.Report.AddWarning("failed to write export: " + err.Error())
		s.logger.Warn("export failed", "target", run.Report.Target, "error", err)
		return nil
	}
	run.Report.ExportPath = path
	s.logger.Debug("export written", "target", run.Report.Target, "path", path)
	return nil
}

// DeliverStep sends the result to the chat and notification channel.
// Delivery is at most once: a failure is recorded and not retried.
type DeliverStep struct {
	deliverer *report.Deliverer
	logger    *slog.Logger
}

// NewDeliverStep creates a deliver step.
func NewDeliverStep(deliverer *report.Deliverer, logger *slog.Logger) *DeliverStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliverStep{deliverer: deliverer, logger: logger}
}

// Name returns the step name.
func (s *DeliverStep) Name() string {
	return "deliver"
}

// Do executes the deliver step.
func (s *DeliverStep) Do(ctx context.Context, run *Run) error {
	if err := s.deliverer.Deliver(ctx, run.Report); err != nil {
		run.Report.AddWarning("delivery failed: " + err.Error())
		s.logger.Warn("delivery failed", "target", run.Report.Target, "error", err)
	}
	return nil
}
