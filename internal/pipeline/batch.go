package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/gridwatch/internal/model"
)

// BatchProcessor checks multiple targets concurrently with an errgroup
// bounded by the concurrency limit. Each target owns its store and run
// lock, so concurrent checks never share state.
type BatchProcessor struct {
	// concurrency is the maximum number of concurrent checks.
	// Every check drives its own browser, so this stays small.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent checks.
// Default is 2 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		concurrency: 2,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// Result is the outcome of checking one target.
type Result struct {
	Target string
	Run    *model.CheckRun
	Err    error
}

// ProcessBatch checks the targets concurrently and returns one result per
// checker, in input order. A failed check does not stop the others; its
// error is in its Result. The returned error is only set when ctx was
// cancelled before every check started.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, checkers []*Checker) ([]Result, error) {
	results := make([]Result, len(checkers))
	err := bp.ProcessBatchWithCallback(ctx, checkers, func(r Result, i int) {
		results[i] = r
	})
	return results, err
}

// ProcessBatchWithCallback checks the targets and calls callback for each
// completed check. The callback is called from the goroutine that ran the
// check, so it must be safe for concurrent use when it touches shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	checkers []*Checker,
	callback func(result Result, index int),
) error {
	bp.logger.Info("starting batch",
		"targets", len(checkers),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, c := range checkers {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			run, err := c.Check(gctx)
			if run == nil {
				run = model.NewCheckRun(c.Target(), c.url, time.Now())
				if err != nil {
					run.Error = err.Error()
				}
			}
			if err != nil {
				bp.logger.Warn("check failed", "target", c.Target(), "error", err)
			}
			callback(Result{Target: c.Target(), Run: run, Err: err}, i)
			// The error is in the result; other targets continue.
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch complete",
		"targets", len(checkers),
		"elapsed", time.Since(startTime),
	)
	return err
}
