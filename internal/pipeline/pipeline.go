package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/nao1215/gridwatch/internal/findings"
	"github.com/nao1215/gridwatch/internal/model"
	"github.com/nao1215/gridwatch/internal/render"
)

// Run is the working state of one check, shared by its steps.
type Run struct {
	// Report is the result handed to writers and the chat.
	Report *model.CheckRun

	// Store is the findings store of the target.
	Store *findings.Store

	// Page is the rendered DOM, nil until the render step ran or when
	// rendering produced nothing.
	Page *render.Page

	// Snapshot is the extracted table, nil until the extract step ran.
	Snapshot *model.TableSnapshot

	// State is the committed state, nil until the commit step ran.
	State *findings.State

	// lock is the held run lock of Store.
	lock *findings.Check
}

// NewRun creates the working state of a check reporting into report.
func NewRun(store *findings.Store, report *model.CheckRun) *Run {
	return &Run{Report: report, Store: store}
}

// Step is one unit of a check. Recoverable problems are recorded as
// warnings on the report and Do returns nil; an error ends the stage.
type Step interface {
	Do(ctx context.Context, run *Run) error
	Name() string
}

// Stage runs steps in order. A check has two stages: acquisition, bounded
// by the check timeout, and publication, which runs even after the caller
// gave up so that a partial snapshot is still committed.
type Stage struct {
	name   string
	steps  []Step
	logger *slog.Logger
}

// NewStage creates a stage running steps in order. A nil logger uses
// slog.Default().
func NewStage(name string, logger *slog.Logger, steps ...Step) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{name: name, steps: steps, logger: logger.With("stage", name)}
}

// Add appends steps to the stage.
func (s *Stage) Add(steps ...Step) {
	s.steps = append(s.steps, steps...)
}

// Name returns the stage name.
func (s *Stage) Name() string {
	return s.name
}

// StepNames returns the step names in execution order.
func (s *Stage) StepNames() []string {
	names := make([]string, len(s.steps))
	for i, step := range s.steps {
		names[i] = step.Name()
	}
	return names
}

// Execute runs the steps until one fails or ctx is done. Every step that
// ran, failed or not, is appended to the report's performed steps. The
// failing step's error is stored on the report and returned.
func (s *Stage) Execute(ctx context.Context, run *Run) error {
	report := run.Report
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("stage stopped",
				"target", report.Target,
				"before", step.Name(),
				"reason", err)
			return err
		}

		s.logger.Debug("running step", "target", report.Target, "step", step.Name())
		err := runStep(ctx, step, run)
		report.PerformedSteps = append(report.PerformedSteps, step.Name())
		if err != nil {
			s.logger.Error("step failed", "target", report.Target, "step", step.Name(), "error", err)
			report.Error = err.Error()
			return err
		}
	}
	return nil
}

// runStep runs step and turns a panic into an error.
func runStep(ctx context.Context, step Step, run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Debug("step panic", "step", step.Name(), "stack", string(debug.Stack()))
			err = fmt.Errorf("step %s panicked: %v", step.Name(), r)
		}
	}()
	return step.Do(ctx, run)
}
