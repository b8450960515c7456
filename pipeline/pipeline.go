// Package pipeline provides the ordered-stage runner behind the
// provisioning command. Stages execute strictly in sequence; the first
// failure halts the run and is surfaced with the stage name attached.
// There is no compensation: the sanctioned recovery path is re-running
// the pipeline, which is safe because every deployment uses a stable
// name and the deployment service treats a same-name submission as an
// update.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stage is a single step in a provisioning pipeline.
type Stage interface {
	// Name returns a short identifier used in logs and progress records.
	Name() string

	// Run performs the stage's work. A non-nil error halts the pipeline.
	Run(ctx context.Context) error
}

// Status describes the progress of one stage within a run.
type Status string

const (
	StagePending Status = "pending"
	StageRunning Status = "running"
	StageDone    Status = "done"
	StageFailed  Status = "failed"
)

// Record captures the outcome of one stage.
type Record struct {
	Name        string
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// Runner executes stages in order, recording progress for each.
type Runner struct {
	logger  *slog.Logger
	stages  []Stage
	records []Record
}

// NewRunner creates a Runner over the given stages.
func NewRunner(logger *slog.Logger, stages ...Stage) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	records := make([]Record, len(stages))
	for i, s := range stages {
		records[i] = Record{Name: s.Name(), Status: StagePending}
	}
	return &Runner{logger: logger, stages: stages, records: records}
}

// Run executes all stages in sequence. It checks for context
// cancellation before each stage and stops at the first error, wrapping
// it with the failing stage's name.
func (r *Runner) Run(ctx context.Context) error {
	for i, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			r.records[i].Status = StageFailed
			r.records[i].Error = err.Error()
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		r.records[i].Status = StageRunning
		r.records[i].StartedAt = time.Now()
		r.logger.Info("stage starting", "stage", stage.Name())

		if err := stage.Run(ctx); err != nil {
			r.records[i].Status = StageFailed
			r.records[i].CompletedAt = time.Now()
			r.records[i].Error = err.Error()
			r.logger.Error("stage failed", "stage", stage.Name(), "error", err)
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		r.records[i].Status = StageDone
		r.records[i].CompletedAt = time.Now()
		r.logger.Info("stage completed", "stage", stage.Name())
	}
	return nil
}

// Records returns a copy of the per-stage progress records.
func (r *Runner) Records() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Func adapts a function to the Stage interface.
func Func(name string, fn func(ctx context.Context) error) Stage {
	return funcStage{name: name, fn: fn}
}

type funcStage struct {
	name string
	fn   func(ctx context.Context) error
}

func (s funcStage) Name() string                  { return s.name }
func (s funcStage) Run(ctx context.Context) error { return s.fn(ctx) }
