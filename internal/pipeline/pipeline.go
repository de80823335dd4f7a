// Package pipeline loads a YAML step list and runs it in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/google/uuid"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// StepError wraps the failure of a named step.
type StepError struct {
	Step     string
	Module   string
	Function string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (%s.%s) failed: %v", e.Step, e.Module, e.Function, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Results maps step names to the values their steps returned.
type Results map[string]any

// Runner executes specs one at a time.
type Runner struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	running atomic.Bool
	ready   atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{logger: logger, metrics: metrics}
}

// CheckReadiness returns nil once a run has completed successfully.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// RunFile loads the spec at path and runs it. The file is re-read on every
// call so edits take effect on the next run.
func (r *Runner) RunFile(ctx context.Context, path string, reg *Registry) (Results, error) {
	spec, err := LoadSpec(path, reg)
	if err != nil {
		r.metrics.PipelineRuns.WithLabelValues("failure").Inc()
		r.logger.Error("pipeline load failed", "path", path, "error", err)
		return nil, err
	}
	return r.Run(ctx, spec)
}

// Run executes the steps in order and stops at the first failure. Results
// are returned only when every step succeeded.
func (r *Runner) Run(ctx context.Context, spec *Spec) (Results, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.metrics.PipelineRuns.WithLabelValues("rejected").Inc()
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)

	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	logger := r.logger.With("run_id", uuid.NewString())
	logger.Info("pipeline started", "path", spec.Path, "steps", len(spec.Steps))
	start := time.Now()

	results := make(Results, len(spec.Steps))
	for _, step := range spec.Steps {
		if err := ctx.Err(); err != nil {
			r.metrics.PipelineRuns.WithLabelValues("failure").Inc()
			logger.Warn("pipeline cancelled", "before_step", step.Name, "error", err)
			return nil, err
		}

		logger.Info("running step", "step", step.Name, "module", step.Module, "function", step.Function, "params", step.Params)
		stepStart := time.Now()
		res, err := step.run(ctx)
		r.metrics.StepDuration.WithLabelValues(step.Name).Observe(time.Since(stepStart).Seconds())
		if err != nil {
			r.metrics.StepFailures.WithLabelValues(step.Name).Inc()
			r.metrics.PipelineRuns.WithLabelValues("failure").Inc()
			logger.Error("step failed", "step", step.Name, "error", err)
			return nil, &StepError{Step: step.Name, Module: step.Module, Function: step.Function, Err: err}
		}
		results[step.Name] = res
		logger.Info("step finished", "step", step.Name, "duration", time.Since(stepStart), "result", res)
	}

	r.metrics.PipelineRuns.WithLabelValues("success").Inc()
	r.metrics.LastSuccess.SetToCurrentTime()
	r.ready.Store(true)
	logger.Info("pipeline finished", "duration", time.Since(start))
	return results, nil
}
