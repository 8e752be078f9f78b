// Package workflow runs ordered steps with compensation in reverse order on
// failure and records every transition in a step log.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

// Step is one unit of a workflow operating on shared state S. Compensate is
// nil for steps with nothing to undo.
type Step[S any] struct {
	Name       string
	Execute    func(ctx context.Context, state *S) error
	Compensate func(ctx context.Context, state *S) error
}

// StepError is returned when a step fails. Err keeps the step's own error so
// callers can inspect its code; CompensationErr collects undo failures.
type StepError struct {
	Step            string
	Err             error
	CompensationErr error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("workflow step %s failed: %v", e.Step, e.Err)
	if e.CompensationErr != nil {
		msg += fmt.Sprintf(" (compensation: %v)", e.CompensationErr)
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Result summarises a run.
type Result struct {
	RunID       uuid.UUID
	Completed   []string
	Compensated []string
}

// Executor runs a fixed list of steps.
type Executor[S any] struct {
	name  string
	steps []Step[S]
	repo  Repository
	logg  *logger.Logger
}

// NewExecutor validates the step list.
func NewExecutor[S any](name string, repo Repository, logg *logger.Logger, steps ...Step[S]) (*Executor[S], error) {
	if name == "" {
		return nil, fmt.Errorf("workflow name required")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow %s has no steps", name)
	}
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if step.Name == "" || step.Execute == nil {
			return nil, fmt.Errorf("workflow %s: step name and execute are required", name)
		}
		if _, dup := seen[step.Name]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate step %s", name, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Executor[S]{name: name, steps: steps, repo: repo, logg: logg}, nil
}

// Name returns the workflow name recorded in the step log.
func (e *Executor[S]) Name() string {
	return e.name
}

// Run executes every step for key. Once a compensable step has completed,
// cancellation of ctx no longer skips the undo: compensation runs on a
// detached context.
func (e *Executor[S]) Run(ctx context.Context, key string, state *S) (*Result, error) {
	result := &Result{RunID: uuid.New()}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"workflow": e.name,
		"run_id":   result.RunID.String(),
		"key":      key,
	})

	var completed []Step[S]
	seq := 0
	for _, step := range e.steps {
		if err := ctx.Err(); err != nil {
			return result, e.fail(ctx, key, result, &seq, step.Name, err, completed, state)
		}

		seq++
		e.record(ctx, result.RunID, key, step.Name, seq, enums.WorkflowStepStarted, state, nil)
		if err := step.Execute(ctx, state); err != nil {
			return result, e.fail(ctx, key, result, &seq, step.Name, err, completed, state)
		}
		seq++
		e.record(ctx, result.RunID, key, step.Name, seq, enums.WorkflowStepCompleted, state, nil)
		completed = append(completed, step)
		result.Completed = append(result.Completed, step.Name)
	}
	return result, nil
}

func (e *Executor[S]) fail(ctx context.Context, key string, result *Result, seq *int, stepName string, cause error, completed []Step[S], state *S) error {
	*seq++
	e.record(ctx, result.RunID, key, stepName, *seq, enums.WorkflowStepFailed, state, cause)
	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{"step": stepName, "error": cause.Error()}), "workflow step failed")

	undoCtx := context.WithoutCancel(ctx)
	var compErr error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		*seq++
		if err := step.Compensate(undoCtx, state); err != nil {
			compErr = multierr.Append(compErr, fmt.Errorf("%s: %w", step.Name, err))
			e.record(undoCtx, result.RunID, key, step.Name, *seq, enums.WorkflowStepCompensationFailed, state, err)
			e.logg.Error(e.logg.WithField(undoCtx, "step", step.Name), "workflow compensation failed", err)
			continue
		}
		e.record(undoCtx, result.RunID, key, step.Name, *seq, enums.WorkflowStepCompensated, state, nil)
		result.Compensated = append(result.Compensated, step.Name)
	}
	return &StepError{Step: stepName, Err: cause, CompensationErr: compErr}
}

func (e *Executor[S]) record(ctx context.Context, runID uuid.UUID, key, step string, seq int, status enums.WorkflowStepStatus, state *S, cause error) {
	if e.repo == nil {
		return
	}
	entry := &models.WorkflowStepLog{
		RunID:    runID,
		Workflow: e.name,
		Key:      key,
		Step:     step,
		Sequence: seq,
		Status:   status,
	}
	if state != nil {
		if snapshot, err := json.Marshal(state); err == nil {
			entry.State = snapshot
		}
	}
	if cause != nil {
		msg := cause.Error()
		entry.Error = &msg
	}
	if err := e.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{"step": step, "status": status, "error": err.Error()}), "workflow step log write failed")
	}
}
