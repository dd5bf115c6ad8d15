package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/sitepipe/internal/events"
	"github.com/msageha/sitepipe/internal/telemetry"
)

// Runner executes workflow trees.
type Runner struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewRunner creates a runner. Both arguments may be nil.
func NewRunner(logger *slog.Logger, metrics *Metrics) *Runner {
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Runner{logger: logger, metrics: metrics}
}

// Run validates root and executes it to completion. env.RunID is filled in
// when empty. The returned error wraps a *TaskError naming the failing leaf,
// or is a *ValidationErrors when the workflow definition is rejected.
func (r *Runner) Run(ctx context.Context, root *Task, env Env) error {
	if err := Validate(root); err != nil {
		return err
	}
	if env.RunID == "" {
		env.RunID = uuid.NewString()
	}
	if env.Logger == nil {
		env.Logger = r.logger
	}
	env.Logger = telemetry.WithRunID(env.Logger, env.RunID)

	start := time.Now()
	env.Logger.Info("workflow started", "workflow", root.Name, "mode", env.Mode.String())
	err := r.run(ctx, root, env)
	if err != nil {
		env.Logger.Error("workflow failed", "workflow", root.Name,
			"failed_task", FailedTask(err), "duration", time.Since(start), "error", err)
		return err
	}
	env.Logger.Info("workflow finished", "workflow", root.Name, "duration", time.Since(start))
	return nil
}

func (r *Runner) run(ctx context.Context, t *Task, env Env) error {
	switch t.Kind {
	case KindSequence:
		return r.runSequence(ctx, t, env)
	case KindParallel:
		return r.runParallel(ctx, t, env)
	default:
		return r.runLeaf(ctx, t, env)
	}
}

func (r *Runner) runSequence(ctx context.Context, t *Task, env Env) error {
	for _, child := range t.Children {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s interrupted before %s: %w", t.Name, child.Name, err)
		}
		if err := r.run(ctx, child, env); err != nil {
			return err
		}
	}
	return nil
}

// runParallel does not derive a cancellable context: siblings already in
// flight always run to completion and the first failure is reported.
func (r *Runner) runParallel(ctx context.Context, t *Task, env Env) error {
	var g errgroup.Group
	for _, child := range t.Children {
		g.Go(func() error {
			return r.run(ctx, child, env)
		})
	}
	return g.Wait()
}

func (r *Runner) runLeaf(ctx context.Context, t *Task, env Env) (err error) {
	logger := telemetry.WithTask(env.Logger, t.Name)
	env.Logger = logger

	start := time.Now()
	logger.Debug("task started")

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		elapsed := time.Since(start)
		if err != nil {
			var te *TaskError
			if !errors.As(err, &te) {
				err = &TaskError{Task: t.Name, Err: err}
			}
			logger.Error("task failed", "duration", elapsed, "error", err)
		} else {
			logger.Info("task finished", "duration", elapsed)
		}
		r.metrics.observe(t.Name, elapsed, err)
		env.Bus.Publish(events.Event{Type: events.EventTaskFinished, Task: t.Name, Err: err})
	}()

	return t.fn(ctx, env)
}

// RunTask executes t without validation or start/finish records. Watchers
// use it to re-run a task that was already validated as part of a workflow.
// Each call is its own run: env.RunID is filled in when empty.
func (r *Runner) RunTask(ctx context.Context, t *Task, env Env) error {
	if env.RunID == "" {
		env.RunID = uuid.NewString()
	}
	if env.Logger == nil {
		env.Logger = r.logger
	}
	env.Logger = telemetry.WithRunID(env.Logger, env.RunID)
	return r.run(ctx, t, env)
}
