package stage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is a spec bound to its input, ready for a FanOut.
type Task struct {
	id  string
	run func(ctx context.Context, r *Runner) Result[any]
}

// ID is the stage id the task's result is keyed by.
func (t Task) ID() string { return t.id }

// Bind pairs spec with input.
func Bind[In, Out any](spec Spec[In, Out], input In) Task {
	return Task{
		id: spec.ID,
		run: func(ctx context.Context, r *Runner) Result[any] {
			return Run(ctx, r, spec, input).Erase()
		},
	}
}

// FanOut runs independent tasks concurrently and waits for all of them.
// A failing task never cancels its siblings.
type FanOut struct {
	runner *Runner
	limit  int
}

// NewFanOut returns an executor over runner. limit caps concurrently running
// tasks; zero or less means unbounded.
func NewFanOut(runner *Runner, limit int) *FanOut {
	if runner == nil {
		runner = NewRunner(nil)
	}
	return &FanOut{runner: runner, limit: limit}
}

// RunAll returns exactly one result per task keyed by task id. The error is
// non-nil only when the task set itself is malformed (a task without an id,
// or duplicate ids), in which case nothing runs.
func (f *FanOut) RunAll(ctx context.Context, tasks ...Task) (Results, error) {
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.id == "" || t.run == nil {
			return nil, Validationf("fan-out: task without id")
		}
		if _, dup := seen[t.id]; dup {
			return nil, Validationf("fan-out: duplicate stage id %q", t.id)
		}
		seen[t.id] = struct{}{}
	}

	// plain Group, not WithContext: one failure must not cancel the rest
	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	out := make([]Result[any], len(tasks))
	for i, t := range tasks {
		g.Go(func() error {
			out[i] = f.safeRun(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	results := make(Results, len(tasks))
	for i, t := range tasks {
		results[t.id] = out[i]
	}
	return results, nil
}

func (f *FanOut) safeRun(ctx context.Context, t Task) (res Result[any]) {
	defer func() {
		if p := recover(); p != nil {
			res = Failed[any](t.id, fmt.Errorf("stage %s panicked: %v", t.id, p), 0)
		}
	}()
	return t.run(ctx, f.runner)
}
