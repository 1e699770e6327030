package build

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cudaforge/cudaforge/internal/engine"
)

// Expands the configured matrix and publishes every cell concurrently.
//
// All tasks are dispatched at once and share the engine connection; no task
// blocks another, and no ordering is guaranteed between their completions.
// The run waits for every task to reach a terminal outcome before
// concluding: a task failure is collected, never used to cancel siblings,
// and cancellation of the caller's context never aborts an in-flight task.
//
// Returns the aggregate result. When any task failed, the returned error
// wraps [ErrTasksFailed] and the result lists every failure; the run is
// failed overall even if most tasks succeeded. A configuration error aborts
// before any task is dispatched.
func Run(ctx context.Context, eng engine.Engine, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	tasks := expand(opts.Matrix, opts.Platforms)

	slog.Info("starting build run",
		"registry", opts.Registry,
		"repository", opts.Repository,
		"tasks", len(tasks),
		"platforms", opts.Platforms,
	)

	pub := &publisher{engine: eng, opts: opts}

	// Tasks run to their natural conclusion. A cancelled caller context
	// (e.g. SIGINT) must not abort an in-flight pull or push, which would
	// leave a half-published tag behind.
	taskCtx := context.WithoutCancel(ctx)

	outcomes := make(chan Outcome, len(tasks))
	for _, task := range tasks {
		go func(task Task) {
			outcomes <- pub.publish(taskCtx, task)
		}(task)
	}

	result := &Result{}
	for range tasks {
		outcome := <-outcomes
		if outcome.Failed() {
			slog.Error("task failed", "tag", outcome.Tag, "cause", outcome.Err)
			result.Failures = append(result.Failures, outcome)
			continue
		}
		result.Published++
	}

	// Completion order is nondeterministic; sort for stable reporting.
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Tag < result.Failures[j].Tag
	})

	if len(result.Failures) > 0 {
		return result, fmt.Errorf("%w: %d of %d", ErrTasksFailed, len(result.Failures), len(tasks))
	}

	slog.Info("all images published", "count", result.Published)
	return result, nil
}
