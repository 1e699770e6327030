package build

import (
	"github.com/cudaforge/cudaforge/internal/matrix"
)

// One unit of work: a single logical image built for the run's platform
// list. Tasks are transient, in-memory values with a lifetime bounded by
// one run; they are created by expansion and discarded after publication.
type Task struct {
	Params    matrix.Params // The matrix cell this task builds.
	Platforms []string      // Target platforms, shared across all tasks in the run.
}

// Reports whether the task publishes per-architecture variants plus a
// combined index, rather than a single image.
func (t Task) MultiPlatform() bool {
	return len(t.Platforms) > 1
}

// Expands the matrix into one task per cell, each carrying the run's
// shared platform list.
func expand(m matrix.Matrix, platforms []string) []Task {
	params := m.Params()
	tasks := make([]Task, 0, len(params))
	for _, p := range params {
		tasks = append(tasks, Task{Params: p, Platforms: platforms})
	}
	return tasks
}

// The terminal result of one task. Owned by the goroutine that produced it
// until handed back to the orchestrator over the outcome channel.
type Outcome struct {
	Tag  string   // Logical tag identifying the task.
	Refs []string // Published references, in publish order.
	Err  error    // Proximate cause when the task failed.
}

// Reports whether the task failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// The aggregate result of a run.
type Result struct {
	Published int       // Number of tasks that published successfully.
	Failures  []Outcome // Outcomes of failed tasks, sorted by tag.
}
