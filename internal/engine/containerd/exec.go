package containerd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cudaforge/cudaforge/internal/engine"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Runs a command inside the container.
//
// The command runs with the environment variables and working directory
// recorded on the handle overlaid on the container's OCI spec. A non-zero
// exit code is a package installation failure carrying the captured
// stderr, since every command a build spec issues is a package operation.
func (c *Container) RunCommand(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("%w: empty command", engine.ErrEngine)
	}

	pspec, err := c.buildProcessSpec(ctx, argv)
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	var stdout, stderr bytes.Buffer
	exitCode, err := c.execProcess(ctx, pspec, &stdout, &stderr)
	if err != nil {
		return err
	}

	if exitCode != 0 {
		return fmt.Errorf("%w: %q exited with code %d: %s",
			engine.ErrPackageInstall, strings.Join(argv, " "), exitCode,
			strings.TrimSpace(stderr.String()))
	}

	return nil
}

// Builds an OCI process spec for running a command inside the container.
//
// The base values are copied from the container's own OCI spec, then the
// handle's env and workdir are overlaid.
func (c *Container) buildProcessSpec(ctx context.Context, argv []string) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = argv

	if len(c.env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, c.environ())
	}
	if c.workdir != "" {
		pspec.Cwd = c.workdir
	}

	return &pspec, nil
}

// Formats the handle's environment as a sorted list of "key=value" strings.
//
// Sorting keeps process specs and committed image configs identical across
// runs with the same inputs.
func (c *Container) environ() []string {
	env := make([]string, 0, len(c.env))
	for k, v := range c.env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Merges override env vars on top of a base env slice.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	order := make([]string, 0, len(base)+len(overrides))

	for _, entry := range append(append([]string{}, base...), overrides...) {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}

	result := make([]string, 0, len(merged))
	for _, k := range order {
		result = append(result, k+"="+merged[k])
	}
	return result
}

// Starts a process inside the container's running task, waits for it to
// exit, and returns the exit code.
//
// The process is attached to the task as an additional exec, not as the
// primary process, so the task must already be running (started during
// FromBaseImage). A non-zero exit code is not treated as an error here;
// the caller decides.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdout, stderr io.Writer) (int, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(nil, stdout, stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	exitStatus := <-statusC
	process.Delete(ctx)

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	return int(code), nil
}
