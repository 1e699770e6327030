package containerd

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cudaforge/cudaforge/internal/engine"
	"github.com/cudaforge/cudaforge/internal/registry"
)

// Compile-time check that the adapter satisfies the engine contract.
var _ engine.Container = (*Container)(nil)

// A build container backed by containerd.
//
// Environment variables, labels, workdir, and registry auth accumulate on
// the handle; they apply to subsequent command execution and to the image
// config committed by Publish.
type Container struct {
	client   *containerd.Client  // Containerd client for managing the container.
	id       string              // Unique identifier, used as the containerd container ID.
	platform string              // OCI platform (e.g., "linux/amd64").
	workdir  string              // Working directory for commands and the image config.
	env      map[string]string   // Environment overrides for commands and the image config.
	labels   map[string]string   // OCI labels for the image config.
	auth     registry.Credentials // Credentials for the publish step.
}

// Pulls the base image for the container's platform and starts the build
// container.
//
// The image layers are unpacked into the snapshotter, a container is
// created with a fresh snapshot, and a long-running task (sleep infinity)
// is started so that subsequent RunCommand calls have a running process to
// attach to.
func (c *Container) FromBaseImage(ctx context.Context, ref string) error {
	p, err := platforms.Parse(c.platform)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", engine.ErrPlatformUnsupported, c.platform, err)
	}

	image, err := c.client.Pull(ctx, ref,
		containerd.WithPlatformMatcher(platforms.Only(p)),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	)
	if err != nil {
		return fmt.Errorf("%w: pull %s for %s: %w", engine.ErrEngine, ref, c.platform, err)
	}

	ctr, err := c.create(ctx, image)
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	slog.Debug("container started", "id", c.id, "image", ref, "platform", c.platform)

	return nil
}

// Sets the working directory for commands and the published image.
func (c *Container) SetWorkdir(path string) {
	c.workdir = path
}

// Sets an environment variable for commands and the published image.
func (c *Container) SetEnvVar(key, value string) {
	c.env[key] = value
}

// Sets an OCI label on the published image config.
func (c *Container) SetLabel(key, value string) {
	c.labels[key] = value
}

// Records registry credentials for the subsequent publish.
func (c *Container) SetRegistryAuth(auth registry.Credentials) {
	c.auth = auth
}

// Removes the container and its resources.
//
// The task is killed and the container is removed from containerd along
// with its snapshot. After destruction the handle is invalid. Destroying a
// container that was never started is a no-op.
func (c *Container) Destroy(ctx context.Context) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			slog.Warn("failed to load container for destruction", "id", c.id, "error", err)
		}
		return
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("failed to delete container during destruction", "id", c.id, "error", err)
	}
}

// Creates the containerd container with the standard build configuration.
func (c *Container) create(ctx context.Context, image containerd.Image) (containerd.Container, error) {
	return c.client.NewContainer(ctx, c.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(c.id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(c.platform),
			oci.WithImageConfig(image),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithProcessArgs("sleep", "infinity"),
		),
	)
}

// Starts the container's long-running task with no attached IO.
func (c *Container) startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Stops the container's task ahead of the commit.
//
// The running task is killed and deleted; the container metadata and
// snapshot are preserved for the snapshot diff. Stopping an already
// stopped container is not an error.
func (c *Container) stopTask(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	task.Kill(ctx, syscall.SIGKILL)
	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	return nil
}
