package engine

import (
	"context"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cudaforge/cudaforge/internal/registry"
)

// A build engine that realizes containers and publishes images.
//
// One engine connection is shared by all concurrent tasks in a run; no
// operation mutates engine-level state, so no locking discipline is
// required of callers.
type Engine interface {

	// Creates a container for the given OCI platform (e.g., "linux/amd64").
	// An empty platform selects the engine's default. No image is pulled
	// until [Container.FromBaseImage].
	CreateContainer(ctx context.Context, platform string) (Container, error)

	// Publishes a multi-architecture image index referencing previously
	// pushed per-platform manifests. Every descriptor must carry its
	// platform and already exist in the destination repository.
	PublishIndex(ctx context.Context, destination string, auth registry.Credentials, manifests []ocispec.Descriptor) error

	// Closes the engine connection.
	Close() error
}

// A single build container.
//
// Configuration calls (workdir, env, labels, auth) only record state on the
// handle; FromBaseImage, RunCommand, and Publish perform the engine work.
// A failed RunCommand aborts the container's pipeline.
type Container interface {

	// Initializes the container filesystem from a registry image.
	FromBaseImage(ctx context.Context, ref string) error

	// Sets the working directory for commands and the published image.
	SetWorkdir(path string)

	// Sets an environment variable for commands and the published image.
	SetEnvVar(key, value string)

	// Sets an OCI label on the published image config.
	SetLabel(key, value string)

	// Records registry credentials for the subsequent publish.
	SetRegistryAuth(auth registry.Credentials)

	// Runs a command inside the container. A non-zero exit is an error.
	RunCommand(ctx context.Context, argv []string) error

	// Commits the container filesystem and pushes the result to the
	// destination reference. Returns the pushed manifest descriptor with
	// its platform populated.
	Publish(ctx context.Context, destination string) (ocispec.Descriptor, error)

	// Releases the container and its resources. Safe to call after a
	// failed pipeline.
	Destroy(ctx context.Context)
}
