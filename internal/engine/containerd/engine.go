package containerd

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/remotes"
	"github.com/containerd/containerd/v2/core/remotes/docker"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/google/uuid"
	imagespecs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cudaforge/cudaforge/internal/engine"
	"github.com/cudaforge/cudaforge/internal/registry"
)

const (

	// Default containerd socket address.
	DefaultAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and containers.
	DefaultNamespace = "cudaforge"

	// Snapshotter used for container filesystems.
	snapshotter = "overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"

	// Prefix for build container IDs.
	containerPrefix = "cudaforge"
)

// Compile-time check that the adapter satisfies the engine contract.
var _ engine.Engine = (*Engine)(nil)

// A containerd-backed build engine.
//
// One client connection is shared by all build containers; containerd
// serializes access internally, so the engine is safe for concurrent use.
type Engine struct {
	client *containerd.Client // Containerd client for managing containers and images.
}

// Connects to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to this tool's images and
// containers. The engine must be closed when no longer needed.
func New(address, namespace string) (*Engine, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}
	return &Engine{client: client}, nil
}

// Closes the containerd client connection.
func (e *Engine) Close() error {
	return e.client.Close()
}

// Creates a handle for a new build container targeting the given platform.
//
// An empty platform selects the host platform. The platform string is
// validated here so a malformed target fails before any image is pulled.
// Preparing a platform other than the host requires QEMU / binfmt_misc
// support in the kernel. Container IDs are random so concurrent tasks
// sharing the namespace never collide.
func (e *Engine) CreateContainer(ctx context.Context, platform string) (engine.Container, error) {
	if platform == "" {
		platform = defaultPlatform()
	}

	if _, err := platforms.Parse(platform); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", engine.ErrPlatformUnsupported, platform, err)
	}

	return &Container{
		client:   e.client,
		id:       fmt.Sprintf("%s-%s", containerPrefix, uuid.NewString()),
		platform: platform,
		env:      make(map[string]string),
		labels:   make(map[string]string),
	}, nil
}

// Publishes an OCI image index referencing previously pushed per-platform
// manifests.
//
// The index blob is written to the content store under a lease and pushed
// to the destination. The referenced manifests must already exist in the
// destination repository (pushed under their architecture-qualified tags),
// so only the index blob itself crosses the wire.
func (e *Engine) PublishIndex(ctx context.Context, destination string, auth registry.Credentials, manifests []ocispec.Descriptor) error {
	ctx, done, err := e.client.WithLease(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}
	defer done(context.Background())

	index := ocispec.Index{
		Versioned: imagespecs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: manifests,
	}

	desc, err := writeBlob(ctx, e.client.ContentStore(), ocispec.MediaTypeImageIndex, index,
		destination+"-index", content.WithLabels(indexGCLabels(index)))
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrEngine, err)
	}

	return push(ctx, e.client, destination, desc, auth)
}

// Returns the default OCI platform for the host architecture.
func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}

// Builds a registry resolver that authenticates with the given credentials.
//
// The secret is revealed only inside the auth callback; it never appears in
// resolver state that could be logged.
func resolver(auth registry.Credentials) remotes.Resolver {
	authorizer := docker.NewDockerAuthorizer(
		docker.WithAuthCreds(func(host string) (string, string, error) {
			return auth.Username, auth.Secret.Reveal(), nil
		}),
	)

	return docker.NewResolver(docker.ResolverOptions{
		Hosts: docker.ConfigureDefaultRegistries(docker.WithAuthorizer(authorizer)),
	})
}

// Pushes a descriptor and its reachable content to a registry reference.
//
// Failures are classified into the engine taxonomy: authentication errors
// are distinguished from other push failures so the publisher can report a
// precise cause.
func push(ctx context.Context, client *containerd.Client, ref string, desc ocispec.Descriptor, auth registry.Credentials) error {
	if err := client.Push(ctx, ref, desc, containerd.WithResolver(resolver(auth))); err != nil {
		if errdefs.IsUnauthorized(err) {
			return fmt.Errorf("%w: %s: %w", engine.ErrAuthentication, ref, err)
		}
		return fmt.Errorf("%w: %s: %w", engine.ErrRegistryPush, ref, err)
	}

	slog.Debug("pushed", "ref", ref, "digest", desc.Digest)
	return nil
}
