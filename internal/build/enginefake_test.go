package build

import (
	"context"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cudaforge/cudaforge/internal/engine"
	"github.com/cudaforge/cudaforge/internal/registry"
)

// A fake build engine for exercising aggregation and tagging logic without
// a container daemon. Failures are injected per destination reference, and
// every effectful call fails when its context is cancelled so context
// handling can be asserted.
type fakeEngine struct {
	mu sync.Mutex

	failPush map[string]error // Destination ref -> error returned by Publish.

	createCalls    int        // Number of containers created.
	attempts       []string   // Every Publish destination, in call order.
	published      []string   // Destinations that were pushed successfully.
	indexes        []string   // Destinations of published indexes.
	indexAuth      registry.Credentials
	indexManifests [][]ocispec.Descriptor
	closed         bool
}

var _ engine.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failPush: make(map[string]error)}
}

// Registers an error for every destination whose reference contains the
// given fragment.
func (e *fakeEngine) failPushMatching(fragment string, err error) {
	e.failPush[fragment] = err
}

func (e *fakeEngine) CreateContainer(ctx context.Context, platform string) (engine.Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createCalls++
	return &fakeContainer{engine: e, platform: platform}, nil
}

func (e *fakeEngine) PublishIndex(ctx context.Context, destination string, auth registry.Credentials, manifests []ocispec.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.indexes = append(e.indexes, destination)
	e.indexAuth = auth
	e.indexManifests = append(e.indexManifests, manifests)
	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) publish(destination, platform string) (ocispec.Descriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.attempts = append(e.attempts, destination)

	for fragment, err := range e.failPush {
		if strings.Contains(destination, fragment) {
			return ocispec.Descriptor{}, err
		}
	}

	e.published = append(e.published, destination)

	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeImageManifest,
		Digest:    digest.FromString(destination),
		Size:      int64(len(destination)),
	}
	if platform != "" {
		osName, arch, _ := strings.Cut(platform, "/")
		desc.Platform = &ocispec.Platform{OS: osName, Architecture: arch}
	}
	return desc, nil
}

// A fake container handle. Configuration calls record state; Publish
// delegates to the engine's recorder.
type fakeContainer struct {
	engine   *fakeEngine
	platform string

	baseImage string
	workdir   string
	env       map[string]string
	labels    map[string]string
	auth      registry.Credentials
	commands  [][]string
}

func (c *fakeContainer) FromBaseImage(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.baseImage = ref
	return nil
}

func (c *fakeContainer) SetWorkdir(path string) { c.workdir = path }

func (c *fakeContainer) SetEnvVar(key, value string) {
	if c.env == nil {
		c.env = make(map[string]string)
	}
	c.env[key] = value
}

func (c *fakeContainer) SetLabel(key, value string) {
	if c.labels == nil {
		c.labels = make(map[string]string)
	}
	c.labels[key] = value
}

func (c *fakeContainer) SetRegistryAuth(auth registry.Credentials) { c.auth = auth }

func (c *fakeContainer) RunCommand(ctx context.Context, argv []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.commands = append(c.commands, argv)
	return nil
}

func (c *fakeContainer) Publish(ctx context.Context, destination string) (ocispec.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return ocispec.Descriptor{}, err
	}
	return c.engine.publish(destination, c.platform)
}

func (c *fakeContainer) Destroy(ctx context.Context) {}
