package build

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cudaforge/cudaforge/internal/engine"
	"github.com/cudaforge/cudaforge/internal/matrix"
)

// Publishes one task at a time against the shared engine connection.
// Publishers hold only immutable run state, so one instance serves all
// concurrent tasks.
type publisher struct {
	engine engine.Engine // Shared build engine connection.
	opts   Options       // Immutable run configuration.
}

// Builds and publishes one task, returning its terminal outcome.
//
// Every failure is caught here and turned into data: the outcome carries
// the task's logical tag and the proximate cause, and nothing propagates
// to sibling tasks.
func (p *publisher) publish(ctx context.Context, task Task) Outcome {
	tag := task.Params.Tag()
	slog.Info("building image", "tag", tag, "platforms", task.Platforms)

	var (
		refs []string
		err  error
	)
	if task.MultiPlatform() {
		refs, err = p.publishMultiPlatform(ctx, task)
	} else {
		refs, err = p.publishSinglePlatform(ctx, task)
	}

	if err != nil {
		return Outcome{Tag: tag, Err: fmt.Errorf("%s: %w", tag, err)}
	}

	return Outcome{Tag: tag, Refs: refs}
}

// Publishes a single-platform task under its unqualified logical tag.
func (p *publisher) publishSinglePlatform(ctx context.Context, task Task) ([]string, error) {
	var platform string
	if len(task.Platforms) == 1 {
		platform = task.Platforms[0]
	}

	dest := p.opts.reference(task.Params.Tag())
	if _, err := p.realizeAndPush(ctx, task.Params, platform, dest); err != nil {
		return nil, err
	}

	slog.Info("published", "ref", dest)
	return []string{dest}, nil
}

// Publishes a multi-platform task: one image per platform under its
// architecture-qualified tag, then a combined index under the logical tag.
//
// Variants are pushed in the configured platform order. The first variant
// failure fails the whole task; remaining variants are not attempted and
// no partial index is ever published.
func (p *publisher) publishMultiPlatform(ctx context.Context, task Task) ([]string, error) {
	refs := make([]string, 0, len(task.Platforms)+1)
	manifests := make([]ocispec.Descriptor, 0, len(task.Platforms))

	for _, platform := range task.Platforms {
		archTag, err := task.Params.PlatformTag(platform)
		if err != nil {
			return nil, err
		}

		dest := p.opts.reference(archTag)
		desc, err := p.realizeAndPush(ctx, task.Params, platform, dest)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", platform, err)
		}

		slog.Info("published platform variant", "ref", dest)
		refs = append(refs, dest)
		manifests = append(manifests, desc)
	}

	dest := p.opts.reference(task.Params.Tag())
	if err := p.engine.PublishIndex(ctx, dest, p.opts.auth(), manifests); err != nil {
		return nil, err
	}

	slog.Info("published multi-arch index", "ref", dest)
	return append(refs, dest), nil
}

// Realizes one build specification against the engine and pushes the
// result to the destination reference.
//
// The container is destroyed when the pipeline completes, successful or
// not. Env and labels are applied in sorted key order so committed image
// configs are reproducible.
func (p *publisher) realizeAndPush(ctx context.Context, params matrix.Params, platform, dest string) (ocispec.Descriptor, error) {
	spec := NewSpec(params, platform, p.opts.Username, p.opts.Repository)

	ctr, err := p.engine.CreateContainer(ctx, spec.Platform)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	defer ctr.Destroy(ctx)

	if err := ctr.FromBaseImage(ctx, spec.BaseImage); err != nil {
		return ocispec.Descriptor{}, err
	}

	ctr.SetWorkdir(spec.Workdir)

	for _, argv := range spec.Commands {
		if err := ctr.RunCommand(ctx, argv); err != nil {
			return ocispec.Descriptor{}, err
		}
	}

	for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
		ctr.SetEnvVar(k, spec.Env[k])
	}
	for _, k := range slices.Sorted(maps.Keys(spec.Labels)) {
		ctr.SetLabel(k, spec.Labels[k])
	}

	ctr.SetRegistryAuth(p.opts.auth())

	return ctr.Publish(ctx, dest)
}
