package build

import (
	"fmt"

	"github.com/cudaforge/cudaforge/internal/matrix"
	"github.com/cudaforge/cudaforge/internal/registry"
)

// Controls a build run. Constructed once at startup from process
// configuration and treated as immutable for the run's duration.
type Options struct {
	Registry   string           // Registry host (e.g., "ghcr.io").
	Repository string           // Repository name under the user's namespace.
	Username   string           // Registry username, also the image namespace.
	Secret     *registry.Secret // Registry password or token handle.
	Matrix     matrix.Matrix    // Build parameter space to expand.
	Platforms  []string         // Target platforms, shared by every task in the run.
}

// Checks that the run can start.
//
// Missing credentials and malformed matrix entries or platforms are fatal
// configuration errors; they must abort the run before any task is
// dispatched.
func (o Options) Validate() error {
	if o.Registry == "" {
		return fmt.Errorf("%w: registry host is required", ErrConfiguration)
	}
	if o.Repository == "" {
		return fmt.Errorf("%w: repository is required", ErrConfiguration)
	}
	if o.Username == "" {
		return fmt.Errorf("%w: registry username is required", ErrConfiguration)
	}
	if o.Secret.Empty() {
		return fmt.Errorf("%w: registry secret is required", ErrConfiguration)
	}

	if err := o.Matrix.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if len(o.Platforms) == 0 {
		return fmt.Errorf("%w: at least one platform is required", ErrConfiguration)
	}
	for _, platform := range o.Platforms {
		if _, _, err := matrix.ParsePlatform(platform); err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	return nil
}

// Returns the registry credentials shared by every task in the run.
func (o Options) auth() registry.Credentials {
	return registry.Credentials{
		Host:     o.Registry,
		Username: o.Username,
		Secret:   o.Secret,
	}
}

// Builds the push destination for a tag.
func (o Options) reference(tag string) string {
	return registry.Reference(o.Registry, o.Username, o.Repository, tag)
}
