package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cudaforge/cudaforge/internal/build"
	containerdengine "github.com/cudaforge/cudaforge/internal/engine/containerd"
	"github.com/cudaforge/cudaforge/internal/matrix"
	"github.com/cudaforge/cudaforge/internal/paths"
	"github.com/cudaforge/cudaforge/internal/registry"
)

// Represents the 'cudaforge build' command.
type BuildCmd struct {
	Repository string `help:"Target repository name." env:"REPOSITORY" default:"wolfi-cuda-base-image"`
	Username   string `help:"Registry username." env:"USERNAME,username"`
	Password   string `help:"Registry password or token." env:"PASSWORD,password"`
	Registry   string `help:"Registry host." env:"REGISTRY" default:"ghcr.io"`
	MultiArch  bool   `help:"Build and publish every supported architecture plus a combined index." env:"MULTI_ARCH"`
	Matrix     string `help:"Path to a YAML build matrix. Falls back to the built-in default matrix." env:"MATRIX_FILE" type:"path" placeholder:"PATH"`
	Containerd string `help:"Containerd socket address." env:"CONTAINERD_ADDRESS" default:"${containerd_address}"`
	Namespace  string `help:"Containerd namespace." default:"${containerd_namespace}"`
}

// Executes the build command.
//
// Configuration is assembled and validated before the engine is contacted,
// so missing credentials or a malformed matrix abort with zero publish
// attempts. The run itself waits for every task; the returned error
// distinguishes task failures from configuration errors for the exit code.
func (c *BuildCmd) Run(ctx context.Context) error {
	m, err := c.loadMatrix()
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfiguration, err)
	}

	platforms := []string{matrix.DefaultPlatform}
	if c.MultiArch {
		platforms = matrix.SupportedPlatforms
	}

	opts := build.Options{
		Registry:   c.Registry,
		Repository: c.Repository,
		Username:   c.Username,
		Secret:     registry.NewSecret(c.Password),
		Matrix:     m,
		Platforms:  platforms,
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	frameworks := make([]string, 0, len(m.Frameworks))
	for _, fw := range m.Frameworks {
		frameworks = append(frameworks, fw.Name)
	}

	slog.Info("build configuration",
		"repository", c.Repository,
		"os", m.OSVersions,
		"cuda", m.CUDAVersions,
		"python", m.PythonVersions,
		"frameworks", frameworks,
		"platforms", platforms,
		"multi_arch", c.MultiArch,
	)

	eng, err := containerdengine.New(c.Containerd, c.Namespace)
	if err != nil {
		return err
	}
	defer eng.Close()

	_, err = build.Run(ctx, eng, opts)
	return err
}

// Loads the build matrix.
//
// An explicit --matrix path must load and parse. Without one, a matrix file
// at the default location is used when present; otherwise the built-in
// default matrix applies.
func (c *BuildCmd) loadMatrix() (matrix.Matrix, error) {
	path := c.Matrix
	if path == "" {
		path = paths.MatrixFile()
		if _, err := os.Stat(path); err != nil {
			return matrix.Default(), nil
		}
	}
	return matrix.Load(path)
}
