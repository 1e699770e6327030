package build

import (
	"fmt"
	"strings"

	"github.com/cudaforge/cudaforge/internal/matrix"
)

const (

	// Base image all variants build from.
	BaseImage = "cgr.dev/chainguard/wolfi-base"

	// Working directory inside build containers and published images.
	workdir = "/app"

	// Bootstrap command for the conda package manager used to install the
	// CUDA toolkit and framework packages.
	micromambaBootstrap = "curl -Ls https://micro.mamba.pm/api/micromamba/linux-64/latest | tar -xvj -C /usr/local bin/micromamba"
)

// Utility packages installed into every image alongside the interpreter.
var utilityPackages = []string{"curl", "bash"}

// A complete build specification for one container: everything the
// publisher needs to realize and push an image. Specs are plain data;
// constructing one performs no engine, network, or process calls.
type Spec struct {
	BaseImage string            // Registry reference of the base image.
	Platform  string            // OCI platform, empty for the engine default.
	Workdir   string            // Working directory for commands and the image config.
	Commands  [][]string        // Install commands, executed in order.
	Env       map[string]string // Environment variables for the image config.
	Labels    map[string]string // OCI labels describing the logical image.
}

// Constructs the build specification for one matrix cell on one platform.
//
// Label values reflect the logical image identity (framework, CUDA version,
// Python version) even when the spec itself is architecture-specific, so
// every variant of an image advertises the same metadata.
func NewSpec(params matrix.Params, platform, username, repository string) Spec {
	packages := strings.Join(basePackages(params.PythonVersion), " ")
	conda := strings.Join(condaPackages(params.CUDAVersion, params.Framework), " ")

	return Spec{
		BaseImage: BaseImage,
		Platform:  platform,
		Workdir:   workdir,
		Commands: [][]string{
			{"/bin/sh", "-c", "apk update && apk add --no-cache " + packages},
			{"/bin/sh", "-c", micromambaBootstrap},
			{"/bin/sh", "-c", "/usr/local/bin/micromamba install -y -n base -c conda-forge " + conda +
				" && /usr/local/bin/micromamba clean --all --yes"},
		},
		Env: map[string]string{
			"MAMBA_ROOT_PREFIX": "/root/micromamba",
			"PATH":              "/root/micromamba/bin:/usr/local/cuda/bin:$PATH",
			"LD_LIBRARY_PATH":   "/root/micromamba/lib:$LD_LIBRARY_PATH",
		},
		Labels: map[string]string{
			"org.opencontainers.image.source":      fmt.Sprintf("https://github.com/%s/%s", username, repository),
			"org.opencontainers.image.description": fmt.Sprintf("Wolfi-based CUDA %s image with Python %s", params.CUDAVersion, params.PythonVersion),
			"org.opencontainers.image.licenses":    "Apache-2.0",
			"org.opencontainers.image.title":       "wolfi-cuda-" + params.Framework.Name,
		},
	}
}

// Returns the base layer package list: the Python interpreter, its package
// manager, and the fixed utility set.
func basePackages(pythonVersion string) []string {
	packages := []string{
		"python-" + pythonVersion,
		"py" + pythonVersion + "-pip",
	}
	return append(packages, utilityPackages...)
}

// Returns the conda package list: the CUDA toolkit pinned to the version's
// major.minor prefix, plus the framework's packages when present.
func condaPackages(cudaVersion string, fw matrix.Framework) []string {
	packages := []string{"cuda-toolkit=" + cudaMajorMinor(cudaVersion)}
	if fw.Packages != "" {
		packages = append(packages, fw.Packages)
	}
	return packages
}

// Drops the patch component of a CUDA version (e.g., "12.4.1" -> "12.4").
//
// Versions without a patch component are returned unchanged.
func cudaMajorMinor(version string) string {
	if i := strings.LastIndexByte(version, '.'); strings.Count(version, ".") >= 2 && i > 0 {
		return version[:i]
	}
	return version
}
