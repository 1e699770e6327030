package matrix

import (
	"fmt"
	"strings"
)

// Default platform for single-platform runs.
const DefaultPlatform = "linux/amd64"

// Platforms built when multi-architecture runs are enabled.
//
// CUDA support on arm64 may be limited depending on package availability.
var SupportedPlatforms = []string{"linux/amd64", "linux/arm64"}

// Operating systems accepted in platform strings.
var supportedPlatformOS = map[string]bool{
	"linux": true,
}

// Returns the canonical tag for the logical image:
// {os}_python_{python}_cuda_{cuda}_{framework}.
//
// Version strings are embedded verbatim, never normalized or truncated, so
// distinct parameter tuples always derive distinct tags.
func (p Params) Tag() string {
	return fmt.Sprintf("%s_python_%s_cuda_%s_%s",
		p.OSVersion, p.PythonVersion, p.CUDAVersion, p.Framework.Name)
}

// Returns the tag qualified with the platform's architecture:
// {tag}_{arch} for "os/arch" platforms.
//
// An empty platform yields the unqualified tag, identical to [Params.Tag].
// A malformed platform is reported as an error rather than producing a
// malformed tag.
func (p Params) PlatformTag(platform string) (string, error) {
	if platform == "" {
		return p.Tag(), nil
	}

	_, arch, err := ParsePlatform(platform)
	if err != nil {
		return "", err
	}

	return p.Tag() + "_" + arch, nil
}

// Splits a platform string into its OS and architecture components.
//
// A platform must have exactly two non-empty slash-separated components,
// and the OS component must be a supported value.
func ParsePlatform(platform string) (osName, arch string, err error) {
	parts := strings.Split(platform, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q must have the form os/arch", ErrPlatform, platform)
	}

	if !supportedPlatformOS[parts[0]] {
		return "", "", fmt.Errorf("%w: unsupported os %q in %q", ErrPlatform, parts[0], platform)
	}

	return parts[0], parts[1], nil
}
