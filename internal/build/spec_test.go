package build

import (
	"strings"
	"testing"

	"github.com/cudaforge/cudaforge/internal/matrix"
)

func TestCudaMajorMinor(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"12.4.1", "12.4"},
		{"12.6.0", "12.6"},
		{"12.4", "12.4"},
		{"13", "13"},
	}

	for _, tt := range tests {
		if got := cudaMajorMinor(tt.version); got != tt.want {
			t.Errorf("cudaMajorMinor(%q) = %q, want %q", tt.version, got, tt.want)
		}
	}
}

func TestBasePackages(t *testing.T) {
	got := basePackages("3.11")
	want := []string{"python-3.11", "py3.11-pip", "curl", "bash"}

	if len(got) != len(want) {
		t.Fatalf("basePackages(3.11) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("basePackages(3.11)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCondaPackages(t *testing.T) {
	tests := []struct {
		name string
		cuda string
		fw   matrix.Framework
		want []string
	}{
		{
			name: "base framework installs only the toolkit",
			cuda: "12.4.1",
			fw:   matrix.Framework{Name: "base"},
			want: []string{"cuda-toolkit=12.4"},
		},
		{
			name: "framework packages follow the toolkit",
			cuda: "12.6.0",
			fw:   matrix.Framework{Name: "pytorch", Packages: "pytorch"},
			want: []string{"cuda-toolkit=12.6", "pytorch"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := condaPackages(tt.cuda, tt.fw)
			if len(got) != len(tt.want) {
				t.Fatalf("condaPackages() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("condaPackages()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewSpecCommands(t *testing.T) {
	params := matrix.Params{
		OSVersion:     "wolfi",
		CUDAVersion:   "12.4.1",
		Framework:     matrix.Framework{Name: "pytorch", Packages: "pytorch"},
		PythonVersion: "3.11",
	}

	spec := NewSpec(params, "linux/amd64", "octocat", "wolfi-cuda-base-image")

	if spec.BaseImage != BaseImage {
		t.Errorf("BaseImage = %q, want %q", spec.BaseImage, BaseImage)
	}
	if spec.Platform != "linux/amd64" {
		t.Errorf("Platform = %q, want linux/amd64", spec.Platform)
	}
	if spec.Workdir != "/app" {
		t.Errorf("Workdir = %q, want /app", spec.Workdir)
	}

	if len(spec.Commands) != 3 {
		t.Fatalf("got %d commands, want 3", len(spec.Commands))
	}
	for i, argv := range spec.Commands {
		if len(argv) != 3 || argv[0] != "/bin/sh" || argv[1] != "-c" {
			t.Errorf("command %d = %v, want a /bin/sh -c invocation", i, argv)
		}
	}

	apk := spec.Commands[0][2]
	for _, pkg := range []string{"python-3.11", "py3.11-pip", "curl", "bash"} {
		if !strings.Contains(apk, pkg) {
			t.Errorf("apk command %q missing package %q", apk, pkg)
		}
	}

	if !strings.Contains(spec.Commands[1][2], "micromamba") {
		t.Errorf("bootstrap command %q does not fetch micromamba", spec.Commands[1][2])
	}

	conda := spec.Commands[2][2]
	if !strings.Contains(conda, "cuda-toolkit=12.4") {
		t.Errorf("install command %q missing pinned toolkit", conda)
	}
	if !strings.Contains(conda, "pytorch") {
		t.Errorf("install command %q missing framework packages", conda)
	}
	if !strings.Contains(conda, "micromamba clean") {
		t.Errorf("install command %q does not clean package caches", conda)
	}
}

func TestNewSpecEnv(t *testing.T) {
	spec := NewSpec(matrix.Default().Params()[0], "", "octocat", "repo")

	for key, fragment := range map[string]string{
		"MAMBA_ROOT_PREFIX": "/root/micromamba",
		"PATH":              "/usr/local/cuda/bin",
		"LD_LIBRARY_PATH":   "/root/micromamba/lib",
	} {
		value, ok := spec.Env[key]
		if !ok {
			t.Errorf("env %q not set", key)
			continue
		}
		if !strings.Contains(value, fragment) {
			t.Errorf("env %s = %q, want it to contain %q", key, value, fragment)
		}
	}
}

func TestNewSpecLabelsAreLogical(t *testing.T) {
	params := matrix.Params{
		OSVersion:     "wolfi",
		CUDAVersion:   "12.6.0",
		Framework:     matrix.Framework{Name: "tensorflow", Packages: "tensorflow"},
		PythonVersion: "3.12",
	}

	// Labels must be identical across platform variants.
	amd := NewSpec(params, "linux/amd64", "octocat", "wolfi-cuda-base-image")
	arm := NewSpec(params, "linux/arm64", "octocat", "wolfi-cuda-base-image")

	if len(amd.Labels) != 4 {
		t.Fatalf("got %d labels, want 4", len(amd.Labels))
	}
	for key, value := range amd.Labels {
		if arm.Labels[key] != value {
			t.Errorf("label %s differs between platforms: %q vs %q", key, value, arm.Labels[key])
		}
	}

	if got := amd.Labels["org.opencontainers.image.source"]; got != "https://github.com/octocat/wolfi-cuda-base-image" {
		t.Errorf("source label = %q", got)
	}
	if got := amd.Labels["org.opencontainers.image.title"]; got != "wolfi-cuda-tensorflow" {
		t.Errorf("title label = %q", got)
	}
	desc := amd.Labels["org.opencontainers.image.description"]
	if !strings.Contains(desc, "12.6.0") || !strings.Contains(desc, "3.12") {
		t.Errorf("description label = %q, want full CUDA and Python versions", desc)
	}
}
