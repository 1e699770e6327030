package matrix

import (
	"errors"
	"testing"
)

func TestTag(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name: "base framework",
			params: Params{
				OSVersion:     "wolfi",
				CUDAVersion:   "12.4.1",
				Framework:     Framework{Name: "base"},
				PythonVersion: "3.11",
			},
			want: "wolfi_python_3.11_cuda_12.4.1_base",
		},
		{
			name: "framework with packages",
			params: Params{
				OSVersion:     "wolfi",
				CUDAVersion:   "12.6.0",
				Framework:     Framework{Name: "tensorflow", Packages: "tensorflow"},
				PythonVersion: "3.12",
			},
			want: "wolfi_python_3.12_cuda_12.6.0_tensorflow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.Tag(); got != tt.want {
				t.Errorf("Tag() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTagDeterministic(t *testing.T) {
	p := Params{
		OSVersion:     "wolfi",
		CUDAVersion:   "12.4.1",
		Framework:     Framework{Name: "pytorch", Packages: "pytorch"},
		PythonVersion: "3.11",
	}

	first := p.Tag()
	for i := 0; i < 10; i++ {
		if got := p.Tag(); got != first {
			t.Fatalf("Tag() = %q on repeat call, want %q", got, first)
		}
	}
}

func TestPlatformTag(t *testing.T) {
	p := Params{
		OSVersion:     "wolfi",
		CUDAVersion:   "12.4.1",
		Framework:     Framework{Name: "base"},
		PythonVersion: "3.11",
	}

	tests := []struct {
		name     string
		platform string
		want     string
		wantErr  bool
	}{
		{"empty platform yields logical tag", "", "wolfi_python_3.11_cuda_12.4.1_base", false},
		{"amd64", "linux/amd64", "wolfi_python_3.11_cuda_12.4.1_base_amd64", false},
		{"arm64", "linux/arm64", "wolfi_python_3.11_cuda_12.4.1_base_arm64", false},
		{"missing architecture", "linux", "", true},
		{"missing os", "/arm64", "", true},
		{"too many components", "linux/arm64/v8", "", true},
		{"unsupported os", "windows/amd64", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.PlatformTag(tt.platform)
			if tt.wantErr {
				if !errors.Is(err, ErrPlatform) {
					t.Fatalf("PlatformTag(%q) error = %v, want ErrPlatform", tt.platform, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlatformTag(%q) error = %v", tt.platform, err)
			}
			if got != tt.want {
				t.Errorf("PlatformTag(%q) = %q, want %q", tt.platform, got, tt.want)
			}
		})
	}
}

// Distinct cells must never collide on a tag, qualified or not.
func TestTagUniqueness(t *testing.T) {
	seen := make(map[string]Params)

	for _, params := range Default().Params() {
		for _, platform := range []string{"", "linux/amd64", "linux/arm64"} {
			tag, err := params.PlatformTag(platform)
			if err != nil {
				t.Fatalf("PlatformTag(%q) error = %v", platform, err)
			}
			if prev, ok := seen[tag]; ok {
				t.Errorf("tag %q derived for both %+v and %+v", tag, prev, params)
			}
			seen[tag] = params
		}
	}
}

func TestParsePlatform(t *testing.T) {
	osName, arch, err := ParsePlatform("linux/arm64")
	if err != nil {
		t.Fatalf("ParsePlatform(linux/arm64) error = %v", err)
	}
	if osName != "linux" || arch != "arm64" {
		t.Errorf("ParsePlatform(linux/arm64) = (%q, %q)", osName, arch)
	}

	if _, _, err := ParsePlatform("linux/"); !errors.Is(err, ErrPlatform) {
		t.Errorf("ParsePlatform(linux/) error = %v, want ErrPlatform", err)
	}
}
