package matrix

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// A framework dimension entry: the name used in tags and the conda packages
// installed for it. An empty package list is valid (the "base" variant ships
// only the CUDA toolkit).
type Framework struct {
	Name     string `yaml:"name"`
	Packages string `yaml:"packages,omitempty"`
}

// The configured build parameter space.
//
// Each field is one dimension; the run expands their Cartesian product into
// independent build tasks.
type Matrix struct {
	OSVersions     []string    `yaml:"os_versions"`
	CUDAVersions   []string    `yaml:"cuda_versions"`
	Frameworks     []Framework `yaml:"frameworks"`
	PythonVersions []string    `yaml:"python_versions"`
}

// Identifies one cell of the matrix: a single logical image across
// architectures. Immutable once drawn from the matrix.
type Params struct {
	OSVersion     string
	CUDAVersion   string
	Framework     Framework
	PythonVersion string
}

// Returns the built-in default matrix.
func Default() Matrix {
	return Matrix{
		OSVersions:   []string{"wolfi"},
		CUDAVersions: []string{"12.4.1", "12.6.0"},
		Frameworks: []Framework{
			{Name: "base"},
			{Name: "pytorch", Packages: "pytorch"},
			{Name: "tensorflow", Packages: "tensorflow"},
		},
		PythonVersions: []string{"3.11", "3.12"},
	}
}

// Reads and parses a matrix file.
//
// The file is strict YAML; unknown fields are rejected so a typo in a
// dimension name cannot silently shrink the matrix.
func Load(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("%w: %w", ErrMatrix, err)
	}

	var m Matrix
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Matrix{}, fmt.Errorf("%w: %s: %w", ErrMatrix, path, err)
	}

	return m, nil
}

// Returns the total number of matrix cells.
func (m Matrix) Size() int {
	return len(m.OSVersions) * len(m.CUDAVersions) * len(m.Frameworks) * len(m.PythonVersions)
}

// Checks that every dimension is non-empty and every entry is usable.
//
// A malformed matrix is a configuration error; it must be rejected before
// any task is dispatched.
func (m Matrix) Validate() error {
	if len(m.OSVersions) == 0 || len(m.CUDAVersions) == 0 ||
		len(m.Frameworks) == 0 || len(m.PythonVersions) == 0 {
		return fmt.Errorf("%w: every dimension needs at least one entry", ErrMatrix)
	}

	for _, dim := range []struct {
		name    string
		entries []string
	}{
		{"os_versions", m.OSVersions},
		{"cuda_versions", m.CUDAVersions},
		{"python_versions", m.PythonVersions},
	} {
		for _, entry := range dim.entries {
			if entry == "" {
				return fmt.Errorf("%w: empty entry in %s", ErrMatrix, dim.name)
			}
		}
	}

	for _, fw := range m.Frameworks {
		if fw.Name == "" {
			return fmt.Errorf("%w: framework without a name", ErrMatrix)
		}
	}

	return nil
}

// Expands the matrix into one Params per cell.
//
// The expansion order is fixed (OS, CUDA, framework, Python, outermost
// first) so that task lists and their logs are reproducible across runs.
func (m Matrix) Params() []Params {
	params := make([]Params, 0, m.Size())

	for _, osv := range m.OSVersions {
		for _, cuda := range m.CUDAVersions {
			for _, fw := range m.Frameworks {
				for _, py := range m.PythonVersions {
					params = append(params, Params{
						OSVersion:     osv,
						CUDAVersion:   cuda,
						Framework:     fw,
						PythonVersion: py,
					})
				}
			}
		}
	}

	return params
}
