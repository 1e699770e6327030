// Package matrix defines the build parameter space and its expansion.
//
// A Matrix holds the configured dimensions (OS versions, CUDA versions,
// frameworks, Python versions). Params identifies one cell of the matrix:
// a single logical image that may exist for several architectures. Tags
// derived from Params are canonical and collision-free; two distinct cells
// (or the same cell on two platforms) never share a tag, because every
// version string is embedded verbatim.
//
// The matrix can be loaded from a YAML file or taken from the built-in
// default. Loading and validation happen once at startup; Params values
// are immutable afterwards.
package matrix
