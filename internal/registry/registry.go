// Package registry holds registry credentials and destination references.
//
// The secret value is wrapped so it cannot leak through logging or error
// formatting; only the build engine's auth callback reveals it.
package registry

import (
	"fmt"
	"log/slog"
)

// Placeholder emitted wherever a secret would otherwise be printed.
const redacted = "[redacted]"

// An opaque handle for a registry password or token.
//
// The zero value and nil both represent "no secret". All formatting paths
// (fmt verbs, slog) print a placeholder; the value is only reachable via
// [Secret.Reveal].
type Secret struct {
	value string
}

// Wraps a secret value. Returns nil for an empty value so absence checks
// stay uniform.
func NewSecret(value string) *Secret {
	if value == "" {
		return nil
	}
	return &Secret{value: value}
}

// Returns the underlying secret value.
func (s *Secret) Reveal() string {
	if s == nil {
		return ""
	}
	return s.value
}

// Reports whether no secret value is present.
func (s *Secret) Empty() bool {
	return s == nil || s.value == ""
}

// Implements fmt.Stringer. Never returns the secret value.
func (s *Secret) String() string {
	return redacted
}

// Implements fmt.GoStringer so %#v cannot leak the value either.
func (s *Secret) GoString() string {
	return redacted
}

// Implements slog.LogValuer. Never logs the secret value.
func (s *Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Registry authentication read once from process configuration at startup
// and shared read-only across all concurrent tasks.
type Credentials struct {
	Host     string  // Registry host (e.g., "ghcr.io").
	Username string  // Registry account name, also the image namespace.
	Secret   *Secret // Password or token handle.
}

// Builds the push destination for a tag.
//
// The exact format is part of the registry contract: a mis-tagged push is
// indistinguishable from a success to the engine.
func Reference(host, namespace, repository, tag string) string {
	return fmt.Sprintf("%s/%s/%s:%s", host, namespace, repository, tag)
}
