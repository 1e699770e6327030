// Package engine defines the build-engine contract consumed by the
// publisher.
//
// The engine is a capability interface, not a fixed dependency: any
// implementation that can realize a configured container and push it to a
// registry is interchangeable. The containerd subpackage provides the one
// concrete adapter; tests substitute a fake to exercise aggregation and
// tagging logic without a container daemon.
package engine
