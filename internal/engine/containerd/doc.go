// Package containerd adapts a containerd daemon to the engine contract.
//
// A build container starts from a registry base image with a long-running
// task (sleep infinity) so install commands can be exec'd into it. Publish
// commits the container by computing the snapshot diff against the base
// image, appending it as a new layer to a mutated copy of the platform
// manifest (with the recorded env, labels, and workdir applied to the image
// config), and pushing the result through a docker resolver authenticated
// with the task's registry credentials. The stored base image record is
// never modified; mutated blobs are ephemeral and protected by a content
// lease for the duration of the push.
package containerd
