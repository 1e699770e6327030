// Package build orchestrates matrix image builds against a build engine.
//
// A run expands the configured matrix into one task per cell, each carrying
// the run's shared platform list. Tasks are dispatched concurrently and are
// fully independent: distinct tags, distinct registry paths, no ordering
// between their completions. The run waits for every task to reach a
// terminal outcome before concluding; a task failure never cancels or
// starves its siblings.
//
// Within one multi-platform task the policy is the opposite: platform
// variants are pushed in the configured order, and the first variant
// failure fails the whole task without attempting the remaining variants
// or publishing the combined index. Losing one architecture invalidates
// the logical image for that run.
//
// Example usage:
//
//	result, err := build.Run(ctx, eng, build.Options{
//	    Registry:   "ghcr.io",
//	    Repository: "wolfi-cuda-base-image",
//	    Username:   "octocat",
//	    Secret:     registry.NewSecret(token),
//	    Matrix:     matrix.Default(),
//	    Platforms:  []string{matrix.DefaultPlatform},
//	})
package build
