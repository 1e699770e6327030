package engine

import "errors"

// Failure taxonomy surfaced per task. Implementations wrap their native
// errors with exactly one of these sentinels so the publisher can report a
// human-readable cause without depending on engine internals.
var (
	ErrEngine              = errors.New("engine error")
	ErrAuthentication      = errors.New("registry authentication failed")
	ErrPackageInstall      = errors.New("package installation failed")
	ErrRegistryPush        = errors.New("registry push failed")
	ErrPlatformUnsupported = errors.New("platform not supported")
)
