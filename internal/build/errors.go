package build

import "errors"

var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrTasksFailed   = errors.New("build tasks failed")
)
