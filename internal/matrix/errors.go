package matrix

import "errors"

var (
	ErrMatrix   = errors.New("invalid build matrix")
	ErrPlatform = errors.New("invalid platform")
)
