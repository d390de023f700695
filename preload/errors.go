package preload

import "errors"

// Sentinel errors for preload operations.
var (
	ErrAlreadyRun   = errors.New("preload: already run")
	ErrClosed       = errors.New("preload: preloader is closed")
	ErrInvalidTask  = errors.New("preload: task is invalid")
	ErrTaskPanicked = errors.New("preload: task panicked")
)
