package scheduler

import "errors"

// Domain errors for the scheduler package.
var (
	// ErrAlreadyStarted is returned by Start while the jobs are running.
	ErrAlreadyStarted = errors.New("scheduler: already started")

	// ErrUnknownDirection is returned when a navigation direction cannot be parsed.
	ErrUnknownDirection = errors.New("scheduler: unknown direction")
)
