package sensor

import (
	"errors"

	"github.com/nerrad567/weatherstation-core/internal/hub"
)

// Domain errors for the sensor package.
var (
	// ErrReadFailed wraps every failed read.
	ErrReadFailed = errors.New("sensor: read failed")

	// ErrMalformedResponse is returned when a response payload is too short
	// for the value it should carry.
	ErrMalformedResponse = errors.New("sensor: malformed response")

	// ErrTimeout matches reads that got no response in time.
	ErrTimeout = hub.ErrTimeout

	// ErrNotConnected matches reads attempted while the hub link is down.
	ErrNotConnected = hub.ErrNotConnected
)
