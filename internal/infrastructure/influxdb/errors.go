package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: sink disabled")

	// ErrUnreachable is returned by Connect when the server does not answer
	// a ping or reports itself unhealthy.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is returned once the sink has been closed.
	ErrClosed = errors.New("influxdb: sink closed")

	// ErrRejected marks a sample that cannot be turned into a point.
	ErrRejected = errors.New("influxdb: sample rejected")
)
