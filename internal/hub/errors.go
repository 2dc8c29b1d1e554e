package hub

import "errors"

// Domain errors for the hub package.
var (
	// ErrIO is returned when the connection to the hub cannot be established.
	ErrIO = errors.New("hub: connection failed")

	// ErrAlreadyConnected is returned by Connect while a connection is
	// established or being (re)established.
	ErrAlreadyConnected = errors.New("hub: already connected")

	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("hub: not connected")

	// ErrTimeout is returned when a response does not arrive in time.
	ErrTimeout = errors.New("hub: request timed out")

	// ErrDevice is returned when the hub answers a request with an error code.
	ErrDevice = errors.New("hub: device returned error")

	// ErrInvalidUID is returned when a device UID string cannot be decoded.
	ErrInvalidUID = errors.New("hub: invalid device UID")

	// ErrBusy is returned when every sequence number for a device function
	// is already waiting on a response.
	ErrBusy = errors.New("hub: too many requests in flight")

	// ErrInvalidPacket is returned for packets that violate the framing rules.
	ErrInvalidPacket = errors.New("hub: invalid packet")

	// ErrProtocolDesync is returned when the byte stream can no longer be framed.
	// The connection is dropped and re-established.
	ErrProtocolDesync = errors.New("hub: protocol desync")
)
