package history

import "errors"

// Errors reported (never returned) by the loader, and returned by the writer.
var (
	// ErrMalformedRecord marks a history line that could not be decoded.
	ErrMalformedRecord = errors.New("history: malformed record")

	// ErrMissingSource marks a history file that does not exist or cannot be read.
	ErrMissingSource = errors.New("history: source missing or unreadable")

	// ErrWriteFailed is returned when a sample cannot be appended to its log.
	ErrWriteFailed = errors.New("history: write failed")
)
