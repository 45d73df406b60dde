package streamqueue

import "errors"

var (
	// ErrQueueNotFound is returned when an id is neither locally registered
	// nor confirmed to exist in the backend.
	ErrQueueNotFound = errors.New("stream queue not found")

	// ErrBackendUnavailable is returned on transient connectivity failures.
	// The queue performs no internal retry; retry policy belongs to the caller.
	ErrBackendUnavailable = errors.New("stream queue backend unavailable")

	// ErrCorruptMessage is returned when stored bytes cannot be decoded back
	// into an EventMessage. Decoding fails fast instead of skipping the entry,
	// which would silently break FIFO completeness.
	ErrCorruptMessage = errors.New("corrupt stream message")

	// ErrInvalidMessage is returned by Push for a message the log would not be
	// able to decode back, so the entry is rejected before it is stored.
	ErrInvalidMessage = errors.New("invalid stream message")
)
