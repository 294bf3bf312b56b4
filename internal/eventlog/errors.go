package eventlog

import "errors"

// Domain errors for the eventlog package.
var (
	// ErrQueueFull is logged when an entry is dropped because the write
	// queue is saturated.
	ErrQueueFull = errors.New("eventlog: queue full")

	// ErrRecorderClosed is logged when Record is called after Close.
	ErrRecorderClosed = errors.New("eventlog: recorder closed")

	// ErrInvalidEntry is returned when an entry is missing required fields.
	ErrInvalidEntry = errors.New("eventlog: invalid entry")
)
