package bus

import "errors"

// Domain errors for the bus package.
var (
	// ErrMalformedPayload is logged when an inbound message cannot be decoded.
	ErrMalformedPayload = errors.New("bus: malformed payload")

	// ErrStopped is returned when publishing after Stop.
	ErrStopped = errors.New("bus: bridge stopped")
)
