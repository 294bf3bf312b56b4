package dispatch

import "errors"

// Command failure taxonomy.
//
// These errors can be checked using errors.Is() on Result.Err:
//
//	if errors.Is(res.Err, dispatch.ErrInvalidParameter) {
//	    // 400
//	}
var (
	// ErrMissingCommand is returned when a request names no command.
	ErrMissingCommand = errors.New("dispatch: missing command")

	// ErrUnknownDevice is returned when the device has no state and the
	// request carries no device type to provision it with.
	ErrUnknownDevice = errors.New("dispatch: unknown device")

	// ErrMissingDeviceType is returned when neither the request nor the
	// stored state names a device type.
	ErrMissingDeviceType = errors.New("dispatch: missing device type")

	// ErrUnsupportedDeviceType is returned when the device type is not registered.
	ErrUnsupportedDeviceType = errors.New("dispatch: unsupported device type")

	// ErrUnsupportedCommand is returned when the device type has no such command.
	ErrUnsupportedCommand = errors.New("dispatch: unsupported command")

	// ErrInvalidParameter is returned when parameter validation fails.
	ErrInvalidParameter = errors.New("dispatch: invalid parameter")

	// ErrPublishFailure is logged when a committed state could not be
	// published to the bus.
	ErrPublishFailure = errors.New("dispatch: publish failure")

	// ErrPersistenceFailure is logged when an event log entry could not be
	// recorded.
	ErrPersistenceFailure = errors.New("dispatch: persistence failure")
)

// failure pairs a taxonomy sentinel with the caller-facing message.
type failure struct {
	kind    error
	message string
}

func (f *failure) Error() string { return f.message }

func (f *failure) Unwrap() error { return f.kind }

func fail(kind error, message string) error {
	return &failure{kind: kind, message: message}
}
