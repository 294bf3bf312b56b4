package devicetype

import "errors"

// Domain errors for the devicetype package.
var (
	// ErrUnknownType is returned when a device type is not registered.
	ErrUnknownType = errors.New("devicetype: unknown type")

	// ErrUnknownCommand is returned when a type does not support a command.
	ErrUnknownCommand = errors.New("devicetype: unknown command")

	// ErrInvalidDefinition is returned by NewRegistry for a malformed table.
	ErrInvalidDefinition = errors.New("devicetype: invalid definition")
)

// ValidationError describes the first parameter that failed validation.
//
// Message is the complete human-readable text, e.g.
// "Parameter brightness must be at most 100".
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
