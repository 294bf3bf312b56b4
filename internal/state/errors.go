package state

import "errors"

// ErrDeviceNotFound is returned when no state exists for a device ID.
var ErrDeviceNotFound = errors.New("state: device not found")
