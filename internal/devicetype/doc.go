// Package devicetype holds the catalogue of RV-C device types the bridge
// knows how to drive.
//
// Each Definition maps command names to a parameter Schema and a Transition.
// Transitions are pure: they receive a private copy of the device's
// attributes, mutate it and report the event name and human message for the
// change. The Dispatcher owns locking, persistence and publishing.
//
// Definitions are immutable once a Registry is built. NewRegistry compiles a
// JSON Schema for every command so a malformed table fails at startup rather
// than on the first request.
//
// Usage:
//
//	reg := devicetype.Builtin()
//	cmd, err := reg.Command("dimmer", "setBrightness")
//	if err != nil {
//	    return err
//	}
//	if err := devicetype.Validate(params, cmd.Parameters); err != nil {
//	    return err // *ValidationError
//	}
//	outcome := cmd.Apply(attrs, params)
package devicetype
