// Package dispatch executes device commands.
//
// The Dispatcher is the single path by which a command changes device
// state. For each request it resolves the device and its type, validates the
// parameters against the type's schema, applies the type's transition and
// writes the result to the state Store. Steps up to the write happen under
// the device's lock, so two commands for one device never interleave.
//
// Publishing the new state to the bus and recording it in the event log
// happen after the lock is released. Neither can turn a committed change
// into a failure: problems are logged and absorbed.
//
// Lookup and validation failures are not Go errors from Execute. They are
// carried in Result.Err and classified with errors.Is against the sentinels
// in errors.go.
package dispatch
