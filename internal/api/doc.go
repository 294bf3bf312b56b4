// Package api provides the HTTP REST API and WebSocket server for the RV-C bridge.
//
// It exposes device state, command execution, the device type catalogue and
// the event log to browser dashboards and scripts. Event log endpoints are
// guarded by HTTP Basic authentication; everything else is open on the
// coach network.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
