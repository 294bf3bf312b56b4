// Package bus connects the device state engine to the MQTT broker.
//
// # Architecture
//
//	┌──────────────┐  RVC/command/<id>    ┌──────────────┐
//	│  RV-C gateway │ ───────────────────► │              │ ──► Dispatcher
//	│  and devices  │  RVC/status/<id>/... │  bus.Bridge  │ ──► Store.Merge
//	│               │ ◄─────────────────── │              │ ◄── PublishState
//	└──────────────┘    (retained)         └──────────────┘
//	        homeassistant/status ──► discovery republish
//
// # Topics
//
//   - RVC/command/<deviceId>[/<instance>]: commands, routed to the Dispatcher
//   - RVC/status/<deviceId>/state: retained device state, merged into the Store
//   - RVC/status/server: retained bridge online/offline status
//   - homeassistant/status: literal "online" triggers discovery republish
//   - homeassistant/sensor/<deviceId>/config: retained discovery descriptor
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Inbound handlers run on
// the MQTT client's goroutines.
package bus
