package dispatch

import (
	"context"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/state"
)

// Source identifies where a command came from.
type Source string

// Command sources.
const (
	SourceAPI  Source = "api"
	SourceMQTT Source = "mqtt"
	SourceSeed Source = "seed"
)

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one command for one device.
type Request struct {
	DeviceID   string
	Command    string
	Parameters map[string]any

	// DeviceType overrides the stored type and allows provisioning a
	// device the store has not seen yet.
	DeviceType string

	Source Source
}

// Payload is the JSON-shaped view of the request recorded as the
// command_received status.
func (r Request) Payload() map[string]any {
	p := map[string]any{"command": r.Command}
	if len(r.Parameters) > 0 {
		p["parameters"] = r.Parameters
	}
	if r.DeviceType != "" {
		p["deviceType"] = r.DeviceType
	}
	if r.Source != "" {
		p["source"] = string(r.Source)
	}
	return p
}

// Result is the outcome of one Execute call.
type Result struct {
	CommandID  string             `json:"commandId"`
	DeviceID   string             `json:"deviceId"`
	Command    string             `json:"command"`
	Status     string             `json:"status"`
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
	Parameters map[string]any     `json:"parameters,omitempty"`
	State      *state.DeviceState `json:"state,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`

	// Err carries the taxonomy sentinel for failed commands.
	Err error `json:"-"`
}

// StatePublisher announces a committed device state to the outside world.
type StatePublisher interface {
	PublishState(ctx context.Context, s state.DeviceState) error
}

// Recorder appends entries to the event log without blocking.
type Recorder interface {
	Record(deviceID, deviceType, event string, status any) error
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reserved keys of a command payload. Every other key of a flat payload
// is a parameter.
const (
	payloadCommand    = "command"
	payloadDeviceType = "deviceType"
	payloadDeviceID   = "deviceId"
	payloadParameters = "parameters"
)

// RequestFromPayload builds a Request from a decoded command body.
//
// Two body shapes are accepted:
//
//	{"command":"setBrightness","parameters":{"brightness":42}}
//	{"command":"setBrightness","brightness":42}
//
// A "parameters" object wins over flat keys. "deviceType" becomes the type
// override. "deviceId" is ignored; identity comes from the caller. A
// parameter that is itself named "command" (generator setCommand) can only
// be sent in the "parameters" form.
func RequestFromPayload(deviceID string, payload map[string]any, source Source) Request {
	req := Request{DeviceID: deviceID, Source: source}
	req.Command, _ = payload[payloadCommand].(string)
	req.DeviceType, _ = payload[payloadDeviceType].(string)

	if nested, ok := payload[payloadParameters].(map[string]any); ok {
		req.Parameters = nested
		return req
	}

	req.Parameters = make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case payloadCommand, payloadDeviceType, payloadDeviceID, payloadParameters:
			continue
		}
		req.Parameters[k] = v
	}
	return req
}
