package state

import (
	"encoding/json"
	"fmt"
	"maps"
)

// UnknownType is the device type given to devices first seen on the bus
// without one.
const UnknownType = "unknown"

// Reserved JSON keys of the flat state representation.
const (
	keyDeviceID   = "deviceId"
	keyDeviceType = "deviceType"
)

// DeviceState is the last known state of one device.
//
// The JSON form is flat: {"deviceId":"dimmer1","deviceType":"dimmer","brightness":75}.
type DeviceState struct {
	DeviceID   string
	DeviceType string
	Attributes map[string]any

	// Revision is assigned by the Store and increases by one with every
	// write of the device. It orders publishes of the same device and is
	// not part of the JSON form.
	Revision uint64
}

// New returns a state with a copy of attrs.
func New(deviceID, deviceType string, attrs map[string]any) DeviceState {
	return DeviceState{
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Attributes: CopyAttributes(attrs),
	}
}

// Clone returns a deep copy of the state.
func (s DeviceState) Clone() DeviceState {
	return DeviceState{
		DeviceID:   s.DeviceID,
		DeviceType: s.DeviceType,
		Attributes: CopyAttributes(s.Attributes),
		Revision:   s.Revision,
	}
}

// Flatten returns the flat map form used on the bus and in the event log.
func (s DeviceState) Flatten() map[string]any {
	out := make(map[string]any, len(s.Attributes)+2)
	maps.Copy(out, CopyAttributes(s.Attributes))
	out[keyDeviceID] = s.DeviceID
	out[keyDeviceType] = s.DeviceType
	return out
}

// MarshalJSON encodes the flat form.
func (s DeviceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Flatten())
}

// UnmarshalJSON decodes the flat form. deviceId and deviceType must be
// strings when present; every other key becomes an attribute.
func (s *DeviceState) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	next := DeviceState{Attributes: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case keyDeviceID:
			id, ok := v.(string)
			if !ok {
				return fmt.Errorf("state: %s must be a string", keyDeviceID)
			}
			next.DeviceID = id
		case keyDeviceType:
			typ, ok := v.(string)
			if !ok {
				return fmt.Errorf("state: %s must be a string", keyDeviceType)
			}
			next.DeviceType = typ
		default:
			next.Attributes[k] = v
		}
	}
	*s = next
	return nil
}

// CopyAttributes deep-copies nested maps and slices. Scalars are shared.
// A nil map yields an empty, non-nil map.
func CopyAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyAttributes(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Source identifies what caused a state change.
type Source string

// Change sources.
const (
	SourceCommand Source = "command"
	SourceBus     Source = "bus"
	SourceSeed    Source = "seed"
)

// Change is delivered to listeners after every successful write.
type Change struct {
	State  DeviceState
	Source Source
}

// Listener receives state changes. It runs on the writer's goroutine after
// locks are released and must not block for long.
type Listener func(Change)
