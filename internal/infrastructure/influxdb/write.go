package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementDeviceState is the measurement holding device attribute samples.
const measurementDeviceState = "device_state"

// WriteDeviceState records the numeric and boolean attributes of a device.
//
// Numeric and boolean attributes become fields, as does the string "state"
// attribute (ON, OPEN, running). Other strings are skipped so field types
// stay stable across writes. The write is non-blocking.
//
// Parameters:
//   - deviceID: Device identifier, stored as the device_id tag
//   - deviceType: Device type, stored as the device_type tag
//   - attributes: Device attributes
//   - ts: Sample time
func (c *Client) WriteDeviceState(deviceID, deviceType string, attributes map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if point := deviceStatePoint(deviceID, deviceType, attributes, ts); point != nil {
		c.writeAPI.WritePoint(point)
	}
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

// deviceStatePoint builds the line-protocol point for a device, or nil when
// there is nothing numeric to record.
func deviceStatePoint(deviceID, deviceType string, attributes map[string]any, ts time.Time) *write.Point {
	fields := make(map[string]any)
	for name, value := range attributes {
		if v, ok := fieldValue(value); ok {
			fields[name] = v
		}
	}
	if s, ok := attributes["state"].(string); ok {
		fields["state"] = s
	}
	if len(fields) == 0 {
		return nil
	}

	if deviceType == "" {
		deviceType = "unknown"
	}
	return write.NewPoint(
		measurementDeviceState,
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
		},
		fields,
		ts,
	)
}

func fieldValue(v any) (any, bool) {
	switch n := v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		return n, true
	default:
		return nil, false
	}
}
