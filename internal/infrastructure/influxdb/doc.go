// Package influxdb provides InfluxDB connectivity for the RV-C bridge.
//
// It wraps the official influxdb-client-go v2 library. Every device state
// change is sampled into the device_state measurement, tagged by device id
// and type, so dimmer levels, setpoints and vent positions can be charted
// over time. Telemetry is optional and disabled by default.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("dimmer1", "dimmer", map[string]any{"brightness": 75}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval; failures arrive on the SetOnError callback.
package influxdb
