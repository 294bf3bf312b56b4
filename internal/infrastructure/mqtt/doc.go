// Package mqtt provides MQTT client connectivity for the RV-C bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees and a 5 second bound
//   - Topic subscriptions, restored after reconnect
//   - A retained online/offline status on RVC/status/server, with a Last Will
//
// # Architecture
//
// The broker carries RV-C device traffic translated by an upstream CAN
// gateway. The bridge subscribes to the whole RVC/ namespace and publishes
// retained device state under RVC/status/<id>/state.
//
//	HTTP clients ↔ rvc-bridge ↔ MQTT broker ↔ RV-C gateway
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on the local host
//   - Credentials come from config or MQTT_USERNAME / MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.All(), 1, func(topic string, payload []byte) error {
//	    return nil
//	})
//
//	client.PublishRetained(topics.State("dimmer1"), []byte(`{"brightness":50}`))
package mqtt
