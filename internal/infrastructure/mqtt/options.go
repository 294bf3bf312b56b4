package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds every publish, subscribe and unsubscribe.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Server status values published on the server status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	ReasonGracefulShutdown     = "graceful_shutdown"
	ReasonUnexpectedDisconnect = "unexpected_disconnect"
)

// serverStatus is the retained payload on <prefix>status/server.
type serverStatus struct {
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// ServerStatusPayload encodes {"state":…,"timestamp":…} with an optional reason.
func ServerStatusPayload(state, reason string) []byte {
	data, _ := json.Marshal(serverStatus{ //nolint:errcheck // Plain strings cannot fail to encode
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Reason:    reason,
	})
	return data
}

// buildClientOptions creates paho options from the bridge config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and optional credentials
//   - Clean session with auto-reconnect and backoff
//   - TLS 1.2+ when enabled
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT registers the retained offline status the broker publishes
// if the bridge disappears without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topic string, qos byte) {
	opts.SetBinaryWill(topic, ServerStatusPayload(StatusOffline, ReasonUnexpectedDisconnect), qos, true)
}
