package mqtt

import (
	"strings"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
)

// Default topic namespaces.
const (
	DefaultPrefix          = "RVC"
	DefaultDiscoveryPrefix = "homeassistant"
)

// Topics builds the topic names used on the RV-C bus.
//
//	topics := mqtt.NewTopics(cfg.MQTT.Topics)
//	topics.State("dimmer1")   // "RVC/status/dimmer1/state"
//	topics.Command("dimmer1") // "RVC/command/dimmer1"
//
// The zero value uses the default namespaces.
type Topics struct {
	prefix    string
	discovery string
}

// NewTopics normalises the configured prefixes. Trailing slashes are
// dropped, so "RVC/" and "RVC" are equivalent.
func NewTopics(cfg config.MQTTTopicsConfig) Topics {
	return Topics{
		prefix:    strings.TrimRight(cfg.Prefix, "/"),
		discovery: strings.TrimRight(cfg.DiscoveryPrefix, "/"),
	}
}

// Prefix returns the bus namespace without a trailing slash.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultPrefix
	}
	return t.prefix
}

// DiscoveryPrefix returns the discovery namespace without a trailing slash.
func (t Topics) DiscoveryPrefix() string {
	if t.discovery == "" {
		return DefaultDiscoveryPrefix
	}
	return t.discovery
}

// =============================================================================
// Device Topics
// =============================================================================

// Command returns the topic on which commands for a device arrive.
//
// Example: RVC/command/dimmer1
func (t Topics) Command(deviceID string) string {
	return t.Prefix() + "/command/" + deviceID
}

// State returns the retained state topic for a device.
//
// Example: RVC/status/dimmer1/state
func (t Topics) State(deviceID string) string {
	return t.Prefix() + "/status/" + deviceID + "/state"
}

// Discovery returns the retained discovery config topic for a device.
//
// Example: homeassistant/sensor/dimmer1/config
func (t Topics) Discovery(deviceID string) string {
	return t.DiscoveryPrefix() + "/sensor/" + deviceID + "/config"
}

// =============================================================================
// System Topics
// =============================================================================

// ServerStatus returns the retained bridge status topic.
//
// Example: RVC/status/server
func (t Topics) ServerStatus() string {
	return t.Prefix() + "/status/server"
}

// Liveness returns the topic on which the home automation controller
// announces itself.
//
// Example: homeassistant/status
func (t Topics) Liveness() string {
	return t.DiscoveryPrefix() + "/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// All returns a pattern matching every topic in the bus namespace.
//
// Pattern: RVC/#
func (t Topics) All() string {
	return t.Prefix() + "/#"
}
