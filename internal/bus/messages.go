package bus

import (
	"strings"

	"github.com/nerrad567/rvc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

// messageKind classifies an inbound topic.
type messageKind int

const (
	kindIgnored messageKind = iota
	kindCommand
	kindStatus
	kindLiveness
)

func (k messageKind) String() string {
	switch k {
	case kindCommand:
		return "command"
	case kindStatus:
		return "status"
	case kindLiveness:
		return "liveness"
	default:
		return "ignored"
	}
}

// route is the result of classifying a topic.
type route struct {
	kind     messageKind
	deviceID string
	instance string
}

// classify maps a topic onto a message kind.
//
//	<prefix>/command/<id>           command
//	<prefix>/command/<id>/<inst>    command for one instance
//	<prefix>/status/<id>/state      status
//	homeassistant/status            liveness
//
// Everything else, including the server status topic, is ignored.
func classify(topics mqtt.Topics, topic string) route {
	if topic == topics.Liveness() {
		return route{kind: kindLiveness}
	}

	rest, ok := strings.CutPrefix(topic, topics.Prefix()+"/")
	if !ok {
		return route{}
	}

	parts := strings.Split(rest, "/")
	switch {
	case parts[0] == "command" && (len(parts) == 2 || len(parts) == 3) && parts[1] != "":
		r := route{kind: kindCommand, deviceID: parts[1]}
		if len(parts) == 3 {
			r.instance = parts[2]
		}
		return r

	case parts[0] == "status" && len(parts) == 3 && parts[1] != "" && parts[2] == "state":
		return route{kind: kindStatus, deviceID: parts[1]}
	}

	return route{}
}

// isOnline accepts the literal text online, with or without JSON quoting.
func isOnline(payload []byte) bool {
	s := strings.TrimSpace(string(payload))
	return s == "online" || s == `"online"`
}

// discoveryDevice is the device block of a discovery descriptor.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version"`
}

// discoveryConfig is the retained descriptor published per device.
type discoveryConfig struct {
	Name         string          `json:"name"`
	UniqueID     string          `json:"unique_id"`
	StateTopic   string          `json:"state_topic"`
	CommandTopic string          `json:"command_topic"`
	Device       discoveryDevice `json:"device"`
}

const manufacturer = "RV-C"

func newDiscoveryConfig(topics mqtt.Topics, s state.DeviceState, version string) discoveryConfig {
	name := s.DeviceID
	if n, ok := s.Attributes["name"].(string); ok && n != "" {
		name = n
	}
	model := s.DeviceType
	if model == "" {
		model = state.UnknownType
	}

	return discoveryConfig{
		Name:         name,
		UniqueID:     s.DeviceID,
		StateTopic:   topics.State(s.DeviceID),
		CommandTopic: topics.Command(s.DeviceID),
		Device: discoveryDevice{
			Identifiers:  []string{s.DeviceID},
			Name:         name,
			Model:        model,
			Manufacturer: manufacturer,
			SWVersion:    version,
		},
	}
}
