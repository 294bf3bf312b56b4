package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/nerrad567/rvc-bridge/internal/bus"
	"github.com/nerrad567/rvc-bridge/internal/eventlog"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

// recordingMQTT captures publishes for the end-to-end test.
type recordingMQTT struct {
	mu        sync.Mutex
	published map[string][]byte
	retained  map[string]bool
}

func newRecordingMQTT() *recordingMQTT {
	return &recordingMQTT{published: make(map[string][]byte), retained: make(map[string]bool)}
}

func (m *recordingMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[topic] = payload
	m.retained[topic] = retained
	return nil
}

func (m *recordingMQTT) Subscribe(string, byte, mqtt.MessageHandler) error { return nil }

func (m *recordingMQTT) IsConnected() bool { return true }

func (m *recordingMQTT) last(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.published[topic]
	return p, ok && m.retained[topic]
}

func TestEndToEnd_SetBrightness(t *testing.T) {
	env := newTestEnv(t)

	client := newRecordingMQTT()
	bridge, err := bus.NewBridge(bus.Options{
		MQTTClient: client,
		Topics:     mqtt.NewTopics(config.MQTTTopicsConfig{}),
		QoS:        1,
		Store:      env.store,
		Executor:   env.dispatcher,
		Recorder:   env.recorder,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer bridge.Stop()
	env.dispatcher.SetPublisher(bridge)

	// 1. Command over HTTP
	w := env.do(t, http.MethodPost, "/devices/dimmer1/command", `{"command":"setBrightness","brightness":42}`)
	if w.Code != http.StatusOK {
		t.Fatalf("command status = %d body = %s", w.Code, w.Body.String())
	}
	res := decodeBody[map[string]any](t, w)
	if res["status"] != "success" || res["message"] != "Set brightness to 42%" {
		t.Errorf("command result = %v", res)
	}

	// 2. State readable over HTTP
	w = env.do(t, http.MethodGet, "/devices/dimmer1", "")
	dev := decodeBody[map[string]any](t, w)
	if dev["brightness"] != float64(42) || dev["deviceType"] != "dimmer" {
		t.Errorf("device = %v", dev)
	}

	// 3. Retained state on the bus
	payload, retained := client.last("RVC/status/dimmer1/state")
	if !retained {
		t.Fatal("no retained publish on RVC/status/dimmer1/state")
	}
	var published state.DeviceState
	if err := json.Unmarshal(payload, &published); err != nil {
		t.Fatalf("decoding published state: %v", err)
	}
	if published.Attributes["brightness"] != float64(42) {
		t.Errorf("published = %+v", published)
	}

	// 4. Event log entry
	entries, err := env.recorder.Query(context.Background(), eventlog.Filter{DeviceID: "dimmer1", Event: "brightness_set"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("brightness_set entries = %d, want 1", len(entries))
	}
	if entries[0].DeviceType != "dimmer" {
		t.Errorf("entry = %+v", entries[0])
	}
}
