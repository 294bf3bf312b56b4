package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/rvc-bridge/internal/dispatch"
	"github.com/nerrad567/rvc-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

// Event names recorded by the bridge.
const (
	EventStateUpdate = "mqtt_state_update"
)

// DefaultVersion is reported as sw_version in discovery descriptors.
const DefaultVersion = "1.0.0"

// maxPendingEchoes bounds the per-device list of published payloads still
// expected back from the broker.
const maxPendingEchoes = 16

// MQTTClient is the subset of the MQTT client the bridge needs.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Executor runs a command against the device state engine.
// *dispatch.Dispatcher satisfies it.
type Executor interface {
	Execute(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Logger defines the logging interface used by the bridge.
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

// Options holds the collaborators for a Bridge.
type Options struct {
	// MQTTClient is the broker connection.
	MQTTClient MQTTClient

	// Topics builds the topic namespace. The zero value uses RVC/ and homeassistant.
	Topics mqtt.Topics

	// QoS is used for every subscribe and publish.
	QoS byte

	// Store receives merged status updates and is read for discovery.
	Store *state.Store

	// Executor handles inbound commands.
	Executor Executor

	// Recorder is optional. If nil, status merges are not logged.
	Recorder dispatch.Recorder

	// Logger is optional.
	Logger Logger

	// Version is reported in discovery descriptors. Defaults to DefaultVersion.
	Version string
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Connected          bool  `json:"connected"`
	CommandsReceived   int64 `json:"commands_received"`
	StatusMerged       int64 `json:"status_merged"`
	EchoesSuppressed   int64 `json:"echoes_suppressed"`
	MalformedMessages  int64 `json:"malformed_messages"`
	StatesPublished    int64 `json:"states_published"`
	StalePublishes     int64 `json:"stale_publishes"`
	DiscoveryPublished int64 `json:"discovery_published"`
}

// Bridge translates between MQTT traffic and the device state engine.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	topics   mqtt.Topics
	qos      byte
	store    *state.Store
	executor Executor
	recorder dispatch.Recorder
	logger   Logger
	version  string

	// outboxes tracks state publishes per device. outboxesMu guards the map
	// and every outbox's pending list.
	outboxes   map[string]*outbox
	outboxesMu sync.Mutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
	stopped   atomic.Bool

	commandsReceived   atomic.Int64
	statusMerged       atomic.Int64
	echoesSuppressed   atomic.Int64
	malformed          atomic.Int64
	statesPublished    atomic.Int64
	stalePublishes     atomic.Int64
	discoveryPublished atomic.Int64
}

// NewBridge creates a bridge. Call Start to subscribe.
//
// Parameters:
//   - opts: Collaborators; MQTTClient, Store and Executor are required
//
// Returns:
//   - *Bridge: Bridge ready to start
//   - error: If a required collaborator is missing
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, errors.New("bus: MQTT client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("bus: state store is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("bus: executor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		mqtt:      opts.MQTTClient,
		topics:    opts.Topics,
		qos:       opts.QoS,
		store:     opts.Store,
		executor:  opts.Executor,
		recorder:  opts.Recorder,
		logger:    logger,
		version:   version,
		outboxes:  make(map[string]*outbox),
		ctx:       ctx,
		ctxCancel: cancel,
	}, nil
}

// Start subscribes to the RV-C namespace and the liveness topic, then
// announces the bridge as online.
//
// Parameters:
//   - ctx: Checked for cancellation before subscribing
//
// Returns:
//   - error: If a subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("starting bus bridge: %w", err)
	}

	for _, topic := range []string{b.topics.All(), b.topics.Liveness()} {
		if err := b.mqtt.Subscribe(topic, b.qos, b.handleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	if err := b.mqtt.Publish(b.topics.ServerStatus(), mqtt.ServerStatusPayload(mqtt.StatusOnline, ""), b.qos, true); err != nil {
		b.logger.Warn("server status publish failed", "error", err)
	}

	b.logger.Info("bus bridge started",
		"prefix", b.topics.Prefix(),
		"discovery_prefix", b.topics.DiscoveryPrefix(),
	)
	return nil
}

// Stop announces a graceful shutdown and rejects further publishes.
// Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		b.ctxCancel()

		if b.mqtt.IsConnected() {
			payload := mqtt.ServerStatusPayload(mqtt.StatusOffline, mqtt.ReasonGracefulShutdown)
			if err := b.mqtt.Publish(b.topics.ServerStatus(), payload, b.qos, true); err != nil {
				b.logger.Warn("server status publish failed", "error", err)
			}
		}
		b.logger.Info("bus bridge stopped")
	})
}

// outbox orders the state publishes of one device.
type outbox struct {
	// turn is held across the broker publish so publishes of one device
	// reach the broker one at a time.
	turn sync.Mutex

	// revision is the highest state revision handed to the broker.
	// Guarded by turn.
	revision uint64

	// pending holds payloads published but not yet seen back on the
	// status topic, oldest first. Guarded by Bridge.outboxesMu.
	pending [][]byte
}

func (b *Bridge) outboxFor(deviceID string) *outbox {
	b.outboxesMu.Lock()
	defer b.outboxesMu.Unlock()
	o, ok := b.outboxes[deviceID]
	if !ok {
		o = &outbox{}
		b.outboxes[deviceID] = o
	}
	return o
}

// PublishState publishes a device state retained on its state topic.
// It satisfies dispatch.StatePublisher.
//
// A state whose Revision is not newer than one already published for the
// device is dropped, so the retained value never goes back in time when
// concurrent commands finish out of order. A zero Revision is always
// published.
func (b *Bridge) PublishState(ctx context.Context, s state.DeviceState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.stopped.Load() {
		return ErrStopped
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", s.DeviceID, err)
	}

	o := b.outboxFor(s.DeviceID)
	o.turn.Lock()
	defer o.turn.Unlock()

	if s.Revision != 0 && s.Revision <= o.revision {
		b.stalePublishes.Add(1)
		b.logger.Debug("dropping stale state publish",
			"device_id", s.DeviceID,
			"revision", s.Revision,
			"published_revision", o.revision,
		)
		return nil
	}

	// Registered before publishing: the broker may deliver the echo before
	// Publish returns.
	b.expectEcho(o, payload)

	if err := b.mqtt.Publish(b.topics.State(s.DeviceID), payload, b.qos, true); err != nil {
		b.forgetEcho(o, payload)
		return fmt.Errorf("publishing state for %s: %w", s.DeviceID, err)
	}
	if s.Revision != 0 {
		o.revision = s.Revision
	}
	b.statesPublished.Add(1)
	return nil
}

func (b *Bridge) expectEcho(o *outbox, payload []byte) {
	b.outboxesMu.Lock()
	defer b.outboxesMu.Unlock()
	o.pending = append(o.pending, payload)
	if len(o.pending) > maxPendingEchoes {
		o.pending = o.pending[len(o.pending)-maxPendingEchoes:]
	}
}

func (b *Bridge) forgetEcho(o *outbox, payload []byte) {
	b.outboxesMu.Lock()
	defer b.outboxesMu.Unlock()
	for i := len(o.pending) - 1; i >= 0; i-- {
		if bytes.Equal(o.pending[i], payload) {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return
		}
	}
}

// PublishDiscovery publishes the retained discovery descriptor for one device.
func (b *Bridge) PublishDiscovery(s state.DeviceState) error {
	if b.stopped.Load() {
		return ErrStopped
	}

	payload, err := json.Marshal(newDiscoveryConfig(b.topics, s, b.version))
	if err != nil {
		return fmt.Errorf("encoding discovery for %s: %w", s.DeviceID, err)
	}
	if err := b.mqtt.Publish(b.topics.Discovery(s.DeviceID), payload, b.qos, true); err != nil {
		return fmt.Errorf("publishing discovery for %s: %w", s.DeviceID, err)
	}
	b.discoveryPublished.Add(1)
	return nil
}

// PublishAllDiscovery publishes descriptors for every known device.
//
// Returns:
//   - int: Number of descriptors published
func (b *Bridge) PublishAllDiscovery() int {
	published := 0
	for _, s := range b.store.List() {
		if err := b.PublishDiscovery(s); err != nil {
			b.logger.Warn("discovery publish failed", "device_id", s.DeviceID, "error", err)
			continue
		}
		published++
	}
	b.logger.Info("discovery published", "devices", published)
	return published
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Connected:          b.mqtt.IsConnected(),
		CommandsReceived:   b.commandsReceived.Load(),
		StatusMerged:       b.statusMerged.Load(),
		EchoesSuppressed:   b.echoesSuppressed.Load(),
		MalformedMessages:  b.malformed.Load(),
		StatesPublished:    b.statesPublished.Load(),
		StalePublishes:     b.stalePublishes.Load(),
		DiscoveryPublished: b.discoveryPublished.Load(),
	}
}

// =============================================================================
// Inbound
// =============================================================================

// handleMessage is the MQTT handler for every subscription. Errors are
// logged by the client; malformed payloads never stop the subscription.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	if b.stopped.Load() {
		return nil
	}

	r := classify(b.topics, topic)
	switch r.kind {
	case kindLiveness:
		if isOnline(payload) {
			b.PublishAllDiscovery()
		}
		return nil
	case kindCommand:
		return b.handleCommand(r, payload)
	case kindStatus:
		return b.handleStatus(r, payload)
	default:
		b.logger.Debug("ignoring message", "topic", topic)
		return nil
	}
}

func (b *Bridge) handleCommand(r route, payload []byte) error {
	body, err := decodeObject(payload)
	if err != nil {
		b.malformed.Add(1)
		b.logger.Warn("malformed command payload", "device_id", r.deviceID, "error", err)
		return nil
	}
	b.commandsReceived.Add(1)

	req := dispatch.RequestFromPayload(r.deviceID, body, dispatch.SourceMQTT)
	if r.instance != "" {
		if req.Parameters == nil {
			req.Parameters = make(map[string]any, 1)
		}
		if _, ok := req.Parameters["instance"]; !ok {
			req.Parameters["instance"] = r.instance
		}
	}

	res := b.executor.Execute(b.ctx, req)
	if !res.Success {
		b.logger.Warn("mqtt command failed",
			"device_id", r.deviceID,
			"command", req.Command,
			"error", res.Error,
		)
		return nil
	}
	b.logger.Debug("mqtt command applied", "device_id", r.deviceID, "command", req.Command)
	return nil
}

func (b *Bridge) handleStatus(r route, payload []byte) error {
	if b.isEcho(r.deviceID, payload) {
		b.echoesSuppressed.Add(1)
		return nil
	}

	body, err := decodeObject(payload)
	if err != nil {
		b.malformed.Add(1)
		b.logger.Warn("malformed status payload", "device_id", r.deviceID, "error", err)
		return nil
	}

	merged := b.store.Merge(r.deviceID, body, state.SourceBus)
	b.statusMerged.Add(1)

	if b.recorder != nil {
		if err := b.recorder.Record(merged.DeviceID, merged.DeviceType, EventStateUpdate, merged); err != nil {
			b.logger.Warn("state update not recorded", "device_id", merged.DeviceID, "error", err)
		}
	}
	return nil
}

// isEcho reports whether payload is one of our own state publishes coming
// back through the RVC/# subscription. The broker delivers a topic in
// publish order, so a match also retires every older pending payload.
func (b *Bridge) isEcho(deviceID string, payload []byte) bool {
	b.outboxesMu.Lock()
	defer b.outboxesMu.Unlock()
	o, ok := b.outboxes[deviceID]
	if !ok {
		return false
	}
	for i, p := range o.pending {
		if bytes.Equal(p, payload) {
			o.pending = o.pending[i+1:]
			return true
		}
	}
	return false
}

// decodeObject accepts only a JSON object.
func decodeObject(payload []byte) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}
	return body, nil
}
