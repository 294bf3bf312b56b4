package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/rvc-bridge/internal/devicetype"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

// Log events written by the Dispatcher itself. Transition events come from
// the device type table.
const (
	EventCommandReceived = "command_received"
	EventInitialized     = "initialized"
)

// Config holds the Dispatcher's collaborators.
type Config struct {
	// Store is required.
	Store *state.Store

	// Types defaults to devicetype.Builtin().
	Types *devicetype.Registry

	// Publisher may be nil, or set later with SetPublisher.
	Publisher StatePublisher

	// Recorder may be nil when no event log is configured.
	Recorder Recorder

	Logger Logger

	// HistorySize is the number of results kept for Lookup.
	// Default: DefaultHistorySize
	HistorySize int
}

// Dispatcher validates and executes device commands.
//
// All public methods are thread-safe.
type Dispatcher struct {
	store    *state.Store
	types    *devicetype.Registry
	recorder Recorder
	logger   Logger
	history  *history
	now      func() time.Time

	publisher   StatePublisher
	publisherMu sync.RWMutex
}

// New creates a Dispatcher.
//
// Parameters:
//   - cfg: Collaborators; Store must be set
//
// Returns:
//   - *Dispatcher: Ready to execute commands
func New(cfg Config) *Dispatcher {
	if cfg.Store == nil {
		panic("dispatch: Config.Store is required")
	}
	if cfg.Types == nil {
		cfg.Types = devicetype.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	return &Dispatcher{
		store:     cfg.Store,
		types:     cfg.Types,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		history:   newHistory(cfg.HistorySize),
		now:       func() time.Time { return time.Now().UTC() },
		publisher: cfg.Publisher,
	}
}

// SetPublisher sets the destination for committed states. The bus bridge
// depends on the Dispatcher, so it is attached after both exist.
func (d *Dispatcher) SetPublisher(p StatePublisher) {
	d.publisherMu.Lock()
	d.publisher = p
	d.publisherMu.Unlock()
}

func (d *Dispatcher) getPublisher() StatePublisher {
	d.publisherMu.RLock()
	defer d.publisherMu.RUnlock()
	return d.publisher
}

// Types returns the device type registry used for validation.
func (d *Dispatcher) Types() *devicetype.Registry {
	return d.types
}

// Execute runs one command.
//
// The device is resolved, validated and transitioned atomically with
// respect to other writers of the same device. On success the new state is
// published and a log entry tagged with the transition's event is recorded,
// both after the device lock is released. Every result, success or not, is
// kept for Lookup under a fresh command ID.
//
// Parameters:
//   - ctx: Passed to the publisher; cancellation does not undo a committed change
//   - req: The command
//
// Returns:
//   - Result: Success with message and state, or failure with Err set
func (d *Dispatcher) Execute(ctx context.Context, req Request) Result {
	now := d.now()
	res := Result{
		CommandID:  newCommandID(now),
		DeviceID:   req.DeviceID,
		Command:    req.Command,
		Parameters: state.CopyAttributes(req.Parameters),
		Timestamp:  now,
	}

	saved, outcome, deviceType, err := d.apply(req)
	if deviceType != "" {
		d.record(req.DeviceID, deviceType, EventCommandReceived, req.Payload())
	}

	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		res.Err = err
		d.logger.Warn("command rejected",
			"command_id", res.CommandID,
			"device_id", req.DeviceID,
			"command", req.Command,
			"source", req.Source,
			"error", err,
		)
		d.history.add(res)
		return res
	}

	d.publish(ctx, saved)
	d.record(saved.DeviceID, saved.DeviceType, outcome.Event, saved)

	res.Status = StatusSuccess
	res.Success = true
	res.Message = outcome.Message
	res.State = &saved

	d.logger.Info("command executed",
		"command_id", res.CommandID,
		"device_id", req.DeviceID,
		"command", req.Command,
		"event", outcome.Event,
		"source", req.Source,
	)
	d.history.add(res)
	return res
}

// apply performs steps up to the store write. deviceType is set once the
// device and its type have been resolved, even if a later step fails.
func (d *Dispatcher) apply(req Request) (saved state.DeviceState, outcome devicetype.Outcome, deviceType string, err error) {
	id := req.DeviceID
	if req.Command == "" {
		return saved, outcome, "", fail(ErrMissingCommand, "Missing command in payload")
	}
	if id == "" {
		return saved, outcome, "", fail(ErrUnknownDevice, "Missing deviceId")
	}

	// Fast path that avoids allocating a store slot for unknown IDs.
	if req.DeviceType == "" {
		if _, getErr := d.store.Get(id); getErr != nil {
			return saved, outcome, "", fail(ErrUnknownDevice, "Unknown device: "+id)
		}
	}

	saved, err = d.store.Update(id, state.SourceCommand, func(current state.DeviceState, exists bool) (state.DeviceState, error) {
		if !exists && req.DeviceType == "" {
			return current, fail(ErrUnknownDevice, "Unknown device: "+id)
		}

		typ := req.DeviceType
		if typ == "" {
			typ = current.DeviceType
		}
		if typ == "" {
			return current, fail(ErrMissingDeviceType, fmt.Sprintf("Device %s has no deviceType defined", id))
		}
		deviceType = typ

		cmd, lookupErr := d.types.Command(typ, req.Command)
		if lookupErr != nil {
			if errors.Is(lookupErr, devicetype.ErrUnknownType) {
				return current, fail(ErrUnsupportedDeviceType, "Unsupported device type: "+typ)
			}
			return current, fail(ErrUnsupportedCommand, "Unsupported command: "+req.Command)
		}

		if vErr := devicetype.Validate(req.Parameters, cmd.Parameters); vErr != nil {
			return current, fail(ErrInvalidParameter, vErr.Error())
		}

		if !exists {
			current = state.DeviceState{DeviceID: id, Attributes: map[string]any{}}
		}
		current.DeviceType = typ
		outcome = cmd.Apply(current.Attributes, req.Parameters)
		return current, nil
	})
	return saved, outcome, deviceType, err
}

// Seed provisions devices before any bus traffic: each state is written,
// published and logged as "initialized". States without an ID are skipped.
//
// Returns the number of devices seeded.
func (d *Dispatcher) Seed(ctx context.Context, states ...state.DeviceState) int {
	n := 0
	for _, s := range states {
		if s.DeviceID == "" {
			d.logger.Warn("skipping seed device without id", "device_type", s.DeviceType)
			continue
		}
		if _, err := d.types.Get(s.DeviceType); err != nil {
			d.logger.Warn("seeding device of unsupported type", "device_id", s.DeviceID, "device_type", s.DeviceType)
		}

		saved := d.store.Put(s, state.SourceSeed)
		d.publish(ctx, saved)
		d.record(saved.DeviceID, saved.DeviceType, EventInitialized, saved)
		n++
	}

	d.logger.Info("devices seeded", "count", n)
	return n
}

// Lookup returns a recent result by command ID. Results are evicted
// oldest-first once the history is full.
func (d *Dispatcher) Lookup(commandID string) (Result, bool) {
	return d.history.get(commandID)
}

// Recent returns up to n of the most recent results, newest first.
// n <= 0 returns everything retained.
func (d *Dispatcher) Recent(n int) []Result {
	return d.history.recent(n)
}

func (d *Dispatcher) publish(ctx context.Context, s state.DeviceState) {
	p := d.getPublisher()
	if p == nil {
		return
	}
	if err := p.PublishState(context.WithoutCancel(ctx), s); err != nil {
		d.logger.Warn("state publish failed",
			"device_id", s.DeviceID,
			"error", fmt.Errorf("%w: %w", ErrPublishFailure, err),
		)
	}
}

func (d *Dispatcher) record(deviceID, deviceType, event string, status any) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(deviceID, deviceType, event, status); err != nil {
		d.logger.Error("event log record failed",
			"device_id", deviceID,
			"event", event,
			"error", fmt.Errorf("%w: %w", ErrPersistenceFailure, err),
		)
	}
}

// DefaultSeed returns the demonstration devices provisioned when
// devices.seed_test_devices is enabled.
func DefaultSeed() []state.DeviceState {
	return []state.DeviceState{
		state.New("dimmer1", devicetype.TypeDimmer, map[string]any{"brightness": float64(75)}),
		state.New("vent1", devicetype.TypeVent, map[string]any{"position": float64(75)}),
		state.New("hvac1", devicetype.TypeHVAC, map[string]any{"mode": "cool"}),
		state.New("waterHeater1", devicetype.TypeWaterHeater, map[string]any{"mode": "electric"}),
		state.New("generator1", devicetype.TypeGenerator, map[string]any{"command": "start", "status": "running"}),
	}
}
