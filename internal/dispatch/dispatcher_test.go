package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/rvc-bridge/internal/state"
)

type recordedEntry struct {
	deviceID   string
	deviceType string
	event      string
	status     any
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedEntry
	err     error
}

func (f *fakeRecorder) Record(deviceID, deviceType, event string, status any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedEntry{deviceID, deviceType, event, status})
	return f.err
}

func (f *fakeRecorder) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.event)
	}
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	published []state.DeviceState
	err       error
}

func (f *fakePublisher) PublishState(_ context.Context, s state.DeviceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, s)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type warnLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *warnLogger) capture(args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(args); i += 2 {
		if err, ok := args[i+1].(error); ok && args[i] == "error" {
			l.errs = append(l.errs, err)
		}
	}
}

func (l *warnLogger) Debug(string, ...any)        {}
func (l *warnLogger) Info(string, ...any)         {}
func (l *warnLogger) Warn(_ string, args ...any)  { l.capture(args) }
func (l *warnLogger) Error(_ string, args ...any) { l.capture(args) }

func (l *warnLogger) has(target error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, err := range l.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type harness struct {
	store     *state.Store
	dispatch  *Dispatcher
	publisher *fakePublisher
	recorder  *fakeRecorder
	logger    *warnLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     state.NewStore(),
		publisher: &fakePublisher{},
		recorder:  &fakeRecorder{},
		logger:    &warnLogger{},
	}
	h.dispatch = New(Config{
		Store:     h.store,
		Publisher: h.publisher,
		Recorder:  h.recorder,
		Logger:    h.logger,
	})
	h.dispatch.Seed(context.Background(), DefaultSeed()...)
	return h
}

func (h *harness) exec(deviceID, command string, params map[string]any) Result {
	return h.dispatch.Execute(context.Background(), Request{
		DeviceID:   deviceID,
		Command:    command,
		Parameters: params,
		Source:     SourceAPI,
	})
}

func TestSeed(t *testing.T) {
	h := newHarness(t)

	if h.store.Count() != 5 {
		t.Fatalf("Count() = %d, want 5", h.store.Count())
	}
	if h.publisher.count() != 5 {
		t.Errorf("published %d, want 5", h.publisher.count())
	}
	for _, ev := range h.recorder.events() {
		if ev != EventInitialized {
			t.Errorf("seed event = %q, want initialized", ev)
		}
	}

	gen, err := h.store.Get("generator1")
	if err != nil {
		t.Fatalf("Get(generator1) = %v", err)
	}
	if gen.DeviceType != "generator" || gen.Attributes["status"] != "running" {
		t.Errorf("generator1 = %+v", gen)
	}

	if n := h.dispatch.Seed(context.Background(), state.DeviceState{DeviceType: "vent"}); n != 0 {
		t.Errorf("Seed(no id) = %d, want 0", n)
	}
}

func TestExecute_Success(t *testing.T) {
	h := newHarness(t)
	before := len(h.recorder.events())

	res := h.exec("dimmer1", "setBrightness", map[string]any{"brightness": 42.0})
	if !res.Success || res.Status != StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != "Set brightness to 42%" {
		t.Errorf("Message = %q", res.Message)
	}
	if !strings.HasPrefix(res.CommandID, "cmd_") {
		t.Errorf("CommandID = %q", res.CommandID)
	}
	if res.State == nil || res.State.Attributes["brightness"] != 42.0 {
		t.Errorf("State = %+v", res.State)
	}

	stored, _ := h.store.Get("dimmer1")
	if stored.Attributes["brightness"] != 42.0 || stored.DeviceType != "dimmer" {
		t.Errorf("stored = %+v", stored)
	}

	events := h.recorder.events()[before:]
	if !reflect.DeepEqual(events, []string{EventCommandReceived, "brightness_set"}) {
		t.Errorf("events = %v", events)
	}

	last := h.publisher.published[len(h.publisher.published)-1]
	if last.DeviceID != "dimmer1" || last.Attributes["brightness"] != 42.0 {
		t.Errorf("published = %+v", last)
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		kind     error
		message  string
		received bool
	}{
		{
			name:    "missing command",
			req:     Request{DeviceID: "dimmer1"},
			kind:    ErrMissingCommand,
			message: "Missing command in payload",
		},
		{
			name:    "unknown device",
			req:     Request{DeviceID: "ghost", Command: "turnOn"},
			kind:    ErrUnknownDevice,
			message: "Unknown device: ghost",
		},
		{
			name:     "unsupported type override",
			req:      Request{DeviceID: "ghost", Command: "toast", DeviceType: "toaster"},
			kind:     ErrUnsupportedDeviceType,
			message:  "Unsupported device type: toaster",
			received: true,
		},
		{
			name:     "unsupported command",
			req:      Request{DeviceID: "vent1", Command: "spin"},
			kind:     ErrUnsupportedCommand,
			message:  "Unsupported command: spin",
			received: true,
		},
		{
			name:     "missing required parameter",
			req:      Request{DeviceID: "dimmer1", Command: "setBrightness"},
			kind:     ErrInvalidParameter,
			message:  "Missing required parameter: brightness",
			received: true,
		},
		{
			name:     "below range",
			req:      Request{DeviceID: "dimmer1", Command: "setBrightness", Parameters: map[string]any{"brightness": -1.0}},
			kind:     ErrInvalidParameter,
			message:  "Parameter brightness must be at least 0",
			received: true,
		},
		{
			name:     "above range",
			req:      Request{DeviceID: "dimmer1", Command: "setBrightness", Parameters: map[string]any{"brightness": 101.0}},
			kind:     ErrInvalidParameter,
			message:  "Parameter brightness must be at most 100",
			received: true,
		},
		{
			name:     "bad enum",
			req:      Request{DeviceID: "hvac1", Command: "setMode", Parameters: map[string]any{"mode": "frozen"}},
			kind:     ErrInvalidParameter,
			message:  "Parameter mode must be one of: off, cool, heat, auto, fan_only",
			received: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			snapshot := h.store.List()
			published := h.publisher.count()
			logged := len(h.recorder.events())

			res := h.dispatch.Execute(context.Background(), tt.req)

			if res.Success || res.Status != StatusError {
				t.Fatalf("result = %+v, want failure", res)
			}
			if !errors.Is(res.Err, tt.kind) {
				t.Errorf("Err = %v, want %v", res.Err, tt.kind)
			}
			if res.Error != tt.message {
				t.Errorf("Error = %q, want %q", res.Error, tt.message)
			}
			if !reflect.DeepEqual(h.store.List(), snapshot) {
				t.Error("store modified by failed command")
			}
			if h.publisher.count() != published {
				t.Error("failed command published state")
			}

			events := h.recorder.events()[logged:]
			if tt.received {
				if !reflect.DeepEqual(events, []string{EventCommandReceived}) {
					t.Errorf("events = %v, want only command_received", events)
				}
			} else if len(events) != 0 {
				t.Errorf("events = %v, want none", events)
			}

			if _, ok := h.dispatch.Lookup(res.CommandID); !ok {
				t.Error("failed result not kept in history")
			}
		})
	}
}

func TestExecute_MissingDeviceType(t *testing.T) {
	h := newHarness(t)
	h.store.Put(state.New("blank", "", nil), state.SourceSeed)

	res := h.exec("blank", "turnOn", nil)
	if !errors.Is(res.Err, ErrMissingDeviceType) || res.Error != "Device blank has no deviceType defined" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecute_StoredUnknownTypeIsUnsupported(t *testing.T) {
	h := newHarness(t)
	h.store.Merge("sensor9", map[string]any{"temperature": 20.0}, state.SourceBus)

	res := h.exec("sensor9", "calibrate", map[string]any{"offset": 1.0})
	if !errors.Is(res.Err, ErrUnsupportedDeviceType) {
		t.Errorf("Err = %v, want ErrUnsupportedDeviceType", res.Err)
	}
}

func TestExecute_AutoProvisionWithExplicitType(t *testing.T) {
	h := newHarness(t)

	res := h.dispatch.Execute(context.Background(), Request{
		DeviceID:   "vent9",
		Command:    "open",
		DeviceType: "vent",
		Source:     SourceMQTT,
	})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	got, err := h.store.Get("vent9")
	if err != nil {
		t.Fatalf("Get(vent9) = %v", err)
	}
	want := map[string]any{"position": 100.0, "state": "OPEN"}
	if got.DeviceType != "vent" || !reflect.DeepEqual(got.Attributes, want) {
		t.Errorf("vent9 = %+v", got)
	}
}

func TestExecute_RangeBoundariesInclusive(t *testing.T) {
	h := newHarness(t)
	for _, v := range []float64{0, 100} {
		res := h.exec("dimmer1", "setBrightness", map[string]any{"brightness": v})
		if !res.Success {
			t.Errorf("brightness %v: %+v", v, res)
		}
	}
}

func TestExecute_EnumAccepted(t *testing.T) {
	h := newHarness(t)
	res := h.exec("hvac1", "setMode", map[string]any{"mode": "auto"})
	if !res.Success || res.Message != "Set HVAC mode to auto" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecute_RepeatTerminalTransition(t *testing.T) {
	h := newHarness(t)
	want := map[string]any{"brightness": 0.0, "state": "OFF"}

	for i := 0; i < 2; i++ {
		res := h.exec("dimmer1", "turnOff", map[string]any{})
		if !res.Success {
			t.Fatalf("turnOff #%d = %+v", i+1, res)
		}
		got, _ := h.store.Get("dimmer1")
		if !reflect.DeepEqual(got.Attributes, want) {
			t.Errorf("after turnOff #%d attrs = %v", i+1, got.Attributes)
		}
	}
}

func TestExecute_ExtraParametersIgnored(t *testing.T) {
	h := newHarness(t)
	res := h.exec("vent1", "close", map[string]any{"instance": "2", "note": true})
	if !res.Success {
		t.Errorf("result = %+v", res)
	}
}

func TestExecute_PublishFailureDoesNotFailCommand(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker gone")

	res := h.exec("vent1", "open", nil)
	if !res.Success {
		t.Fatalf("result = %+v, want success despite publish failure", res)
	}
	if got, _ := h.store.Get("vent1"); got.Attributes["state"] != "OPEN" {
		t.Error("state rolled back after publish failure")
	}
	if !h.logger.has(ErrPublishFailure) {
		t.Error("publish failure not logged")
	}
}

func TestExecute_PersistenceFailureDoesNotFailCommand(t *testing.T) {
	h := newHarness(t)
	h.recorder.err = errors.New("queue full")

	res := h.exec("vent1", "open", nil)
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if !h.logger.has(ErrPersistenceFailure) {
		t.Error("persistence failure not logged")
	}
}

func TestExecute_NoPublisherOrRecorder(t *testing.T) {
	store := state.NewStore()
	d := New(Config{Store: store})
	d.Seed(context.Background(), DefaultSeed()...)

	res := d.Execute(context.Background(), Request{DeviceID: "generator1", Command: "setCommand",
		Parameters: map[string]any{"command": "stop"}})
	if !res.Success || res.Message != "Set generator command to stop" {
		t.Errorf("result = %+v", res)
	}

	pub := &fakePublisher{}
	d.SetPublisher(pub)
	d.Execute(context.Background(), Request{DeviceID: "vent1", Command: "open"})
	if pub.count() != 1 {
		t.Errorf("late publisher received %d states, want 1", pub.count())
	}
}

func TestExecute_ConcurrentDevices(t *testing.T) {
	h := newHarness(t)

	const devices = 8
	const rounds = 50

	for i := 0; i < devices; i++ {
		h.store.Put(state.New(fmt.Sprintf("dimmer%d", i+10), "dimmer", nil), state.SourceSeed)
	}

	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("dimmer%d", i+10)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r <= rounds; r++ {
				res := h.exec(id, "setBrightness", map[string]any{"brightness": float64(r)})
				if !res.Success {
					t.Errorf("%s round %d: %+v", id, r, res)
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < devices; i++ {
		id := fmt.Sprintf("dimmer%d", i+10)
		got, _ := h.store.Get(id)
		if got.Attributes["brightness"] != float64(rounds) {
			t.Errorf("%s brightness = %v, want %d", id, got.Attributes["brightness"], rounds)
		}
	}
}

func TestLookupAndRecent(t *testing.T) {
	store := state.NewStore()
	d := New(Config{Store: store, HistorySize: 3})
	d.Seed(context.Background(), DefaultSeed()...)

	var ids []string
	for i := 0; i < 5; i++ {
		res := d.Execute(context.Background(), Request{DeviceID: "dimmer1", Command: "setBrightness",
			Parameters: map[string]any{"brightness": float64(i)}})
		ids = append(ids, res.CommandID)
	}

	for _, id := range ids[:2] {
		if _, ok := d.Lookup(id); ok {
			t.Errorf("Lookup(%s) found an evicted result", id)
		}
	}
	for _, id := range ids[2:] {
		if _, ok := d.Lookup(id); !ok {
			t.Errorf("Lookup(%s) missing", id)
		}
	}

	recent := d.Recent(0)
	if len(recent) != 3 || recent[0].CommandID != ids[4] || recent[2].CommandID != ids[2] {
		t.Errorf("Recent(0) = %v", recent)
	}
	if got := d.Recent(1); len(got) != 1 || got[0].CommandID != ids[4] {
		t.Errorf("Recent(1) = %v", got)
	}
}

func TestRequestPayload(t *testing.T) {
	req := Request{DeviceID: "x", Command: "setMode", Parameters: map[string]any{"mode": "heat"}, DeviceType: "hvac", Source: SourceMQTT}
	want := map[string]any{
		"command":    "setMode",
		"parameters": map[string]any{"mode": "heat"},
		"deviceType": "hvac",
		"source":     "mqtt",
	}
	if got := req.Payload(); !reflect.DeepEqual(got, want) {
		t.Errorf("Payload() = %v", got)
	}
}

func TestRequestFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    Request
	}{
		{
			name:    "flat",
			payload: map[string]any{"command": "setBrightness", "brightness": 42.0, "deviceId": "other"},
			want:    Request{DeviceID: "dimmer1", Command: "setBrightness", Parameters: map[string]any{"brightness": 42.0}, Source: SourceAPI},
		},
		{
			name: "nested parameters win",
			payload: map[string]any{
				"command":    "setCommand",
				"parameters": map[string]any{"command": "start"},
				"ignored":    true,
			},
			want: Request{DeviceID: "dimmer1", Command: "setCommand", Parameters: map[string]any{"command": "start"}, Source: SourceAPI},
		},
		{
			name:    "type override",
			payload: map[string]any{"command": "open", "deviceType": "vent"},
			want:    Request{DeviceID: "dimmer1", Command: "open", DeviceType: "vent", Parameters: map[string]any{}, Source: SourceAPI},
		},
		{
			name:    "non-string command",
			payload: map[string]any{"command": 7},
			want:    Request{DeviceID: "dimmer1", Parameters: map[string]any{}, Source: SourceAPI},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequestFromPayload("dimmer1", tt.payload, SourceAPI)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RequestFromPayload() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
