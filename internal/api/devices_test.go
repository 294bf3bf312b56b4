package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/nerrad567/rvc-bridge/internal/devicetype"
	"github.com/nerrad567/rvc-bridge/internal/dispatch"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	devices := decodeBody[[]map[string]any](t, w)
	if len(devices) != 5 {
		t.Fatalf("devices = %d, want 5", len(devices))
	}
	// Sorted by id; attributes are flattened beside deviceId/deviceType.
	if devices[0]["deviceId"] != "dimmer1" || devices[0]["brightness"] != float64(75) {
		t.Errorf("first device = %v", devices[0])
	}
}

func TestListDevices_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	env.store = state.NewStore()
	srv, err := New(Deps{Logger: testLogger(), Store: env.store, Dispatcher: dispatch.New(dispatch.Config{Store: env.store})})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.handler = srv.Handler()

	w := env.do(t, http.MethodGet, "/devices", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", w.Body.String())
	}
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/devices/hvac1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decodeBody[state.DeviceState](t, w)
	if got.DeviceType != devicetype.TypeHVAC || got.Attributes["mode"] != "cool" {
		t.Errorf("device = %+v", got)
	}

	if w := env.do(t, http.MethodGet, "/devices/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", w.Code)
	}
}

func TestDeviceCommand_Success(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/devices/dimmer1/command", `{"command":"setBrightness","parameters":{"brightness":42}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	res := decodeBody[map[string]any](t, w)
	if res["status"] != "success" || res["message"] != "Set brightness to 42%" {
		t.Errorf("result = %v", res)
	}
	if id, _ := res["commandId"].(string); !strings.HasPrefix(id, "cmd_") {
		t.Errorf("commandId = %v", res["commandId"])
	}
	st, _ := res["state"].(map[string]any)
	if st["brightness"] != float64(42) {
		t.Errorf("state = %v", st)
	}

	got, _ := env.store.Get("dimmer1")
	if got.Attributes["brightness"] != float64(42) {
		t.Errorf("store brightness = %v", got.Attributes["brightness"])
	}
}

func TestDeviceCommand_FlatParameters(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/devices/vent1/command", `{"command":"setPosition","position":20}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	got, _ := env.store.Get("vent1")
	if got.Attributes["position"] != float64(20) {
		t.Errorf("position = %v", got.Attributes["position"])
	}
}

func TestDeviceCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		message string
	}{
		{"missing command", "/devices/dimmer1/command", `{}`, http.StatusBadRequest, "Missing command in payload"},
		{"empty body", "/devices/dimmer1/command", ``, http.StatusBadRequest, "Missing command in payload"},
		{"unknown device", "/devices/ghost/command", `{"command":"turnOn"}`, http.StatusNotFound, "Unknown device: ghost"},
		{"unsupported command", "/devices/dimmer1/command", `{"command":"explode"}`, http.StatusBadRequest, "Unsupported command: explode"},
		{"unsupported type", "/devices/tank1/command", `{"command":"fill","deviceType":"tank"}`, http.StatusBadRequest, "Unsupported device type: tank"},
		{"out of range", "/devices/dimmer1/command", `{"command":"setBrightness","brightness":150}`, http.StatusBadRequest, "Parameter brightness must be at most 100"},
		{"missing parameter", "/devices/vent1/command", `{"command":"setPosition"}`, http.StatusBadRequest, "Missing required parameter: position"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			res := decodeBody[map[string]any](t, w)
			if res["status"] != "error" {
				t.Errorf("status field = %v", res["status"])
			}
			if res["error"] != tt.message {
				t.Errorf("error = %q, want %q", res["error"], tt.message)
			}
			if res["commandId"] == "" || res["commandId"] == nil {
				t.Error("failed commands still get a commandId")
			}
		})
	}
}

func TestDeviceCommand_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/devices/dimmer1/command", `{"command":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := decodeBody[Error](t, w); body.Code != ErrCodeBadRequest {
		t.Errorf("code = %q", body.Code)
	}
}

func TestLegacyCommand(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/command", `{"deviceId":"hvac1","command":"setMode","mode":"heat"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	got, _ := env.store.Get("hvac1")
	if got.Attributes["mode"] != "heat" {
		t.Errorf("mode = %v", got.Attributes["mode"])
	}

	w = env.do(t, http.MethodPost, "/command", `{"command":"turnOn"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing deviceId status = %d, want 400", w.Code)
	}

	// An explicit deviceType provisions a device the store has not seen.
	w = env.do(t, http.MethodPost, "/command", `{"deviceId":"dimmer9","deviceType":"dimmer","command":"turnOn"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("provisioning status = %d body = %s", w.Code, w.Body.String())
	}
	if got, err := env.store.Get("dimmer9"); err != nil || got.Attributes["state"] != "ON" {
		t.Errorf("dimmer9 = %+v, %v", got, err)
	}
}

func TestGetCommand(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/devices/generator1/command", `{"command":"setCommand","parameters":{"command":"stop"}}`)
	res := decodeBody[map[string]any](t, w)
	id, _ := res["commandId"].(string)

	w = env.do(t, http.MethodGet, "/commands/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	stored := decodeBody[map[string]any](t, w)
	if stored["commandId"] != id || stored["status"] != "success" || stored["deviceId"] != "generator1" {
		t.Errorf("stored = %v", stored)
	}

	if w := env.do(t, http.MethodGet, "/commands/cmd_nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown command status = %d, want 404", w.Code)
	}
}

func TestListCommands(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/commands", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("empty history body = %s, want []", got)
	}

	for _, b := range []string{"10", "20", "30"} {
		body := `{"command":"setBrightness","parameters":{"brightness":` + b + `}}`
		if w := env.do(t, http.MethodPost, "/devices/dimmer1/command", body); w.Code != http.StatusOK {
			t.Fatalf("command status = %d", w.Code)
		}
	}

	w = env.do(t, http.MethodGet, "/commands", "")
	all := decodeBody[[]map[string]any](t, w)
	if len(all) != 3 {
		t.Fatalf("commands = %d, want 3", len(all))
	}
	params, _ := all[0]["parameters"].(map[string]any)
	if params["brightness"] != float64(30) {
		t.Errorf("newest parameters = %v, want brightness 30", params)
	}

	w = env.do(t, http.MethodGet, "/commands?limit=2", "")
	limited := decodeBody[[]map[string]any](t, w)
	if len(limited) != 2 || limited[0]["commandId"] != all[0]["commandId"] || limited[1]["commandId"] != all[1]["commandId"] {
		t.Errorf("limit=2 returned %v", limited)
	}

	for _, bad := range []string{"0", "-1", "ten"} {
		if w := env.do(t, http.MethodGet, "/commands?limit="+bad, ""); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", bad, w.Code)
		}
	}
}

func TestDeviceTypes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/device-types", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	types := decodeBody[[]devicetype.TypeDescription](t, w)
	if len(types) != 6 {
		t.Fatalf("types = %d, want 6", len(types))
	}
	for _, td := range types {
		if len(td.Commands) == 0 {
			t.Errorf("%s has no commands", td.Name)
		}
		for _, c := range td.Commands {
			if c.JSONSchema == nil {
				t.Errorf("%s/%s missing JSON schema", td.Name, c.Name)
			}
		}
	}
}

func TestCommandStatus(t *testing.T) {
	tests := []struct {
		name string
		res  dispatch.Result
		want int
	}{
		{"success", dispatch.Result{Success: true}, http.StatusOK},
		{"unknown device", dispatch.Result{Err: dispatch.ErrUnknownDevice}, http.StatusNotFound},
		{"invalid parameter", dispatch.Result{Err: dispatch.ErrInvalidParameter}, http.StatusBadRequest},
		{"missing type", dispatch.Result{Err: dispatch.ErrMissingDeviceType}, http.StatusBadRequest},
		{"persistence", dispatch.Result{Err: dispatch.ErrPersistenceFailure}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandStatus(tt.res); got != tt.want {
				t.Errorf("commandStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
