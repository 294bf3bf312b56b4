package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rvc-bridge/internal/dispatch"
	"github.com/nerrad567/rvc-bridge/internal/state"
)

// handleListDevices returns every known device state as a JSON array.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleGetDevice returns one device state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ds, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, state.ErrDeviceNotFound) {
			writeNotFound(w, "Device not found: "+id)
			return
		}
		writeInternalError(w, "failed to read device state")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// handleDeviceCommand executes a command against the device in the path.
//
// Body: {"command": "...", "deviceType"?: "...", "parameters"?: {...}} or
// the flat form with parameters beside "command".
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCommandBody(w, r)
	if !ok {
		return
	}

	req := dispatch.RequestFromPayload(chi.URLParam(r, "id"), body, dispatch.SourceAPI)
	s.writeCommandResult(w, r, req)
}

// handleLegacyCommand executes a command with the device id in the body.
func (s *Server) handleLegacyCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCommandBody(w, r)
	if !ok {
		return
	}

	deviceID, _ := body["deviceId"].(string)
	if deviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  dispatch.StatusError,
			"success": false,
			"error":   "Missing deviceId in payload",
		})
		return
	}

	req := dispatch.RequestFromPayload(deviceID, body, dispatch.SourceAPI)
	s.writeCommandResult(w, r, req)
}

func (s *Server) writeCommandResult(w http.ResponseWriter, r *http.Request, req dispatch.Request) {
	res := s.dispatcher.Execute(r.Context(), req)
	writeJSON(w, commandStatus(res), res)
}

// handleListCommands returns recent command results, newest first.
// ?limit=N caps the list; without it every retained result is returned.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Recent(limit))
}

// handleGetCommand returns a recent command result by id.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "commandId")

	res, ok := s.dispatcher.Lookup(id)
	if !ok {
		writeNotFound(w, "Command not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeviceTypes returns the device type catalogue with JSON Schemas.
func (s *Server) handleDeviceTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Types().Describe())
}

// commandStatus maps a command result onto an HTTP status code.
func commandStatus(res dispatch.Result) int {
	if res.Success {
		return http.StatusOK
	}

	switch {
	case errors.Is(res.Err, dispatch.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(res.Err, dispatch.ErrInvalidParameter),
		errors.Is(res.Err, dispatch.ErrMissingCommand),
		errors.Is(res.Err, dispatch.ErrMissingDeviceType),
		errors.Is(res.Err, dispatch.ErrUnsupportedCommand),
		errors.Is(res.Err, dispatch.ErrUnsupportedDeviceType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeCommandBody reads a JSON object body. An empty body decodes to an
// empty object so the dispatcher reports the missing command.
func decodeCommandBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body := map[string]any{}

	err := json.NewDecoder(r.Body).Decode(&body)
	if err == nil || errors.Is(err, io.EOF) {
		return body, true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		return nil, false
	}
	writeBadRequest(w, "invalid JSON body: "+err.Error())
	return nil, false
}
