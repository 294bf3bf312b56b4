package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})

	r.Get("/health", s.handleHealth)

	// Device endpoints
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Get("/{id}", s.handleGetDevice)
		r.Post("/{id}/command", s.handleDeviceCommand)
	})

	// Legacy command endpoint: device id in the body
	r.Post("/command", s.handleLegacyCommand)
	r.Get("/commands", s.handleListCommands)
	r.Get("/commands/{commandId}", s.handleGetCommand)

	r.Get("/device-types", s.handleDeviceTypes)

	// Event log endpoints (basic auth)
	r.Group(func(r chi.Router) {
		r.Use(s.basicAuthMiddleware)

		r.Get("/logs", s.handleListLogs)
		r.Delete("/logs", s.handleDeleteLogs)
		r.Get("/export/logs.csv", s.handleExportLogs)
	})

	path := s.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	r.Get(path, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	mqttStatus := "disabled"
	if s.broker != nil {
		mqttStatus = "disconnected"
		if s.broker.IsConnected() {
			mqttStatus = "connected"
		}
	}

	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"devices": s.store.Count(),
		"mqtt":    mqttStatus,
	}
	if s.bus != nil {
		body["bus"] = s.bus.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}
