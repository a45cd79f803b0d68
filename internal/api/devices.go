package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListDevices returns all registered devices in registration
// order. An optional ?plugin= query filters by owning plugin.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	registry := s.hub.Devices()

	pluginName := r.URL.Query().Get("plugin")
	devices := registry.List()
	if pluginName != "" {
		devices = registry.ListByPlugin(pluginName)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by unique id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.hub.Devices().Get(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
