package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/plugin"
)

// pluginView is the API representation of a plugin, combining persisted
// identity with a snapshot of the runtime lifecycle flags.
type pluginView struct {
	Name     string         `json:"name"`
	Path     string         `json:"path,omitempty"`
	Version  string         `json:"version,omitempty"`
	Type     plugin.Type    `json:"type"`
	Enabled  bool           `json:"enabled"`
	Position int            `json:"position"`
	Config   map[string]any `json:"config,omitempty"`
	Flags    plugin.Flags   `json:"flags"`
}

func newPluginView(p *plugin.Plugin) pluginView {
	return pluginView{
		Name:     p.Name,
		Path:     p.Path,
		Version:  p.Version,
		Type:     p.Type,
		Enabled:  p.Enabled,
		Position: p.Position,
		Config:   p.Config,
		Flags:    p.Flags(),
	}
}

// addPluginRequest is the request body for POST /plugins.
type addPluginRequest struct {
	Name    string         `json:"name"`
	Path    string         `json:"path"`
	Version string         `json:"version"`
	Type    string         `json:"type"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config"`
}

// handleListPlugins returns all registered plugins in registration order.
func (s *Server) handleListPlugins(w http.ResponseWriter, _ *http.Request) {
	plugins := s.hub.Plugins().List()
	views := make([]pluginView, 0, len(plugins))
	for _, p := range plugins {
		views = append(views, newPluginView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plugins": views,
		"count":   len(views),
	})
}

// handleGetPlugin returns a single plugin by name.
func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	p, err := s.hub.Plugins().Get(name)
	if err != nil {
		writeNotFound(w, "plugin not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, newPluginView(p))
}

// handleAddPlugin registers a plugin. When resolution fails the plugin
// is still registered, disabled, and the response carries a warning.
func (s *Server) handleAddPlugin(w http.ResponseWriter, r *http.Request) {
	var req addPluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	p := &plugin.Plugin{
		Name:    req.Name,
		Path:    req.Path,
		Version: req.Version,
		Type:    plugin.Type(req.Type),
		Enabled: req.Enabled,
		Config:  req.Config,
	}

	err := s.hub.AddPlugin(r.Context(), p)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, newPluginView(p))
	case errors.Is(err, plugin.ErrResolution):
		writeJSON(w, http.StatusCreated, map[string]any{
			"plugin":  newPluginView(p),
			"warning": "resolution failed, plugin registered disabled: " + err.Error(),
		})
	case errors.Is(err, plugin.ErrInvalidPlugin):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// handleRemovePlugin shuts a plugin down and unregisters it.
func (s *Server) handleRemovePlugin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.hub.RemovePlugin(r.Context(), name); err != nil {
		if errors.Is(err, plugin.ErrPluginNotFound) {
			writeNotFound(w, "plugin not found: "+name)
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": name})
}

// handleEnablePlugin persists enabled=true. Takes effect on next run.
func (s *Server) handleEnablePlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginEnabled(w, r, true)
}

// handleDisablePlugin persists enabled=false. Takes effect on next run.
func (s *Server) handleDisablePlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginEnabled(w, r, false)
}

func (s *Server) setPluginEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	name := chi.URLParam(r, "name")

	var err error
	if enabled {
		err = s.hub.EnablePlugin(r.Context(), name)
	} else {
		err = s.hub.DisablePlugin(r.Context(), name)
	}
	if err != nil {
		if errors.Is(err, plugin.ErrPluginNotFound) {
			writeNotFound(w, "plugin not found: "+name)
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"enabled": enabled,
		"note":    "effective on next run",
	})
}
