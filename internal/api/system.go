package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
)

// handleSystem returns a snapshot of the hub's runtime state.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"state":          s.hub.State(),
		"mode":           s.hub.Mode(),
		"plugins":        s.hub.Plugins().Count(),
		"devices":        s.hub.Devices().Count(),
		"ws_clients":     s.wsHub.ClientCount(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / (1 << 20),
	})
}

// handleBridgeStatus returns the orchestrator state and topology.
func (s *Server) handleBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    s.hub.State(),
		"mode":     s.hub.Mode(),
		"pairings": len(s.hub.Pairings()),
	})
}

// setModeRequest is the request body for PUT /bridge/mode.
type setModeRequest struct {
	Mode string `json:"mode"`
}

// handleSetBridgeMode persists a new topology. The change applies on
// the next run; the running orchestrator keeps its current mode.
func (s *Server) handleSetBridgeMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.hub.SetBridgeMode(r.Context(), bridge.Mode(req.Mode)); err != nil {
		if errors.Is(err, bridge.ErrInvalidMode) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode": req.Mode,
		"note": "effective on next run",
	})
}

// handleListPairings returns the open commissioning windows.
func (s *Server) handleListPairings(w http.ResponseWriter, _ *http.Request) {
	pairings := s.hub.Pairings()
	writeJSON(w, http.StatusOK, map[string]any{
		"pairings": pairings,
		"count":    len(pairings),
	})
}

// handleStopAdvertising closes every open commissioning window.
func (s *Server) handleStopAdvertising(w http.ResponseWriter, _ *http.Request) {
	s.hub.StopAdvertising()
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}
