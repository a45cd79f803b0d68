package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// No auth required.
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket upgrade. Browsers cannot set an Authorization header
		// on the upgrade request, so auth is a single-use ticket minted
		// by an authenticated POST /auth/ws-ticket and validated in the
		// handler.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/system", s.handleSystem)

			r.Route("/plugins", func(r chi.Router) {
				r.Get("/", s.handleListPlugins)
				r.Post("/", s.handleAddPlugin)

				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", s.handleGetPlugin)
					r.Delete("/", s.handleRemovePlugin)
					r.Post("/enable", s.handleEnablePlugin)
					r.Post("/disable", s.handleDisablePlugin)
				})
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{id}", s.handleGetDevice)
			})

			r.Route("/bridge", func(r chi.Router) {
				r.Get("/", s.handleBridgeStatus)
				r.Put("/mode", s.handleSetBridgeMode)
				r.Get("/pairings", s.handleListPairings)
				r.Post("/advertise/stop", s.handleStopAdvertising)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
