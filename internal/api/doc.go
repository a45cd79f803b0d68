// Package api provides the HTTP REST API and WebSocket server for Gray
// Logic Hub.
//
// It exposes plugin management, device listing, bridge status and
// commissioning controls to management UIs, plus a WebSocket feed of
// node fabric and session events.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Authentication is JWT-based: POST /api/v1/auth/login exchanges the
// configured admin password for a bearer token, and the WebSocket
// endpoint authenticates with single-use tickets from
// POST /api/v1/auth/ws-ticket so tokens never appear in URLs.
//
// Thread Safety: all methods are safe for concurrent use.
package api
