package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/hub"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Default HTTP timeouts (seconds) when the config leaves them zero.
const (
	defaultReadTimeout  = 15
	defaultWriteTimeout = 15
	defaultIdleTimeout  = 60
)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Hub      *hub.Hub
	Version  string
}

// Server is the HTTP API server for Gray Logic Hub.
//
// It manages the HTTP listener, routes, middleware and the WebSocket
// hub. Created with New, started with Start, stopped with Close.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	hub     *hub.Hub
	version string
	started time.Time

	server  *http.Server
	wsHub   *WSHub
	tickets *ticketStore
	cancel  context.CancelFunc
}

// New creates an API server with the given dependencies.
// The server does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		hub:     deps.Hub,
		version: deps.Version,
		tickets: newTicketStore(),
	}
	s.wsHub = NewWSHub(deps.WS, deps.Logger)

	return s, nil
}

// WSHub returns the server's WebSocket hub. It is created in New so the
// caller can register it as a node event sink before the hub initializes.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup in the background and
// launches the listener in its own goroutine. Stop with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	go s.wsHub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       timeoutOrDefault(s.cfg.Timeouts.Read, defaultReadTimeout),
		ReadHeaderTimeout: timeoutOrDefault(s.cfg.Timeouts.Read, defaultReadTimeout),
		WriteTimeout:      timeoutOrDefault(s.cfg.Timeouts.Write, defaultWriteTimeout),
		IdleTimeout:       timeoutOrDefault(s.cfg.Timeouts.Idle, defaultIdleTimeout),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

func timeoutOrDefault(seconds, def int) time.Duration {
	if seconds <= 0 {
		seconds = def
	}
	return time.Duration(seconds) * time.Second
}
