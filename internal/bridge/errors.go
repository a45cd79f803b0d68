package bridge

import "errors"

// Common errors returned by the bridge orchestrator.
var (
	// ErrFailSafeTimeout marks a plugin that never reported loaded and
	// started within the fail-safe budget.
	ErrFailSafeTimeout = errors.New("bridge: fail-safe timeout")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("bridge: already running")

	// ErrInvalidMode is returned for an unknown topology mode.
	ErrInvalidMode = errors.New("bridge: invalid mode")

	// ErrNotRunning is returned when an operation needs a running
	// orchestrator.
	ErrNotRunning = errors.New("bridge: not running")
)
