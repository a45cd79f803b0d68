package plugin

import "errors"

// Common errors returned by the plugin registry and runtime adapter.
var (
	// ErrResolution is returned when a plugin's code cannot be found
	// after one reinstall attempt.
	ErrResolution = errors.New("plugin: resolution failed")

	// ErrLifecycle is returned when a plugin's load or start hook fails.
	ErrLifecycle = errors.New("plugin: lifecycle hook failed")

	// ErrConfigure wraps a configure hook failure. It is logged and
	// never propagated past the adapter.
	ErrConfigure = errors.New("plugin: configure failed")

	// ErrPluginNotFound is returned when a plugin does not exist.
	ErrPluginNotFound = errors.New("plugin: not found")

	// ErrInvalidPlugin is returned when plugin fields fail validation.
	ErrInvalidPlugin = errors.New("plugin: invalid plugin")

	// ErrAlreadyErrored is returned when a lifecycle verb is called on a
	// plugin whose error flag is already set.
	ErrAlreadyErrored = errors.New("plugin: already errored")

	// ErrNotResolved is returned when a lifecycle verb is called before
	// Resolve bound a handler.
	ErrNotResolved = errors.New("plugin: handler not resolved")
)
