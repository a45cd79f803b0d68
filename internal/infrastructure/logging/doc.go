// Package logging provides structured logging for Gray Logic Hub.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// All log output carries the service name and version as default fields.
// Leaf packages do not import this package directly; they declare a small
// Logger interface of their own (Debug/Info/Warn/Error) which *Logger
// satisfies, keeping infrastructure out of domain packages.
//
// # Usage
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("bridge started", "mode", mode, "plugins", count)
//
//	pluginLog := log.With("component", "plugin")
package logging
