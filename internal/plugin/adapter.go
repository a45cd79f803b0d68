package plugin

import (
	"context"
	"fmt"
	"time"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AdapterOptions configures an Adapter.
type AdapterOptions struct {
	// Resolver maps plugin records to handlers. Required.
	Resolver Resolver

	// Installer handles the one reinstall attempt when resolution comes
	// up empty. Defaults to NoopInstaller.
	Installer Installer

	// ShutdownTimeout bounds each OnShutdown call.
	// Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Logger is an optional structured logger.
	Logger Logger
}

// Adapter wraps the plugin lifecycle contract with the hub's error
// policy: load and start failures mark the plugin errored, configure
// failures are swallowed and logged, shutdown is best-effort and
// bounded.
type Adapter struct {
	resolver        Resolver
	installer       Installer
	shutdownTimeout time.Duration
	logger          Logger
}

// NewAdapter creates a runtime adapter.
func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	installer := opts.Installer
	if installer == nil {
		installer = NoopInstaller{}
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Adapter{
		resolver:        opts.Resolver,
		installer:       installer,
		shutdownTimeout: timeout,
		logger:          logger,
	}, nil
}

// Resolve binds the plugin's handler. When the resolver comes up empty,
// one reinstall attempt is made before failing with ErrResolution.
func (a *Adapter) Resolve(ctx context.Context, p *Plugin) error {
	handler, err := a.resolver.Resolve(ctx, p)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrResolution, p.Name, err)
	}
	if handler == nil {
		a.logger.Warn("plugin unresolvable, attempting reinstall", "plugin", p.Name, "path", p.Path)
		if err := a.installer.Install(ctx, p); err != nil {
			return fmt.Errorf("%w: %s: reinstall failed: %v", ErrResolution, p.Name, err)
		}
		handler, err = a.resolver.Resolve(ctx, p)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrResolution, p.Name, err)
		}
		if handler == nil {
			return fmt.Errorf("%w: %s: not found after reinstall", ErrResolution, p.Name)
		}
	}

	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()

	a.logger.Debug("plugin resolved", "plugin", p.Name, "version", p.Version)
	return nil
}

// Load runs the plugin's OnLoad hook. On success the loaded flag is set;
// on failure the plugin is marked errored and ErrLifecycle returned.
func (a *Adapter) Load(ctx context.Context, p *Plugin, host Host) error {
	handler, err := a.handlerFor(p)
	if err != nil {
		return err
	}

	if err := handler.OnLoad(ctx, host); err != nil {
		p.MarkErrored()
		a.logger.Error("plugin load failed", "plugin", p.Name, "error", err)
		return fmt.Errorf("%w: %s: load: %v", ErrLifecycle, p.Name, err)
	}
	p.MarkLoaded()
	a.logger.Info("plugin loaded", "plugin", p.Name, "version", p.Version)
	return nil
}

// Start runs the plugin's OnStart hook. On success the started flag is
// set; on failure the plugin is marked errored and ErrLifecycle
// returned.
func (a *Adapter) Start(ctx context.Context, p *Plugin) error {
	handler, err := a.handlerFor(p)
	if err != nil {
		return err
	}

	if err := handler.OnStart(ctx); err != nil {
		p.MarkErrored()
		a.logger.Error("plugin start failed", "plugin", p.Name, "error", err)
		return fmt.Errorf("%w: %s: start: %v", ErrLifecycle, p.Name, err)
	}
	p.MarkStarted()
	a.logger.Info("plugin started", "plugin", p.Name)
	return nil
}

// Configure runs the plugin's OnConfigure hook. A failure is logged and
// leaves the plugin unconfigured; it is never propagated to the caller.
func (a *Adapter) Configure(ctx context.Context, p *Plugin) {
	handler, err := a.handlerFor(p)
	if err != nil {
		a.logger.Warn("plugin configure skipped", "plugin", p.Name, "error", err)
		return
	}

	if err := handler.OnConfigure(ctx); err != nil {
		a.logger.Warn("plugin configure failed",
			"plugin", p.Name,
			"error", fmt.Errorf("%w: %s: %v", ErrConfigure, p.Name, err),
		)
		return
	}
	p.MarkConfigured()
	a.logger.Info("plugin configured", "plugin", p.Name)
}

// Shutdown runs the plugin's OnShutdown hook. It is safe to call in any
// state, bounded by the configured timeout, and never returns an error;
// failures and timeouts are logged.
func (a *Adapter) Shutdown(ctx context.Context, p *Plugin, reason string) {
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- handler.OnShutdown(shutdownCtx, reason)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.logger.Warn("plugin shutdown failed", "plugin", p.Name, "reason", reason, "error", err)
			return
		}
		a.logger.Info("plugin shut down", "plugin", p.Name, "reason", reason)
	case <-shutdownCtx.Done():
		a.logger.Warn("plugin shutdown timed out",
			"plugin", p.Name,
			"reason", reason,
			"timeout", a.shutdownTimeout,
		)
	}
}

// handlerFor guards lifecycle verbs: the plugin must be resolved and not
// already errored.
func (a *Adapter) handlerFor(p *Plugin) (Handler, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flags.Errored {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyErrored, p.Name)
	}
	if p.handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotResolved, p.Name)
	}
	return p.handler, nil
}
