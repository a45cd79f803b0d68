package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
)

// bridgeModeKey is the hub's persisted topology selection.
const bridgeModeKey = "bridge_mode"

// hubNamespace is the orchestrator's own storage partition; plugins get
// "plugin:<name>" namespaces.
const hubNamespace = "hub"

// Logger defines the logging interface used by the Hub.
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

// UpdateChecker looks up the latest available version of a plugin.
type UpdateChecker interface {
	LatestVersion(ctx context.Context, p *plugin.Plugin) (string, error)
}

// Options configures a Hub.
type Options struct {
	// Config is the loaded hub configuration. Required.
	Config *config.Config

	// Store is the key-value store. Required.
	Store *storage.Store

	// Plugins is the plugin registry. Required.
	Plugins *plugin.Registry

	// Devices is the device registry. Required.
	Devices *device.Registry

	// Adapter is the plugin runtime adapter. Required.
	Adapter *plugin.Adapter

	// Factory is the protocol node factory. Required.
	Factory node.Factory

	// Sinks receive node events.
	Sinks []bridge.EventSink

	// Updates is optional; when set, periodic update checks compare
	// installed versions against it.
	Updates UpdateChecker

	// OnExit is forwarded to the orchestrator's cleanup.
	OnExit func(restart bool)

	// Logger is an optional structured logger.
	Logger Logger
}

// Hub is the facade composing registries, storage and the orchestrator.
// It resolves the topology, runs initialization and teardown, and is
// the surface the API and process entry point talk to.
type Hub struct {
	cfg     *config.Config
	store   *storage.Store
	plugins *plugin.Registry
	devices *device.Registry
	adapter *plugin.Adapter
	factory node.Factory
	sinks   []bridge.EventSink
	updates UpdateChecker
	onExit  func(bool)
	logger  Logger

	mu     sync.Mutex
	orch   *bridge.Orchestrator
	hubCtx *storage.Context

	updateStop chan struct{}
}

// New creates a hub. Initialize must be called to start it.
func New(opts Options) (*Hub, error) {
	if opts.Config == nil || opts.Store == nil || opts.Plugins == nil ||
		opts.Devices == nil || opts.Adapter == nil || opts.Factory == nil {
		return nil, fmt.Errorf("config, store, plugins, devices, adapter and factory are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Hub{
		cfg:     opts.Config,
		store:   opts.Store,
		plugins: opts.Plugins,
		devices: opts.Devices,
		adapter: opts.Adapter,
		factory: opts.Factory,
		sinks:   opts.Sinks,
		updates: opts.Updates,
		onExit:  opts.OnExit,
		logger:  logger,
	}, nil
}

// AddSink registers an additional node event sink. Must be called
// before Initialize; sinks added later are not seen by the running
// orchestrator.
func (h *Hub) AddSink(sink bridge.EventSink) {
	h.sinks = append(h.sinks, sink)
}

// Initialize loads persisted plugins, resolves the topology and starts
// the bridge orchestrator.
func (h *Hub) Initialize(ctx context.Context) error {
	if err := h.plugins.Load(ctx); err != nil {
		return fmt.Errorf("loading plugin registry: %w", err)
	}

	hubCtx, err := h.store.Context(hubNamespace)
	if err != nil {
		return fmt.Errorf("opening hub storage: %w", err)
	}
	h.mu.Lock()
	h.hubCtx = hubCtx
	h.mu.Unlock()

	mode, err := h.resolveMode(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("topology resolved", "mode", mode)

	orch, err := bridge.New(bridge.Options{
		Mode:     mode,
		Plugins:  h.plugins,
		Devices:  h.devices,
		Adapter:  h.adapter,
		Factory:  h.factory,
		Store:    h.store,
		NodeName: h.cfg.Hub.Name,
		Network: node.NetworkOptions{
			Port:      h.cfg.Bridge.Network.Port,
			Interface: h.cfg.Bridge.Network.Interface,
		},
		FailCountLimit:  h.cfg.Bridge.FailCountLimit,
		PollInterval:    h.cfg.Bridge.PollInterval(),
		SettleDelay:     h.cfg.Bridge.SettleDelay(),
		AdvertiseWindow: h.cfg.Bridge.AdvertiseWindow(),
		Sinks:           h.sinks,
		OnExit:          h.onExit,
		Logger:          h.logger,
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.orch = orch
	h.mu.Unlock()

	return orch.Start(ctx)
}

// resolveMode picks the topology: a config override wins, otherwise the
// persisted selection, otherwise bridge mode. The resolved value is
// persisted so future runs stay stable.
func (h *Hub) resolveMode(ctx context.Context) (bridge.Mode, error) {
	if h.cfg.Bridge.Mode != "" {
		mode := bridge.Mode(h.cfg.Bridge.Mode)
		if mode != bridge.ModeBridge && mode != bridge.ModeChildBridge {
			return "", fmt.Errorf("%w: %q", bridge.ErrInvalidMode, h.cfg.Bridge.Mode)
		}
		if err := h.hubCtx.Set(ctx, bridgeModeKey, string(mode)); err != nil {
			return "", fmt.Errorf("persisting bridge mode: %w", err)
		}
		return mode, nil
	}

	var persisted string
	err := h.hubCtx.Get(ctx, bridgeModeKey, &persisted)
	switch {
	case err == nil && (persisted == string(bridge.ModeBridge) || persisted == string(bridge.ModeChildBridge)):
		return bridge.Mode(persisted), nil
	case err != nil && !errors.Is(err, storage.ErrKeyNotFound):
		return "", fmt.Errorf("reading bridge mode: %w", err)
	}

	if err := h.hubCtx.Set(ctx, bridgeModeKey, string(bridge.ModeBridge)); err != nil {
		return "", fmt.Errorf("persisting bridge mode: %w", err)
	}
	return bridge.ModeBridge, nil
}

// SetBridgeMode persists a new topology selection. It takes effect on
// the next run.
func (h *Hub) SetBridgeMode(ctx context.Context, mode bridge.Mode) error {
	if mode != bridge.ModeBridge && mode != bridge.ModeChildBridge {
		return fmt.Errorf("%w: %q", bridge.ErrInvalidMode, mode)
	}
	h.mu.Lock()
	hubCtx := h.hubCtx
	h.mu.Unlock()
	if hubCtx == nil {
		return fmt.Errorf("hub not initialized")
	}
	if err := hubCtx.Set(ctx, bridgeModeKey, string(mode)); err != nil {
		return err
	}
	h.logger.Info("bridge mode persisted, effective on next run", "mode", mode)
	return nil
}

// Destroy tears the hub down through the orchestrator's idempotent
// cleanup. Safe to call before Initialize and safe to call twice.
func (h *Hub) Destroy(ctx context.Context, reason string, restart bool) {
	h.StopUpdateChecks()

	h.mu.Lock()
	orch := h.orch
	h.mu.Unlock()
	if orch == nil {
		return
	}
	orch.Cleanup(ctx, reason, restart)
}

// AddPlugin resolves and registers a plugin. Resolution failure leaves
// the record registered but disabled and returns the resolution error.
func (h *Hub) AddPlugin(ctx context.Context, p *plugin.Plugin) error {
	if err := h.adapter.Resolve(ctx, p); err != nil {
		p.Enabled = false
		if addErr := h.plugins.Add(ctx, p); addErr != nil {
			return addErr
		}
		return err
	}
	return h.plugins.Add(ctx, p)
}

// RemovePlugin unregisters a plugin: handler shut down, owned nodes
// stopped, devices dropped, then the registry record deleted.
func (h *Hub) RemovePlugin(ctx context.Context, name string) error {
	p, err := h.plugins.Get(name)
	if err != nil {
		return err
	}
	h.adapter.Shutdown(ctx, p, "plugin removed")

	h.mu.Lock()
	orch := h.orch
	h.mu.Unlock()
	if orch != nil {
		orch.DetachPlugin(ctx, p)
	}

	h.devices.RemoveByPlugin(name)
	return h.plugins.Remove(ctx, name)
}

// EnablePlugin persists enabled=true for a plugin.
func (h *Hub) EnablePlugin(ctx context.Context, name string) error {
	return h.plugins.SetEnabled(ctx, name, true)
}

// DisablePlugin persists enabled=false for a plugin.
func (h *Hub) DisablePlugin(ctx context.Context, name string) error {
	return h.plugins.SetEnabled(ctx, name, false)
}

// StartUpdateChecks begins the periodic plugin update poll. No-op when
// no UpdateChecker was provided.
func (h *Hub) StartUpdateChecks(ctx context.Context, interval time.Duration) {
	if h.updates == nil || interval <= 0 {
		return
	}

	h.mu.Lock()
	if h.updateStop != nil {
		h.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	h.updateStop = stop
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				h.checkUpdates(ctx)
			}
		}
	}()
}

// StopUpdateChecks halts the periodic update poll.
func (h *Hub) StopUpdateChecks() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.updateStop != nil {
		close(h.updateStop)
		h.updateStop = nil
	}
}

func (h *Hub) checkUpdates(ctx context.Context) {
	for _, p := range h.plugins.List() {
		latest, err := h.updates.LatestVersion(ctx, p)
		if err != nil {
			h.logger.Warn("update check failed", "plugin", p.Name, "error", err)
			continue
		}
		if latest != "" && latest != p.Version {
			h.logger.Info("plugin update available",
				"plugin", p.Name,
				"installed", p.Version,
				"latest", latest,
			)
		}
	}
}

// Plugins returns the plugin registry.
func (h *Hub) Plugins() *plugin.Registry { return h.plugins }

// Devices returns the device registry.
func (h *Hub) Devices() *device.Registry { return h.devices }

// State returns the orchestrator's lifecycle phase, or idle before
// initialization.
func (h *Hub) State() bridge.State {
	h.mu.Lock()
	orch := h.orch
	h.mu.Unlock()
	if orch == nil {
		return bridge.StateIdle
	}
	return orch.State()
}

// Mode returns the resolved topology, or empty before initialization.
func (h *Hub) Mode() bridge.Mode {
	h.mu.Lock()
	orch := h.orch
	h.mu.Unlock()
	if orch == nil {
		return ""
	}
	return orch.Mode()
}

// Pairings returns the open commissioning windows.
func (h *Hub) Pairings() []node.PairingInfo {
	h.mu.Lock()
	orch := h.orch
	h.mu.Unlock()
	if orch == nil {
		return nil
	}
	return orch.Pairings()
}

// StopAdvertising closes every open commissioning window early.
func (h *Hub) StopAdvertising() {
	h.mu.Lock()
	orch := h.orch
	h.mu.Unlock()
	if orch != nil {
		orch.StopAllAdvertising()
	}
}
