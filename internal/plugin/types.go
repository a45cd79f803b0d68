package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
)

// Type describes how a plugin registers devices.
type Type string

const (
	// TypeDynamic plugins may register devices any time after start.
	TypeDynamic Type = "dynamic"

	// TypeAccessory plugins register a fixed device set during start.
	TypeAccessory Type = "accessory"

	// TypeUnknown plugins have not declared a nature. They are treated
	// like accessory plugins for topology purposes.
	TypeUnknown Type = "unknown"
)

// Flags is a snapshot of a plugin's runtime lifecycle state.
//
// Flags are reset on every process start and never persisted; only
// Enabled on the Plugin record survives restarts.
type Flags struct {
	Loaded     bool `json:"loaded"`
	Started    bool `json:"started"`
	Configured bool `json:"configured"`
	Paired     bool `json:"paired"`
	Connected  bool `json:"connected"`
	Errored    bool `json:"errored"`
}

// Plugin is a registered integration.
//
// Identity and Enabled are persisted through the Repository; lifecycle
// flags and runtime handles are rebuilt each run. Flag mutation goes
// through the Mark methods so adapter goroutines and the orchestrator's
// poll loop can share a record safely.
type Plugin struct {
	// Name uniquely identifies the plugin.
	Name string `json:"name"`

	// Path is where the plugin's code is resolved from.
	Path string `json:"path"`

	// Version is the plugin's reported version.
	Version string `json:"version"`

	// Type declares the plugin's device registration nature.
	Type Type `json:"type"`

	// Enabled controls whether the orchestrator launches the plugin.
	// Changes persist immediately.
	Enabled bool `json:"enabled"`

	// Config is the plugin-declared configuration blob, persisted as-is.
	Config map[string]any `json:"config,omitempty"`

	// Position is the stable registration order index.
	Position int `json:"position"`

	mu    sync.Mutex
	flags Flags

	handler Handler

	// Runtime handles, set by the orchestrator in childbridge mode.
	nodeHandle node.Handle
	aggregator node.AggregatorHandle
}

// Flags returns a snapshot of the plugin's lifecycle flags.
func (p *Plugin) Flags() Flags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

// MarkLoaded records a successful load.
func (p *Plugin) MarkLoaded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags.Loaded = true
}

// MarkStarted records a successful start.
func (p *Plugin) MarkStarted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags.Started = true
}

// MarkConfigured records a successful configure pass. Errored plugins
// are never configured.
func (p *Plugin) MarkConfigured() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flags.Errored {
		return
	}
	p.flags.Configured = true
}

// MarkErrored records a failure. The flag is sticky: an errored plugin
// is excluded from further lifecycle transitions, and configured is
// cleared to hold the error implies not-configured invariant.
func (p *Plugin) MarkErrored() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags.Errored = true
	p.flags.Configured = false
}

// SetPaired updates the paired flag. Meaningful only in childbridge
// topology for plugins owning a node.
func (p *Plugin) SetPaired(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags.Paired = v
}

// SetConnected updates the connected flag.
func (p *Plugin) SetConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags.Connected = v
}

// Settled reports whether the plugin has finished startup, either by
// reaching loaded and started or by erroring out.
func (p *Plugin) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return (p.flags.Loaded && p.flags.Started) || p.flags.Errored
}

// ResetRuntimeState clears all lifecycle flags and runtime handles.
// Called once per process start before the orchestrator launches.
func (p *Plugin) ResetRuntimeState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flags = Flags{}
	p.nodeHandle = nil
	p.aggregator = nil
}

// SetNode records the plugin's own protocol node.
func (p *Plugin) SetNode(h node.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodeHandle = h
}

// Node returns the plugin's own protocol node, or nil.
func (p *Plugin) Node() node.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nodeHandle
}

// SetAggregator records the plugin's own aggregator sub-node.
func (p *Plugin) SetAggregator(a node.AggregatorHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aggregator = a
}

// Aggregator returns the plugin's own aggregator sub-node, or nil.
func (p *Plugin) Aggregator() node.AggregatorHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aggregator
}

// Handler is the lifecycle contract plugin code implements.
//
// Any returned error is handled uniformly by the Adapter: load and start
// failures mark the plugin errored, configure failures are logged no-ops,
// shutdown failures are swallowed best-effort.
type Handler interface {
	// OnLoad prepares the plugin. The host surface stays valid until
	// OnShutdown returns.
	OnLoad(ctx context.Context, host Host) error

	// OnStart brings the integration online. Accessory plugins register
	// their fixed device set here.
	OnStart(ctx context.Context) error

	// OnConfigure applies persisted configuration after the protocol
	// node is up.
	OnConfigure(ctx context.Context) error

	// OnShutdown tears the integration down. reason describes why.
	OnShutdown(ctx context.Context, reason string) error
}

// Host is the narrow surface the hub exposes to plugin code.
type Host interface {
	// RegisterDevice exposes a device on the fabric and returns its
	// assigned unique id.
	RegisterDevice(name string, mode device.Mode) (string, error)

	// Storage returns the plugin's private key-value context.
	Storage() *storage.Context
}

// Resolver maps a plugin record to loadable code.
//
// A (nil, nil) return means not found; the Adapter then makes one
// reinstall attempt through the Installer before giving up.
type Resolver interface {
	Resolve(ctx context.Context, p *Plugin) (Handler, error)
}

// Installer reinstalls a plugin whose code could not be resolved.
type Installer interface {
	Install(ctx context.Context, p *Plugin) error
}

// NoopInstaller is the default Installer; it performs no installation.
type NoopInstaller struct{}

// Install implements Installer.
func (NoopInstaller) Install(context.Context, *Plugin) error { return nil }

// DefaultShutdownTimeout bounds each plugin's OnShutdown call.
const DefaultShutdownTimeout = 10 * time.Second
