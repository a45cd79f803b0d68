package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
)

// Logger defines the logging interface used by the Orchestrator.
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

// State is the orchestrator's lifecycle phase.
type State string

const (
	StateIdle              State = "idle"
	StateWaitingForPlugins State = "waiting_for_plugins"
	StateCreatingNode      State = "creating_node"
	StateStartingNode      State = "starting_node"
	StateRunning           State = "running"
	StateShuttingDown      State = "shutting_down"
	StateStopped           State = "stopped"
)

// Mode selects the exposure topology.
type Mode string

const (
	// ModeBridge exposes every plugin's devices under one shared
	// protocol node and aggregator.
	ModeBridge Mode = "bridge"

	// ModeChildBridge gives each plugin its own protocol node.
	ModeChildBridge Mode = "childbridge"
)

// hubOwnerID scopes the shared node and aggregator to the orchestrator
// itself in bridge mode.
const hubOwnerID = "hub"

// Default timing parameters.
const (
	DefaultFailCountLimit  = 120
	DefaultPollInterval    = time.Second
	DefaultSettleDelay     = 5 * time.Second
	DefaultAdvertiseWindow = 15 * time.Minute
	DefaultNodeStopTimeout = 10 * time.Second
)

// EventSink receives node events after the orchestrator has applied
// them. Sinks must not block.
type EventSink interface {
	Publish(ev node.Event)
}

// Options configures an Orchestrator.
type Options struct {
	// Mode selects bridge or childbridge topology. Required.
	Mode Mode

	// Plugins is the plugin registry. Required.
	Plugins *plugin.Registry

	// Devices is the device registry. Required.
	Devices *device.Registry

	// Adapter drives plugin lifecycle hooks. Required.
	Adapter *plugin.Adapter

	// Factory creates and controls protocol nodes. Required.
	Factory node.Factory

	// Store partitions per-plugin storage contexts. Required.
	Store *storage.Store

	// NodeName labels the shared node in bridge mode.
	NodeName string

	// Network carries base port and interface settings for created
	// nodes.
	Network node.NetworkOptions

	// FailCountLimit bounds the startup poll in ticks. Zero means the
	// first tick already errors laggards; negative selects the default.
	FailCountLimit int

	// PollInterval is the startup poll period.
	PollInterval time.Duration

	// SettleDelay is the pause between node start and the deferred
	// configure pass.
	SettleDelay time.Duration

	// AdvertiseWindow bounds each commissioning window.
	AdvertiseWindow time.Duration

	// Sinks receive node events after state updates.
	Sinks []EventSink

	// OnExit is invoked once after cleanup completes; restart reports
	// whether a supervisor restart was requested.
	OnExit func(restart bool)

	// Logger is an optional structured logger.
	Logger Logger
}

// Orchestrator runs the startup and shutdown state machines for both
// topologies: launch plugins, hold the conjunction barrier, build the
// node topology, run the deferred configure pass, manage commissioning
// windows, and tear everything down once.
type Orchestrator struct {
	mode            Mode
	plugins         *plugin.Registry
	devices         *device.Registry
	adapter         *plugin.Adapter
	factory         node.Factory
	store           *storage.Store
	nodeName        string
	network         node.NetworkOptions
	failCountLimit  int
	pollInterval    time.Duration
	settleDelay     time.Duration
	advertiseWindow time.Duration
	sinks           []EventSink
	onExit          func(bool)
	logger          Logger

	stateMu sync.RWMutex
	state   State

	// Topology handles. Guarded by nodesMu.
	nodesMu     sync.Mutex
	aggregator  node.AggregatorHandle // bridge mode only
	sharedNode  node.Handle           // bridge mode only
	deviceNodes map[string]node.Handle

	// Commissioning windows. Guarded by advertMu.
	advertMu sync.Mutex
	timers   map[string]*time.Timer
	pairings map[string]node.PairingInfo

	configTimer *time.Timer // guarded by advertMu as well

	hostsMu sync.Mutex
	hosts   map[string]*pluginHost

	cleanupStarted atomic.Bool
	cleanupDone    chan struct{}
	eventsDone     chan struct{}
}

// New creates an orchestrator. Start must be called to run it.
func New(opts Options) (*Orchestrator, error) {
	switch opts.Mode {
	case ModeBridge, ModeChildBridge:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, opts.Mode)
	}
	if opts.Plugins == nil || opts.Devices == nil || opts.Adapter == nil || opts.Factory == nil || opts.Store == nil {
		return nil, fmt.Errorf("plugins, devices, adapter, factory and store are required")
	}

	failLimit := opts.FailCountLimit
	if failLimit < 0 {
		failLimit = DefaultFailCountLimit
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	settle := opts.SettleDelay
	if settle < 0 {
		settle = DefaultSettleDelay
	}
	window := opts.AdvertiseWindow
	if window <= 0 {
		window = DefaultAdvertiseWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	nodeName := opts.NodeName
	if nodeName == "" {
		nodeName = "Gray Logic Hub"
	}

	return &Orchestrator{
		mode:            opts.Mode,
		plugins:         opts.Plugins,
		devices:         opts.Devices,
		adapter:         opts.Adapter,
		factory:         opts.Factory,
		store:           opts.Store,
		nodeName:        nodeName,
		network:         opts.Network,
		failCountLimit:  failLimit,
		pollInterval:    poll,
		settleDelay:     settle,
		advertiseWindow: window,
		sinks:           opts.Sinks,
		onExit:          opts.OnExit,
		logger:          logger,
		state:           StateIdle,
		deviceNodes:     make(map[string]node.Handle),
		timers:          make(map[string]*time.Timer),
		pairings:        make(map[string]node.PairingInfo),
		hosts:           make(map[string]*pluginHost),
		cleanupDone:     make(chan struct{}),
		eventsDone:      make(chan struct{}),
	}, nil
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// Mode returns the resolved topology.
func (o *Orchestrator) Mode() Mode {
	return o.mode
}

func (o *Orchestrator) setState(s State) {
	o.stateMu.Lock()
	prev := o.state
	o.state = s
	o.stateMu.Unlock()
	o.logger.Info("bridge state changed", "from", prev, "to", s)
}

// Start runs the startup state machine: launch every enabled plugin,
// hold the conjunction barrier, build the node topology for the
// resolved mode, then schedule the deferred configure pass and open the
// commissioning window.
//
// Plugin failures never fail Start. In bridge mode a node create/start
// failure is fatal; in childbridge mode it is isolated to one plugin.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.State() != StateIdle {
		return ErrAlreadyRunning
	}

	go o.consumeEvents()

	o.setState(StateWaitingForPlugins)
	o.launchPlugins(ctx)

	if err := o.waitForPlugins(ctx); err != nil {
		return err
	}

	var err error
	switch o.mode {
	case ModeBridge:
		err = o.startBridge(ctx)
	case ModeChildBridge:
		err = o.startChildBridges(ctx)
	}
	if err != nil {
		return err
	}

	o.setState(StateRunning)
	o.scheduleConfigure(ctx)
	o.startAdvertising()
	return nil
}

// launchPlugins resolves, loads and starts every enabled plugin, each
// on its own goroutine. Within one plugin the verbs run strictly in
// sequence; across plugins there is no ordering. Failures are recorded
// on the plugin record and never propagate.
func (o *Orchestrator) launchPlugins(ctx context.Context) {
	for _, p := range o.plugins.ListEnabled() {
		host := o.hostFor(p)
		go func(p *plugin.Plugin) {
			if err := o.adapter.Resolve(ctx, p); err != nil {
				o.logger.Error("plugin resolution failed", "plugin", p.Name, "error", err)
				p.MarkErrored()
				return
			}
			if err := o.adapter.Load(ctx, p, host); err != nil {
				return // already logged and marked by the adapter
			}
			if err := o.adapter.Start(ctx, p); err != nil {
				return
			}
		}(p)
	}
}

// waitForPlugins is the startup barrier: a fixed-period poll holding
// until every enabled plugin is settled, bounded by the fail-safe
// counter. On expiry every still-lagging plugin is marked errored and
// the barrier clears; plugin failure never fails the run.
func (o *Orchestrator) waitForPlugins(ctx context.Context) error {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	failCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			failCount++

			if o.allSettled() {
				o.logger.Info("all plugins settled", "ticks", failCount)
				return nil
			}
			if failCount > o.failCountLimit {
				o.errorLaggingPlugins(failCount)
				return nil
			}
		}
	}
}

func (o *Orchestrator) allSettled() bool {
	for _, p := range o.plugins.ListEnabled() {
		if !p.Settled() {
			return false
		}
	}
	return true
}

// errorLaggingPlugins force-errors every enabled plugin that never
// reported loaded and started within the fail-safe budget.
func (o *Orchestrator) errorLaggingPlugins(ticks int) {
	for _, p := range o.plugins.ListEnabled() {
		if p.Settled() {
			continue
		}
		p.MarkErrored()
		o.logger.Error("plugin startup fail-safe expired",
			"plugin", p.Name,
			"ticks", ticks,
			"error", fmt.Errorf("%w: %s", ErrFailSafeTimeout, p.Name),
		)
	}
}

// scheduleConfigure arms the one-shot deferred configure pass. After the
// settle delay each healthy plugin's configure hook fires independently;
// a failure in one never blocks another.
func (o *Orchestrator) scheduleConfigure(ctx context.Context) {
	o.advertMu.Lock()
	defer o.advertMu.Unlock()

	o.configTimer = time.AfterFunc(o.settleDelay, func() {
		for _, p := range o.plugins.ListEnabled() {
			flags := p.Flags()
			if !flags.Loaded || !flags.Started || flags.Errored {
				continue
			}
			go o.adapter.Configure(ctx, p)
		}
	})
}

// hostFor returns the plugin's host surface, creating it and its private
// storage context on first use.
func (o *Orchestrator) hostFor(p *plugin.Plugin) *pluginHost {
	o.hostsMu.Lock()
	defer o.hostsMu.Unlock()

	if h, ok := o.hosts[p.Name]; ok {
		return h
	}
	storeCtx, err := o.store.Context("plugin:" + p.Name)
	if err != nil {
		// Namespace is non-empty here so this cannot fail; guard anyway.
		o.logger.Error("plugin storage context failed", "plugin", p.Name, "error", err)
	}
	h := &pluginHost{orch: o, plugin: p, storage: storeCtx}
	o.hosts[p.Name] = h
	return h
}

// healthyPlugins returns enabled plugins that settled without error.
func (o *Orchestrator) healthyPlugins() []*plugin.Plugin {
	var out []*plugin.Plugin
	for _, p := range o.plugins.ListEnabled() {
		flags := p.Flags()
		if flags.Loaded && flags.Started && !flags.Errored {
			out = append(out, p)
		}
	}
	return out
}
