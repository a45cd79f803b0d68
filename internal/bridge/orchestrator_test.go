package bridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
)

// fakeNode is a minimal node.Handle.
type fakeNode struct {
	id    string
	owner string
}

func (n *fakeNode) ID() string      { return n.id }
func (n *fakeNode) OwnerID() string { return n.owner }

// fakeAggregator is a minimal node.AggregatorHandle.
type fakeAggregator struct {
	id    string
	owner string

	mu       sync.Mutex
	children []string
}

func (a *fakeAggregator) ID() string      { return a.id }
func (a *fakeAggregator) OwnerID() string { return a.owner }

func (a *fakeAggregator) AddChild(endpointID, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.children = append(a.children, endpointID)
	return nil
}

func (a *fakeAggregator) Children() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.children))
	copy(out, a.children)
	return out
}

// fakeFactory is a scriptable node.Factory recording every call.
type fakeFactory struct {
	mu sync.Mutex

	failCreateFor map[string]bool // ownerID -> fail CreateServerNode
	failStartFor  map[string]bool // ownerID -> fail StartServerNode

	aggregators []*fakeAggregator
	nodes       []*fakeNode
	started     map[string]bool // node id -> started
	stopCalls   int
	advertising map[string]bool // node id -> advertising
	advertCalls int

	events chan node.Event
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		failCreateFor: make(map[string]bool),
		failStartFor:  make(map[string]bool),
		started:       make(map[string]bool),
		advertising:   make(map[string]bool),
		events:        make(chan node.Event, 16),
	}
}

func (f *fakeFactory) CreateAggregatorNode(ownerID string) (node.AggregatorHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agg := &fakeAggregator{id: uuid.NewString(), owner: ownerID}
	f.aggregators = append(f.aggregators, agg)
	return agg, nil
}

func (f *fakeFactory) CreateServerNode(ownerID string, _ node.NetworkOptions) (node.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateFor[ownerID] {
		return nil, fmt.Errorf("%w: scripted failure for %s", node.ErrNodeCreation, ownerID)
	}
	n := &fakeNode{id: uuid.NewString(), owner: ownerID}
	f.nodes = append(f.nodes, n)
	return n, nil
}

func (f *fakeFactory) AttachAggregator(node.Handle, node.AggregatorHandle) error {
	return nil
}

func (f *fakeFactory) StartServerNode(_ context.Context, h node.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStartFor[h.OwnerID()] {
		return fmt.Errorf("%w: scripted failure for %s", node.ErrNodeStart, h.OwnerID())
	}
	f.started[h.ID()] = true
	return nil
}

func (f *fakeFactory) StopServerNode(_ context.Context, h node.Handle, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	delete(f.started, h.ID())
	return nil
}

func (f *fakeFactory) Advertise(h node.Handle) (node.PairingInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertCalls++
	f.advertising[h.ID()] = true
	return node.PairingInfo{
		NodeID:        h.ID(),
		Passcode:      "12345678",
		Discriminator: 1234,
		Port:          5540,
	}, nil
}

func (f *fakeFactory) StopAdvertise(h node.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.advertising, h.ID())
	return nil
}

func (f *fakeFactory) Events() <-chan node.Event { return f.events }

func (f *fakeFactory) Close() error {
	close(f.events)
	return nil
}

func (f *fakeFactory) nodeForOwner(ownerID string) *fakeNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.nodes {
		if n.owner == ownerID {
			return n
		}
	}
	return nil
}

func (f *fakeFactory) startedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeFactory) advertisingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.advertising)
}

// scriptedHandler drives one plugin through a scripted lifecycle.
type scriptedHandler struct {
	startErr             error
	configureErr         error
	hangStart            chan struct{} // when set, OnStart blocks until closed
	devicesAtStart       []string      // bridged devices registered during OnStart
	serverDevicesAtStart []string      // server-mode devices registered during OnStart

	mu             sync.Mutex
	host           plugin.Host
	configureCalls int
	shutdownCalls  int
}

func (h *scriptedHandler) OnLoad(_ context.Context, host plugin.Host) error {
	h.mu.Lock()
	h.host = host
	h.mu.Unlock()
	return nil
}

func (h *scriptedHandler) OnStart(context.Context) error {
	if h.hangStart != nil {
		<-h.hangStart
	}
	if h.startErr != nil {
		return h.startErr
	}
	h.mu.Lock()
	host := h.host
	h.mu.Unlock()
	for _, name := range h.devicesAtStart {
		if _, err := host.RegisterDevice(name, device.ModeBridged); err != nil {
			return err
		}
	}
	for _, name := range h.serverDevicesAtStart {
		if _, err := host.RegisterDevice(name, device.ModeServer); err != nil {
			return err
		}
	}
	return nil
}

func (h *scriptedHandler) OnConfigure(context.Context) error {
	h.mu.Lock()
	h.configureCalls++
	h.mu.Unlock()
	return h.configureErr
}

func (h *scriptedHandler) OnShutdown(context.Context, string) error {
	h.mu.Lock()
	h.shutdownCalls++
	h.mu.Unlock()
	return nil
}

func (h *scriptedHandler) configured() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.configureCalls
}

func (h *scriptedHandler) shutdowns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdownCalls
}

// memRepo is an in-memory plugin.Repository for the fixtures.
type memRepo struct {
	mu      sync.Mutex
	plugins map[string]*plugin.Plugin
}

func newMemRepo() *memRepo {
	return &memRepo{plugins: make(map[string]*plugin.Plugin)}
}

func (m *memRepo) List(context.Context) ([]*plugin.Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*plugin.Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	return out, nil
}

func (m *memRepo) Save(_ context.Context, p *plugin.Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins[p.Name] = p
	return nil
}

func (m *memRepo) SetEnabled(_ context.Context, name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plugins[name]
	if !ok {
		return plugin.ErrPluginNotFound
	}
	p.Enabled = enabled
	return nil
}

func (m *memRepo) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plugins, name)
	return nil
}

func (m *memRepo) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = make(map[string]*plugin.Plugin)
	return nil
}

// fixture bundles everything a bridge test needs.
type fixture struct {
	orch     *Orchestrator
	factory  *fakeFactory
	plugins  *plugin.Registry
	devices  *device.Registry
	handlers map[string]*scriptedHandler
}

type pluginSpec struct {
	name    string
	typ     plugin.Type
	handler *scriptedHandler
}

func newFixture(t *testing.T, mode Mode, failLimit int, specs []pluginSpec) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "hub.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.ExecContext(ctx, `
		CREATE TABLE kv_store (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)`)
	if err != nil {
		t.Fatalf("creating kv_store: %v", err)
	}

	store, err := storage.NewStore(ctx, db, storage.Options{})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	resolver := plugin.NewCatalogResolver()
	registry := plugin.NewRegistry(newMemRepo())
	handlers := make(map[string]*scriptedHandler, len(specs))
	for _, spec := range specs {
		handlers[spec.name] = spec.handler
		h := spec.handler
		resolver.Register(spec.name, func(*plugin.Plugin) plugin.Handler { return h })
		p := &plugin.Plugin{Name: spec.name, Type: spec.typ, Enabled: true}
		if err := registry.Add(ctx, p); err != nil {
			t.Fatalf("registering plugin %s: %v", spec.name, err)
		}
	}

	adapter, err := plugin.NewAdapter(plugin.AdapterOptions{
		Resolver:        resolver,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	factory := newFakeFactory()
	orch, err := New(Options{
		Mode:            mode,
		Plugins:         registry,
		Devices:         device.NewRegistry(),
		Adapter:         adapter,
		Factory:         factory,
		Store:           store,
		FailCountLimit:  failLimit,
		PollInterval:    5 * time.Millisecond,
		SettleDelay:     10 * time.Millisecond,
		AdvertiseWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &fixture{
		orch:     orch,
		factory:  factory,
		plugins:  registry,
		devices:  orch.devices,
		handlers: handlers,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStart_BridgeMode(t *testing.T) {
	// Accessory plugin with no devices plus dynamic plugin registering
	// one device at start.
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"accessory-a", plugin.TypeAccessory, &scriptedHandler{}},
		{"dynamic-b", plugin.TypeDynamic, &scriptedHandler{devicesAtStart: []string{"Lamp"}}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := fx.orch.State(); got != StateRunning {
		t.Errorf("State() = %q, want %q", got, StateRunning)
	}
	for _, name := range []string{"accessory-a", "dynamic-b"} {
		p, _ := fx.plugins.Get(name)
		flags := p.Flags()
		if !flags.Loaded || !flags.Started || flags.Errored {
			t.Errorf("%s flags = %+v, want loaded and started", name, flags)
		}
	}
	if got := fx.devices.Count(); got != 1 {
		t.Errorf("device count = %d, want 1", got)
	}

	// Exactly one aggregator and one shared node.
	if len(fx.factory.aggregators) != 1 {
		t.Errorf("aggregators = %d, want 1", len(fx.factory.aggregators))
	}
	if len(fx.factory.nodes) != 1 || fx.factory.nodes[0].owner != hubOwnerID {
		t.Errorf("nodes = %+v, want one owned by %q", fx.factory.nodes, hubOwnerID)
	}
	if got := fx.factory.aggregators[0].Children(); len(got) != 1 {
		t.Errorf("aggregator children = %v, want 1", got)
	}
}

func TestStart_BridgeMode_PluginFailureIsolated(t *testing.T) {
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"failing-a", plugin.TypeAccessory, &scriptedHandler{startErr: errors.New("boom")}},
		{"healthy-b", plugin.TypeDynamic, &scriptedHandler{devicesAtStart: []string{"Lamp"}}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	a, _ := fx.plugins.Get("failing-a")
	if !a.Flags().Errored {
		t.Error("failing plugin not marked errored")
	}
	b, _ := fx.plugins.Get("healthy-b")
	if !b.Flags().Started {
		t.Error("healthy plugin did not start")
	}
	if got := fx.orch.State(); got != StateRunning {
		t.Errorf("State() = %q, want %q", got, StateRunning)
	}
}

func TestStart_FailSafe_ZeroLimit(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)

	fx := newFixture(t, ModeBridge, 0, []pluginSpec{
		{"lagging", plugin.TypeAccessory, &scriptedHandler{hangStart: hang}},
	})

	start := time.Now()
	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("barrier held %v with zero fail limit", elapsed)
	}

	p, _ := fx.plugins.Get("lagging")
	if !p.Flags().Errored {
		t.Error("lagging plugin not force-errored")
	}
	if got := fx.orch.State(); got != StateRunning {
		t.Errorf("State() = %q, want %q", got, StateRunning)
	}
}

func TestStart_FailSafe_MarksAllLagging(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)

	fx := newFixture(t, ModeBridge, 2, []pluginSpec{
		{"lagging-1", plugin.TypeAccessory, &scriptedHandler{hangStart: hang}},
		{"lagging-2", plugin.TypeAccessory, &scriptedHandler{hangStart: hang}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, name := range []string{"lagging-1", "lagging-2"} {
		p, _ := fx.plugins.Get(name)
		if !p.Flags().Errored {
			t.Errorf("%s not force-errored at fail-safe expiry", name)
		}
	}
}

func TestStart_BridgeMode_NodeStartFatal(t *testing.T) {
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"plugin-a", plugin.TypeAccessory, &scriptedHandler{}},
	})
	fx.factory.failStartFor[hubOwnerID] = true

	err := fx.orch.Start(context.Background())
	if !errors.Is(err, node.ErrNodeStart) {
		t.Fatalf("Start() error = %v, want ErrNodeStart", err)
	}
}

func TestStart_ChildBridge(t *testing.T) {
	fx := newFixture(t, ModeChildBridge, 100, []pluginSpec{
		{"dynamic-a", plugin.TypeDynamic, &scriptedHandler{devicesAtStart: []string{"Lamp", "Blind"}}},
		{"accessory-b", plugin.TypeAccessory, &scriptedHandler{}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	a, _ := fx.plugins.Get("dynamic-a")
	if a.Node() == nil {
		t.Error("dynamic plugin has no node")
	}
	if a.Aggregator() == nil {
		t.Error("dynamic plugin has no aggregator sub-node")
	}
	if got := a.Aggregator().Children(); len(got) != 2 {
		t.Errorf("dynamic plugin aggregator children = %v, want 2", got)
	}

	b, _ := fx.plugins.Get("accessory-b")
	if b.Node() == nil {
		t.Error("accessory plugin has no node")
	}
	if b.Aggregator() != nil {
		t.Error("accessory plugin should not get an aggregator")
	}

	if got := fx.factory.startedCount(); got != 2 {
		t.Errorf("started nodes = %d, want 2", got)
	}
}

func TestStart_ChildBridge_NodeFailureIsolated(t *testing.T) {
	fx := newFixture(t, ModeChildBridge, 100, []pluginSpec{
		{"doomed", plugin.TypeAccessory, &scriptedHandler{}},
		{"healthy", plugin.TypeAccessory, &scriptedHandler{}},
	})
	fx.factory.failStartFor["doomed"] = true

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, node failure must be isolated", err)
	}

	doomed, _ := fx.plugins.Get("doomed")
	if !doomed.Flags().Errored {
		t.Error("doomed plugin not marked errored")
	}
	healthy, _ := fx.plugins.Get("healthy")
	if healthy.Flags().Errored {
		t.Error("healthy plugin affected by sibling node failure")
	}
	if got := fx.orch.State(); got != StateRunning {
		t.Errorf("State() = %q, want %q", got, StateRunning)
	}
}

func TestStart_ChildBridge_ServerDevice(t *testing.T) {
	fx := newFixture(t, ModeChildBridge, 100, []pluginSpec{
		{"dynamic-a", plugin.TypeDynamic, &scriptedHandler{serverDevicesAtStart: []string{"Thermostat"}}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	devices := fx.devices.List()
	if len(devices) != 1 {
		t.Fatalf("device count = %d, want 1", len(devices))
	}
	d := devices[0]
	if d.Mode != device.ModeServer {
		t.Fatalf("device mode = %q, want %q", d.Mode, device.ModeServer)
	}
	if d.Node == nil {
		t.Fatal("server device has no node")
	}

	p, _ := fx.plugins.Get("dynamic-a")
	if p.Node() == nil {
		t.Fatal("plugin has no node")
	}
	if d.Node.ID() == p.Node().ID() {
		t.Error("server device must own its own node, not the plugin's")
	}
	if owner := d.Node.OwnerID(); owner != "device:"+d.UniqueID {
		t.Errorf("device node owner = %q, want %q", owner, "device:"+d.UniqueID)
	}

	// Plugin node plus the device's own node.
	if got := fx.factory.startedCount(); got != 2 {
		t.Errorf("started nodes = %d, want 2", got)
	}

	fx.orch.Cleanup(context.Background(), "test shutdown", false)
	if got := fx.factory.startedCount(); got != 0 {
		t.Errorf("started nodes after cleanup = %d, want 0", got)
	}
	if fx.factory.stopCalls != 2 {
		t.Errorf("node stop calls = %d, want 2", fx.factory.stopCalls)
	}
}

func TestDetachPlugin_StopsOwnedNodes(t *testing.T) {
	fx := newFixture(t, ModeChildBridge, 100, []pluginSpec{
		{"removable", plugin.TypeDynamic, &scriptedHandler{
			devicesAtStart:       []string{"Lamp"},
			serverDevicesAtStart: []string{"Thermostat"},
		}},
		{"surviving", plugin.TypeAccessory, &scriptedHandler{}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// removable's node, its server device's node, surviving's node.
	if got := fx.factory.startedCount(); got != 3 {
		t.Fatalf("started nodes = %d, want 3", got)
	}

	p, _ := fx.plugins.Get("removable")
	fx.orch.DetachPlugin(context.Background(), p)

	if p.Node() != nil {
		t.Error("detached plugin still holds a node handle")
	}
	if p.Aggregator() != nil {
		t.Error("detached plugin still holds an aggregator handle")
	}
	if got := fx.factory.startedCount(); got != 1 {
		t.Errorf("started nodes after detach = %d, want only the surviving plugin's", got)
	}
	if got := fx.factory.advertisingCount(); got != 1 {
		t.Errorf("advertising nodes after detach = %d, want 1", got)
	}

	// Detaching again is a no-op.
	fx.orch.DetachPlugin(context.Background(), p)
	if fx.factory.stopCalls != 2 {
		t.Errorf("node stop calls = %d, want 2", fx.factory.stopCalls)
	}

	// Final cleanup only touches the surviving plugin's node.
	fx.orch.Cleanup(context.Background(), "test shutdown", false)
	if fx.factory.stopCalls != 3 {
		t.Errorf("node stop calls after cleanup = %d, want 3", fx.factory.stopCalls)
	}
}

func TestConfigurePass_NonBlocking(t *testing.T) {
	failing := &scriptedHandler{configureErr: errors.New("schema mismatch")}
	healthy := &scriptedHandler{}
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"failing", plugin.TypeAccessory, failing},
		{"healthy", plugin.TypeAccessory, healthy},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return failing.configured() == 1 && healthy.configured() == 1
	}, "configure pass did not reach both plugins")

	waitFor(t, 2*time.Second, func() bool {
		p, _ := fx.plugins.Get("healthy")
		return p.Flags().Configured
	}, "healthy plugin not configured")

	p, _ := fx.plugins.Get("failing")
	if p.Flags().Configured {
		t.Error("failed configure must leave configured=false")
	}
	if p.Flags().Errored {
		t.Error("configure failure must not error the plugin")
	}
}

func TestAdvertising(t *testing.T) {
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"plugin-a", plugin.TypeAccessory, &scriptedHandler{}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := fx.factory.advertisingCount(); got != 1 {
		t.Fatalf("advertising nodes = %d, want 1", got)
	}
	pairings := fx.orch.Pairings()
	if len(pairings) != 1 || pairings[0].Passcode == "" {
		t.Errorf("Pairings() = %+v", pairings)
	}
	if pairings[0].ExpiresAt.IsZero() {
		t.Error("pairing has no expiry")
	}

	// Restart refreshes rather than stacks.
	shared := fx.factory.nodeForOwner(hubOwnerID)
	if err := fx.orch.AdvertiseNode(shared); err != nil {
		t.Fatalf("re-AdvertiseNode() error = %v", err)
	}
	if got := len(fx.orch.Pairings()); got != 1 {
		t.Errorf("pairings after refresh = %d, want 1", got)
	}

	// Early stop, then stopping again is a no-op.
	if err := fx.orch.StopAdvertiseNode(shared); err != nil {
		t.Fatalf("StopAdvertiseNode() error = %v", err)
	}
	if got := fx.factory.advertisingCount(); got != 0 {
		t.Errorf("advertising nodes after stop = %d, want 0", got)
	}
	if err := fx.orch.StopAdvertiseNode(shared); err != nil {
		t.Errorf("second StopAdvertiseNode() error = %v", err)
	}
}

func TestAdvertising_WindowExpires(t *testing.T) {
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"plugin-a", plugin.TypeAccessory, &scriptedHandler{}},
	})
	fx.orch.advertiseWindow = 20 * time.Millisecond

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return fx.factory.advertisingCount() == 0
	}, "commissioning window never expired")

	if got := len(fx.orch.Pairings()); got != 0 {
		t.Errorf("pairings after expiry = %d, want 0", got)
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	handler := &scriptedHandler{}
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"plugin-a", plugin.TypeAccessory, handler},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	exitCalls := 0
	fx.orch.onExit = func(bool) { exitCalls++ }

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.orch.Cleanup(context.Background(), "test shutdown", false)
		}()
	}
	wg.Wait()

	if got := handler.shutdowns(); got != 1 {
		t.Errorf("plugin shutdown calls = %d, want exactly 1", got)
	}
	if fx.factory.stopCalls != 1 {
		t.Errorf("node stop calls = %d, want exactly 1", fx.factory.stopCalls)
	}
	if exitCalls != 1 {
		t.Errorf("onExit calls = %d, want exactly 1", exitCalls)
	}
	if got := fx.orch.State(); got != StateStopped {
		t.Errorf("State() = %q, want %q", got, StateStopped)
	}
}

func TestEventBridging(t *testing.T) {
	fx := newFixture(t, ModeChildBridge, 100, []pluginSpec{
		{"plugin-a", plugin.TypeAccessory, &scriptedHandler{}},
	})

	var sinkMu sync.Mutex
	var sunk []node.Event
	fx.orch.sinks = []EventSink{eventSinkFunc(func(ev node.Event) {
		sinkMu.Lock()
		sunk = append(sunk, ev)
		sinkMu.Unlock()
	})}

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	p, _ := fx.plugins.Get("plugin-a")
	nodeID := p.Node().ID()

	fx.factory.events <- node.Event{Kind: node.EventCommissioned, NodeID: nodeID}
	fx.factory.events <- node.Event{Kind: node.EventSessionOpened, NodeID: nodeID, SessionID: "s1"}

	waitFor(t, 2*time.Second, func() bool {
		flags := p.Flags()
		return flags.Paired && flags.Connected
	}, "paired/connected flags not updated from events")

	fx.factory.events <- node.Event{Kind: node.EventSessionClosed, NodeID: nodeID, SessionID: "s1"}
	waitFor(t, 2*time.Second, func() bool {
		return !p.Flags().Connected
	}, "connected flag not cleared on session close")

	waitFor(t, 2*time.Second, func() bool {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		return len(sunk) == 3
	}, "sink did not receive all events")
}

type eventSinkFunc func(node.Event)

func (f eventSinkFunc) Publish(ev node.Event) { f(ev) }

func TestStart_Twice(t *testing.T) {
	fx := newFixture(t, ModeBridge, 100, []pluginSpec{
		{"plugin-a", plugin.TypeAccessory, &scriptedHandler{}},
	})

	if err := fx.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := fx.orch.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestNew_InvalidMode(t *testing.T) {
	_, err := New(Options{Mode: "mesh"})
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("New() error = %v, want ErrInvalidMode", err)
	}
}
