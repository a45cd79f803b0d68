package hub

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
)

// stubFactory satisfies node.Factory with inert handles, recording
// which owners' nodes get stopped.
type stubFactory struct {
	mu      sync.Mutex
	stopped []string
	events  chan node.Event
}

func newStubFactory() *stubFactory {
	return &stubFactory{events: make(chan node.Event)}
}

type stubHandle struct{ id, owner string }

func (h stubHandle) ID() string      { return h.id }
func (h stubHandle) OwnerID() string { return h.owner }

type stubAggregator struct{ stubHandle }

func (stubAggregator) AddChild(string, string) error { return nil }
func (stubAggregator) Children() []string            { return nil }

func (f *stubFactory) CreateAggregatorNode(ownerID string) (node.AggregatorHandle, error) {
	return stubAggregator{stubHandle{uuid.NewString(), ownerID}}, nil
}

func (f *stubFactory) CreateServerNode(ownerID string, _ node.NetworkOptions) (node.Handle, error) {
	return stubHandle{uuid.NewString(), ownerID}, nil
}

func (f *stubFactory) AttachAggregator(node.Handle, node.AggregatorHandle) error { return nil }
func (f *stubFactory) StartServerNode(context.Context, node.Handle) error        { return nil }

func (f *stubFactory) StopServerNode(_ context.Context, h node.Handle, _ time.Duration) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, h.OwnerID())
	f.mu.Unlock()
	return nil
}

func (f *stubFactory) stops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.stopped))
	copy(out, f.stopped)
	return out
}

func (f *stubFactory) Advertise(h node.Handle) (node.PairingInfo, error) {
	return node.PairingInfo{NodeID: h.ID(), Passcode: "00000000", Port: 5540}, nil
}

func (f *stubFactory) StopAdvertise(node.Handle) error { return nil }
func (f *stubFactory) Events() <-chan node.Event       { return f.events }
func (f *stubFactory) Close() error                    { close(f.events); return nil }

// memRepo is an in-memory plugin.Repository.
type memRepo struct {
	mu      sync.Mutex
	plugins map[string]*plugin.Plugin
}

func newMemRepo() *memRepo { return &memRepo{plugins: make(map[string]*plugin.Plugin)} }

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

// idleHandler completes every lifecycle hook immediately.
type idleHandler struct{}

func (idleHandler) OnLoad(context.Context, plugin.Host) error { return nil }
func (idleHandler) OnStart(context.Context) error             { return nil }
func (idleHandler) OnConfigure(context.Context) error         { return nil }
func (idleHandler) OnShutdown(context.Context, string) error  { return nil }

func testConfig(mode string) *config.Config {
	cfg := &config.Config{}
	cfg.Hub.Name = "Test Hub"
	cfg.Bridge.Mode = mode
	cfg.Bridge.FailCountLimit = 50
	cfg.Bridge.PollIntervalMs = 5
	cfg.Bridge.SettleDelaySeconds = 0
	cfg.Bridge.AdvertiseWindowMinutes = 1
	return cfg
}

func openTestStore(t *testing.T) *storage.Store {
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
	return store
}

func newTestHub(t *testing.T, cfg *config.Config, store *storage.Store) *Hub {
	t.Helper()

	resolver := plugin.NewCatalogResolver()
	resolver.Register("hue", func(*plugin.Plugin) plugin.Handler { return idleHandler{} })

	adapter, err := plugin.NewAdapter(plugin.AdapterOptions{
		Resolver:        resolver,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	h, err := New(Options{
		Config:  cfg,
		Store:   store,
		Plugins: plugin.NewRegistry(newMemRepo()),
		Devices: device.NewRegistry(),
		Adapter: adapter,
		Factory: newStubFactory(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func TestInitialize_ConfigOverrideWinsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	h := newTestHub(t, testConfig("childbridge"), store)
	if err := h.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { h.Destroy(ctx, "test done", false) })

	if got := h.Mode(); got != bridge.ModeChildBridge {
		t.Errorf("Mode() = %q, want %q", got, bridge.ModeChildBridge)
	}

	hubCtx, err := store.Context("hub")
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	var persisted string
	if err := hubCtx.Get(ctx, "bridge_mode", &persisted); err != nil {
		t.Fatalf("Get(bridge_mode) error = %v", err)
	}
	if persisted != "childbridge" {
		t.Errorf("persisted mode = %q, want %q", persisted, "childbridge")
	}
}

func TestInitialize_UsesPersistedMode(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	hubCtx, err := store.Context("hub")
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if err := hubCtx.Set(ctx, "bridge_mode", "childbridge"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	h := newTestHub(t, testConfig(""), store)
	if err := h.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { h.Destroy(ctx, "test done", false) })

	if got := h.Mode(); got != bridge.ModeChildBridge {
		t.Errorf("Mode() = %q, want %q", got, bridge.ModeChildBridge)
	}
}

func TestInitialize_DefaultsToBridgeMode(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, testConfig(""), openTestStore(t))

	if err := h.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { h.Destroy(ctx, "test done", false) })

	if got := h.Mode(); got != bridge.ModeBridge {
		t.Errorf("Mode() = %q, want %q", got, bridge.ModeBridge)
	}
	if got := h.State(); got != bridge.StateRunning {
		t.Errorf("State() = %q, want %q", got, bridge.StateRunning)
	}
}

func TestInitialize_InvalidMode(t *testing.T) {
	h := newTestHub(t, testConfig("mesh"), openTestStore(t))
	if err := h.Initialize(context.Background()); !errors.Is(err, bridge.ErrInvalidMode) {
		t.Errorf("Initialize() error = %v, want ErrInvalidMode", err)
	}
}

func TestAddPlugin_ResolutionFailureDisables(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, testConfig(""), openTestStore(t))

	p := &plugin.Plugin{Name: "nonexistent", Enabled: true}
	err := h.AddPlugin(ctx, p)
	if !errors.Is(err, plugin.ErrResolution) {
		t.Fatalf("AddPlugin() error = %v, want ErrResolution", err)
	}

	got, err := h.Plugins().Get("nonexistent")
	if err != nil {
		t.Fatalf("plugin not registered after resolution failure: %v", err)
	}
	if got.Enabled {
		t.Error("unresolvable plugin must stay disabled")
	}
}

func TestAddRemovePlugin(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, testConfig(""), openTestStore(t))

	p := &plugin.Plugin{Name: "hue", Enabled: true}
	if err := h.AddPlugin(ctx, p); err != nil {
		t.Fatalf("AddPlugin() error = %v", err)
	}

	if err := h.DisablePlugin(ctx, "hue"); err != nil {
		t.Fatalf("DisablePlugin() error = %v", err)
	}
	got, _ := h.Plugins().Get("hue")
	if got.Enabled {
		t.Error("plugin still enabled")
	}
	if err := h.EnablePlugin(ctx, "hue"); err != nil {
		t.Fatalf("EnablePlugin() error = %v", err)
	}

	if err := h.RemovePlugin(ctx, "hue"); err != nil {
		t.Fatalf("RemovePlugin() error = %v", err)
	}
	if _, err := h.Plugins().Get("hue"); !errors.Is(err, plugin.ErrPluginNotFound) {
		t.Errorf("Get() after remove = %v, want ErrPluginNotFound", err)
	}
	if err := h.RemovePlugin(ctx, "hue"); !errors.Is(err, plugin.ErrPluginNotFound) {
		t.Errorf("second RemovePlugin() error = %v, want ErrPluginNotFound", err)
	}
}

func TestRemovePlugin_StopsChildBridgeNode(t *testing.T) {
	ctx := context.Background()

	resolver := plugin.NewCatalogResolver()
	resolver.Register("hue", func(*plugin.Plugin) plugin.Handler { return idleHandler{} })
	adapter, err := plugin.NewAdapter(plugin.AdapterOptions{
		Resolver:        resolver,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	factory := newStubFactory()
	h, err := New(Options{
		Config:  testConfig("childbridge"),
		Store:   openTestStore(t),
		Plugins: plugin.NewRegistry(newMemRepo()),
		Devices: device.NewRegistry(),
		Adapter: adapter,
		Factory: factory,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := h.AddPlugin(ctx, &plugin.Plugin{Name: "hue", Enabled: true}); err != nil {
		t.Fatalf("AddPlugin() error = %v", err)
	}
	if err := h.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { h.Destroy(ctx, "test done", false) })

	if err := h.RemovePlugin(ctx, "hue"); err != nil {
		t.Fatalf("RemovePlugin() error = %v", err)
	}
	if got := factory.stops(); len(got) != 1 || got[0] != "hue" {
		t.Errorf("stopped nodes after remove = %v, want [hue]", got)
	}

	// The removed plugin is gone from the registry; final cleanup must
	// not stop its node a second time.
	h.Destroy(ctx, "test done", false)
	if got := factory.stops(); len(got) != 1 {
		t.Errorf("stopped nodes after destroy = %v, want no duplicate stop", got)
	}
}

func TestSetBridgeMode(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	h := newTestHub(t, testConfig(""), store)

	if err := h.SetBridgeMode(ctx, bridge.ModeChildBridge); err == nil {
		t.Error("SetBridgeMode() before Initialize should fail")
	}

	if err := h.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { h.Destroy(ctx, "test done", false) })

	if err := h.SetBridgeMode(ctx, "mesh"); !errors.Is(err, bridge.ErrInvalidMode) {
		t.Errorf("SetBridgeMode(mesh) error = %v, want ErrInvalidMode", err)
	}
	if err := h.SetBridgeMode(ctx, bridge.ModeChildBridge); err != nil {
		t.Fatalf("SetBridgeMode() error = %v", err)
	}

	hubCtx, _ := store.Context("hub")
	var persisted string
	if err := hubCtx.Get(ctx, "bridge_mode", &persisted); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if persisted != "childbridge" {
		t.Errorf("persisted mode = %q, want childbridge", persisted)
	}
}

func TestDestroy_BeforeInitialize(t *testing.T) {
	h := newTestHub(t, testConfig(""), openTestStore(t))
	h.Destroy(context.Background(), "early exit", false)
}

func TestDestroy_Twice(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, testConfig(""), openTestStore(t))
	if err := h.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	h.Destroy(ctx, "first", false)
	h.Destroy(ctx, "second", false)
	if got := h.State(); got != bridge.StateStopped {
		t.Errorf("State() = %q, want %q", got, bridge.StateStopped)
	}
}

type fixedChecker struct{ latest string }

func (f fixedChecker) LatestVersion(context.Context, *plugin.Plugin) (string, error) {
	return f.latest, nil
}

func TestUpdateChecks(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	resolver := plugin.NewCatalogResolver()
	resolver.Register("hue", func(*plugin.Plugin) plugin.Handler { return idleHandler{} })
	adapter, err := plugin.NewAdapter(plugin.AdapterOptions{Resolver: resolver})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}

	h, err := New(Options{
		Config:  testConfig(""),
		Store:   store,
		Plugins: plugin.NewRegistry(newMemRepo()),
		Devices: device.NewRegistry(),
		Adapter: adapter,
		Factory: newStubFactory(),
		Updates: fixedChecker{latest: "2.0.0"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h.StartUpdateChecks(ctx, 5*time.Millisecond)
	// Second start is a no-op rather than a duplicate ticker.
	h.StartUpdateChecks(ctx, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	h.StopUpdateChecks()
	h.StopUpdateChecks()
}
