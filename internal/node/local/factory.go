package local

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/gray-logic-hub/internal/node"
)

// mDNS service parameters for commissionable node advertisement.
const (
	commissionableService = "_matterc._udp"
	mdnsDomain            = "local."

	// maxDiscriminator is the 12-bit discriminator ceiling.
	maxDiscriminator = 4096

	// passcodeDigits is the length of generated setup codes.
	passcodeDigits = 8

	// eventBuffer sizes the notification channel; slow consumers drop
	// rather than block node operations.
	eventBuffer = 64
)

// Logger defines the logging interface used by the Factory.
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

// Options configures the local factory.
type Options struct {
	// BasePort is where automatic port allocation starts.
	BasePort int

	// Interface restricts mDNS advertisement to one interface.
	Interface string

	// MDNS enables mDNS advertisement. Disable for tests and headless
	// environments without multicast.
	MDNS bool

	// Logger is an optional structured logger.
	Logger Logger
}

// Factory is the built-in in-process node.Factory implementation.
//
// It manages node and aggregator lifecycle and announces commissionable
// nodes over mDNS via zeroconf. It carries no wire-protocol sessions of its
// own, so its event stream only carries what an attached protocol backend
// feeds it; a full stack replaces this type behind the node.Factory
// interface.
//
// All public methods are thread-safe.
type Factory struct {
	opts   Options
	logger Logger

	mu         sync.Mutex
	nodes      map[string]*serverNode
	portsInUse map[int]bool
	owners     map[string]bool
	nextPort   int
	closed     bool

	events chan node.Event
}

// NewFactory creates a local node factory.
func NewFactory(opts Options) *Factory {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Factory{
		opts:       opts,
		logger:     logger,
		nodes:      make(map[string]*serverNode),
		portsInUse: make(map[int]bool),
		owners:     make(map[string]bool),
		nextPort:   opts.BasePort,
		events:     make(chan node.Event, eventBuffer),
	}
}

// serverNode is the local Handle implementation.
type serverNode struct {
	id    string
	owner string
	name  string
	port  int

	mu          sync.Mutex
	started     bool
	advertising bool
	mdns        *zeroconf.Server
}

func (n *serverNode) ID() string      { return n.id }
func (n *serverNode) OwnerID() string { return n.owner }

// aggregator is the local AggregatorHandle implementation.
type aggregator struct {
	id    string
	owner string

	mu       sync.Mutex
	children []string
	parent   string
}

func (a *aggregator) ID() string      { return a.id }
func (a *aggregator) OwnerID() string { return a.owner }

func (a *aggregator) AddChild(endpointID, name string) error {
	if endpointID == "" {
		return fmt.Errorf("endpoint id cannot be empty")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.children {
		if c == endpointID {
			return nil // already attached
		}
	}
	a.children = append(a.children, endpointID)
	return nil
}

func (a *aggregator) Children() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.children))
	copy(out, a.children)
	return out
}

// CreateAggregatorNode creates an aggregator container for ownerID.
func (f *Factory) CreateAggregatorNode(ownerID string) (node.AggregatorHandle, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id cannot be empty", node.ErrNodeCreation)
	}
	agg := &aggregator{
		id:    uuid.NewString(),
		owner: ownerID,
	}
	f.logger.Debug("aggregator created", "id", agg.id, "owner", ownerID)
	return agg, nil
}

// CreateServerNode creates a protocol server node for ownerID.
// Fails with node.ErrNodeCreation on port or identity conflicts.
func (f *Factory) CreateServerNode(ownerID string, opts node.NetworkOptions) (node.Handle, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id cannot be empty", node.ErrNodeCreation)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, fmt.Errorf("%w: factory closed", node.ErrNodeCreation)
	}
	if f.owners[ownerID] {
		return nil, fmt.Errorf("%w: owner %q already has a node", node.ErrNodeCreation, ownerID)
	}

	port := opts.Port
	if port == 0 {
		port = f.allocatePortLocked()
	} else if f.portsInUse[port] {
		return nil, fmt.Errorf("%w: port %d already in use", node.ErrNodeCreation, port)
	}

	name := opts.NodeName
	if name == "" {
		name = ownerID
	}

	n := &serverNode{
		id:    uuid.NewString(),
		owner: ownerID,
		name:  name,
		port:  port,
	}
	f.nodes[n.id] = n
	f.portsInUse[port] = true
	f.owners[ownerID] = true

	f.logger.Debug("server node created", "id", n.id, "owner", ownerID, "port", port)
	return n, nil
}

// allocatePortLocked returns the next free port at or above BasePort.
// Caller holds f.mu.
func (f *Factory) allocatePortLocked() int {
	for f.portsInUse[f.nextPort] {
		f.nextPort++
	}
	port := f.nextPort
	f.nextPort++
	return port
}

// AttachAggregator attaches an aggregator as a child of a server node.
func (f *Factory) AttachAggregator(h node.Handle, agg node.AggregatorHandle) error {
	n, err := f.lookup(h)
	if err != nil {
		return err
	}
	la, ok := agg.(*aggregator)
	if !ok {
		return fmt.Errorf("foreign aggregator handle %q", agg.ID())
	}

	la.mu.Lock()
	la.parent = n.id
	la.mu.Unlock()

	f.logger.Debug("aggregator attached", "node", n.id, "aggregator", la.id)
	return nil
}

// StartServerNode brings the node online.
func (f *Factory) StartServerNode(_ context.Context, h node.Handle) error {
	n, err := f.lookup(h)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return node.ErrAlreadyStarted
	}
	n.started = true

	f.logger.Info("server node started", "id", n.id, "owner", n.owner, "port", n.port)
	return nil
}

// StopServerNode takes the node offline and releases its port and owner
// slot. Advertisement is stopped first.
func (f *Factory) StopServerNode(_ context.Context, h node.Handle, _ time.Duration) error {
	n, err := f.lookup(h)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.stopAdvertiseLocked()
	n.started = false
	n.mu.Unlock()

	f.mu.Lock()
	delete(f.nodes, n.id)
	delete(f.portsInUse, n.port)
	delete(f.owners, n.owner)
	f.mu.Unlock()

	f.logger.Info("server node stopped", "id", n.id, "owner", n.owner)
	return nil
}

// Advertise opens a commissioning window: the node is announced as a
// commissionable service over mDNS and the generated pairing information
// is returned. Re-advertising an already advertising node refreshes the
// announcement.
func (f *Factory) Advertise(h node.Handle) (node.PairingInfo, error) {
	n, err := f.lookup(h)
	if err != nil {
		return node.PairingInfo{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return node.PairingInfo{}, node.ErrNotStarted
	}

	// Idempotent restart: tear down any live announcement first.
	n.stopAdvertiseLocked()

	discriminator := randomInt(maxDiscriminator)
	passcode := randomPasscode()

	if f.opts.MDNS {
		txt := []string{
			fmt.Sprintf("D=%d", discriminator),
			"CM=1",
			fmt.Sprintf("DN=%s", n.name),
		}
		ifaces, err := f.interfaces()
		if err != nil {
			return node.PairingInfo{}, fmt.Errorf("resolving interfaces: %w", err)
		}
		server, err := zeroconf.Register(n.name, commissionableService, mdnsDomain, n.port, txt, ifaces)
		if err != nil {
			return node.PairingInfo{}, fmt.Errorf("registering mDNS service: %w", err)
		}
		n.mdns = server
	}
	n.advertising = true

	f.logger.Info("commissioning advertisement opened",
		"node", n.id,
		"owner", n.owner,
		"discriminator", discriminator,
	)

	return node.PairingInfo{
		NodeID:        n.id,
		Passcode:      passcode,
		Discriminator: discriminator,
		Port:          n.port,
	}, nil
}

// StopAdvertise closes the node's commissioning window.
func (f *Factory) StopAdvertise(h node.Handle) error {
	n, err := f.lookup(h)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.advertising {
		n.stopAdvertiseLocked()
		f.logger.Info("commissioning advertisement closed", "node", n.id, "owner", n.owner)
	}
	return nil
}

// stopAdvertiseLocked tears down any live mDNS announcement.
// Caller holds n.mu.
func (n *serverNode) stopAdvertiseLocked() {
	if n.mdns != nil {
		n.mdns.Shutdown()
		n.mdns = nil
	}
	n.advertising = false
}

// Events returns the factory's notification stream.
func (f *Factory) Events() <-chan node.Event {
	return f.events
}

// Emit feeds an event into the notification stream. This is the hook an
// attached protocol backend uses to report fabric and session changes.
// Events are dropped when the consumer falls behind.
func (f *Factory) Emit(ev node.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case f.events <- ev:
	default:
		f.logger.Warn("event dropped, consumer too slow", "kind", ev.Kind, "node", ev.NodeID)
	}
}

// Close stops every node best-effort and closes the event stream.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	for _, n := range f.nodes {
		n.mu.Lock()
		n.stopAdvertiseLocked()
		n.started = false
		n.mu.Unlock()
	}

	close(f.events)
	return nil
}

// lookup resolves a Handle back to the factory's own node record.
func (f *Factory) lookup(h node.Handle) (*serverNode, error) {
	if h == nil {
		return nil, node.ErrNodeNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[h.ID()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", node.ErrNodeNotFound, h.ID())
	}
	return n, nil
}

// interfaces resolves the configured interface restriction.
func (f *Factory) interfaces() ([]net.Interface, error) {
	if f.opts.Interface == "" {
		return nil, nil // all interfaces
	}
	iface, err := net.InterfaceByName(f.opts.Interface)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", f.opts.Interface, err)
	}
	return []net.Interface{*iface}, nil
}

// randomInt returns a uniform random int in [0, max).
func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand failure means the platform is broken; fall back to
		// a fixed value rather than crash commissioning.
		return 0
	}
	return int(n.Int64())
}

// randomPasscode generates an 8-digit setup code.
func randomPasscode() string {
	code := ""
	for i := 0; i < passcodeDigits; i++ {
		code += fmt.Sprintf("%d", randomInt(10))
	}
	return code
}
