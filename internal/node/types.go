package node

import (
	"context"
	"time"
)

// Handle identifies a protocol server node created by a Factory.
//
// Handles are opaque to the orchestrator: it holds them only to start,
// stop and advertise the node they name.
type Handle interface {
	// ID returns the node's unique identifier.
	ID() string

	// OwnerID returns the identifier of the component the node was
	// created for (the orchestrator itself in bridge mode, a plugin name
	// or device id otherwise).
	OwnerID() string
}

// AggregatorHandle is a protocol-level container grouping child devices
// under one parent node.
type AggregatorHandle interface {
	// ID returns the aggregator's unique identifier.
	ID() string

	// OwnerID returns the identifier of the component the aggregator was
	// created for.
	OwnerID() string

	// AddChild attaches a bridged device endpoint under the aggregator.
	AddChild(endpointID, name string) error

	// Children returns the endpoint ids currently attached, in
	// attachment order.
	Children() []string
}

// NetworkOptions configures a server node's network presence.
type NetworkOptions struct {
	// Port is the UDP port the node listens on. Zero lets the factory
	// allocate one.
	Port int

	// Interface restricts advertisement to one network interface.
	// Empty means all interfaces.
	Interface string

	// NodeName is the human-readable instance name used in advertisement.
	NodeName string
}

// PairingInfo describes an open commissioning window.
type PairingInfo struct {
	// NodeID is the advertised node.
	NodeID string `json:"node_id"`

	// Passcode is the setup code a commissioner must present.
	Passcode string `json:"passcode"`

	// Discriminator distinguishes this node among concurrently
	// advertising nodes on the same network.
	Discriminator int `json:"discriminator"`

	// Port is the node's UDP port.
	Port int `json:"port"`

	// ExpiresAt is when the commissioning window closes.
	ExpiresAt time.Time `json:"expires_at"`
}

// EventKind enumerates the notifications a Factory emits.
type EventKind string

const (
	EventCommissioned         EventKind = "commissioned"
	EventDecommissioned       EventKind = "decommissioned"
	EventFabricAdded          EventKind = "fabric_added"
	EventFabricRemoved        EventKind = "fabric_removed"
	EventFabricUpdated        EventKind = "fabric_updated"
	EventSessionOpened        EventKind = "session_opened"
	EventSessionClosed        EventKind = "session_closed"
	EventSubscriptionsChanged EventKind = "subscriptions_changed"
)

// Event is a notification from the protocol stack about one node.
type Event struct {
	Kind        EventKind
	NodeID      string
	FabricIndex int
	SessionID   string
	Time        time.Time
}

// Factory creates and controls protocol nodes.
//
// This is the boundary to the underlying smart-home wire protocol: session
// establishment, commissioning cryptography and attribute encoding all live
// behind it. The hub ships with the in-process implementation in node/local;
// a full protocol stack can replace it behind the same interface.
type Factory interface {
	// CreateAggregatorNode creates an aggregator container for ownerID.
	CreateAggregatorNode(ownerID string) (AggregatorHandle, error)

	// CreateServerNode creates a protocol server node for ownerID.
	// Fails with ErrNodeCreation on port or identity conflicts.
	CreateServerNode(ownerID string, opts NetworkOptions) (Handle, error)

	// AttachAggregator attaches an aggregator as a child of a server node.
	AttachAggregator(h Handle, agg AggregatorHandle) error

	// StartServerNode brings the node online.
	StartServerNode(ctx context.Context, h Handle) error

	// StopServerNode takes the node offline, waiting at most timeout.
	StopServerNode(ctx context.Context, h Handle, timeout time.Duration) error

	// Advertise opens a commissioning window for the node and returns the
	// pairing information a commissioner needs.
	Advertise(h Handle) (PairingInfo, error)

	// StopAdvertise closes the node's commissioning window.
	// Stopping a node that is not advertising is a no-op.
	StopAdvertise(h Handle) error

	// Events returns the factory's notification stream. The channel is
	// closed by Close.
	Events() <-chan Event

	// Close releases all factory resources. Nodes still running are
	// stopped best-effort.
	Close() error
}
