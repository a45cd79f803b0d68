package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/node"
)

func newTestFactory() *Factory {
	return NewFactory(Options{
		BasePort: 15540,
		MDNS:     false,
	})
}

func TestCreateServerNode(t *testing.T) {
	f := newTestFactory()
	defer f.Close()

	h, err := f.CreateServerNode("plugin-a", node.NetworkOptions{})
	if err != nil {
		t.Fatalf("CreateServerNode() error = %v", err)
	}
	if h.ID() == "" {
		t.Error("handle has empty ID")
	}
	if h.OwnerID() != "plugin-a" {
		t.Errorf("OwnerID() = %q, want %q", h.OwnerID(), "plugin-a")
	}
}

func TestCreateServerNode_EmptyOwner(t *testing.T) {
	f := newTestFactory()
	defer f.Close()

	_, err := f.CreateServerNode("", node.NetworkOptions{})
	if !errors.Is(err, node.ErrNodeCreation) {
		t.Errorf("error = %v, want ErrNodeCreation", err)
	}
}

func TestCreateServerNode_DuplicateOwner(t *testing.T) {
	f := newTestFactory()
	defer f.Close()

	if _, err := f.CreateServerNode("plugin-a", node.NetworkOptions{}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.CreateServerNode("plugin-a", node.NetworkOptions{})
	if !errors.Is(err, node.ErrNodeCreation) {
		t.Errorf("duplicate owner error = %v, want ErrNodeCreation", err)
	}
}

func TestCreateServerNode_PortConflict(t *testing.T) {
	f := newTestFactory()
	defer f.Close()

	if _, err := f.CreateServerNode("plugin-a", node.NetworkOptions{Port: 16000}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := f.CreateServerNode("plugin-b", node.NetworkOptions{Port: 16000})
	if !errors.Is(err, node.ErrNodeCreation) {
		t.Errorf("port conflict error = %v, want ErrNodeCreation", err)
	}
}

func TestCreateServerNode_PortAllocation(t *testing.T) {
	f := newTestFactory()
	defer f.Close()

	a, err := f.CreateServerNode("plugin-a", node.NetworkOptions{})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := f.CreateServerNode("plugin-b", node.NetworkOptions{})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	na, nb := a.(*serverNode), b.(*serverNode)
	if na.port == nb.port {
		t.Errorf("allocated the same port %d twice", na.port)
	}
}

func TestStartStopServerNode(t *testing.T) {
	f := newTestFactory()
	defer f.Close()
	ctx := context.Background()

	h, err := f.CreateServerNode("plugin-a", node.NetworkOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.StartServerNode(ctx, h); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.StartServerNode(ctx, h); !errors.Is(err, node.ErrAlreadyStarted) {
		t.Errorf("second start error = %v, want ErrAlreadyStarted", err)
	}
	if err := f.StopServerNode(ctx, h, time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := f.StopServerNode(ctx, h, time.Second); !errors.Is(err, node.ErrNodeNotFound) {
		t.Errorf("second stop error = %v, want ErrNodeNotFound", err)
	}
}

func TestStopServerNode_ReleasesOwnerAndPort(t *testing.T) {
	f := newTestFactory()
	defer f.Close()
	ctx := context.Background()

	h, err := f.CreateServerNode("plugin-a", node.NetworkOptions{Port: 16100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.StopServerNode(ctx, h, time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := f.CreateServerNode("plugin-a", node.NetworkOptions{Port: 16100}); err != nil {
		t.Errorf("recreate after stop: %v", err)
	}
}

func TestAdvertise(t *testing.T) {
	f := newTestFactory()
	defer f.Close()
	ctx := context.Background()

	h, err := f.CreateServerNode("plugin-a", node.NetworkOptions{Port: 16200})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.Advertise(h); !errors.Is(err, node.ErrNotStarted) {
		t.Errorf("advertise before start error = %v, want ErrNotStarted", err)
	}

	if err := f.StartServerNode(ctx, h); err != nil {
		t.Fatalf("start: %v", err)
	}

	info, err := f.Advertise(h)
	if err != nil {
		t.Fatalf("Advertise() error = %v", err)
	}
	if info.NodeID != h.ID() {
		t.Errorf("NodeID = %q, want %q", info.NodeID, h.ID())
	}
	if len(info.Passcode) != passcodeDigits {
		t.Errorf("passcode length = %d, want %d", len(info.Passcode), passcodeDigits)
	}
	if info.Discriminator < 0 || info.Discriminator >= maxDiscriminator {
		t.Errorf("discriminator %d out of range", info.Discriminator)
	}
	if info.Port != 16200 {
		t.Errorf("port = %d, want 16200", info.Port)
	}

	// Re-advertising is an idempotent refresh.
	if _, err := f.Advertise(h); err != nil {
		t.Errorf("re-advertise: %v", err)
	}

	if err := f.StopAdvertise(h); err != nil {
		t.Errorf("StopAdvertise() error = %v", err)
	}
	// Stopping an already closed window is a no-op.
	if err := f.StopAdvertise(h); err != nil {
		t.Errorf("second StopAdvertise() error = %v", err)
	}
}

func TestAggregator(t *testing.T) {
	f := newTestFactory()
	defer f.Close()
	ctx := context.Background()

	agg, err := f.CreateAggregatorNode("plugin-a")
	if err != nil {
		t.Fatalf("CreateAggregatorNode() error = %v", err)
	}
	if agg.OwnerID() != "plugin-a" {
		t.Errorf("OwnerID() = %q, want %q", agg.OwnerID(), "plugin-a")
	}

	h, err := f.CreateServerNode("plugin-a", node.NetworkOptions{})
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	if err := f.AttachAggregator(h, agg); err != nil {
		t.Fatalf("AttachAggregator() error = %v", err)
	}
	if err := f.StartServerNode(ctx, h); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := agg.AddChild("dev-1", "Lamp"); err != nil {
		t.Fatalf("AddChild() error = %v", err)
	}
	if err := agg.AddChild("dev-1", "Lamp"); err != nil {
		t.Fatalf("duplicate AddChild() error = %v", err)
	}
	if err := agg.AddChild("dev-2", "Blind"); err != nil {
		t.Fatalf("AddChild() error = %v", err)
	}
	if got := agg.Children(); len(got) != 2 {
		t.Errorf("Children() = %v, want 2 entries", got)
	}
	if err := agg.AddChild("", "x"); err == nil {
		t.Error("AddChild with empty id should fail")
	}
}

func TestEmitEvents(t *testing.T) {
	f := newTestFactory()
	defer f.Close()

	ev := node.Event{Kind: node.EventCommissioned, NodeID: "n1", FabricIndex: 1}
	f.Emit(ev)

	select {
	case got := <-f.Events():
		if got.Kind != node.EventCommissioned || got.NodeID != "n1" {
			t.Errorf("got event %+v", got)
		}
		if got.Time.IsZero() {
			t.Error("event time not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestClose(t *testing.T) {
	f := newTestFactory()
	ctx := context.Background()

	h, err := f.CreateServerNode("plugin-a", node.NetworkOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.StartServerNode(ctx, h); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, ok := <-f.Events(); ok {
		t.Error("events channel not closed")
	}

	if _, err := f.CreateServerNode("plugin-b", node.NetworkOptions{}); !errors.Is(err, node.ErrNodeCreation) {
		t.Errorf("create after close error = %v, want ErrNodeCreation", err)
	}
}
