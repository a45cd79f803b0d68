package influxdb

import "github.com/nerrad567/gray-logic-hub/internal/node"

// NodeEventSink records node fabric/session events as time-series points.
// It satisfies the orchestrator's EventSink interface. Writes are batched
// and never block the event loop.
type NodeEventSink struct {
	client *Client
}

// NewNodeEventSink creates a sink writing through client.
func NewNodeEventSink(client *Client) *NodeEventSink {
	return &NodeEventSink{client: client}
}

// Publish implements the event sink contract.
func (s *NodeEventSink) Publish(ev node.Event) {
	s.client.WriteNodeEvent(ev)
}
