package mqtt

import (
	"encoding/json"

	"github.com/nerrad567/gray-logic-hub/internal/node"
)

// NodeEventSink publishes node fabric/session events to the broker.
// It satisfies the orchestrator's EventSink interface; publish failures
// are logged and dropped rather than propagated.
type NodeEventSink struct {
	client *Client
	topics Topics
	qos    byte
}

// NewNodeEventSink creates a sink publishing through client.
func NewNodeEventSink(client *Client, qos byte) *NodeEventSink {
	return &NodeEventSink{client: client, qos: qos}
}

// Publish implements the event sink contract.
func (s *NodeEventSink) Publish(ev node.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.client.Publish(s.topics.NodeEvent(ev.NodeID), payload, s.qos, false); err != nil {
		if logger := s.client.getLogger(); logger != nil {
			logger.Warn("node event publish failed", "node", ev.NodeID, "error", err)
		}
	}
}
