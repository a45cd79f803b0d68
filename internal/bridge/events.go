package bridge

import (
	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
)

// consumeEvents drains the factory's notification stream until it
// closes. Each event maps to a flag update and a log line, nothing more;
// handlers never retry or escalate.
func (o *Orchestrator) consumeEvents() {
	defer close(o.eventsDone)

	for ev := range o.factory.Events() {
		o.applyEvent(ev)
		for _, sink := range o.sinks {
			sink.Publish(ev)
		}
	}
}

func (o *Orchestrator) applyEvent(ev node.Event) {
	p := o.pluginForNode(ev.NodeID)

	switch ev.Kind {
	case node.EventCommissioned:
		if p != nil {
			p.SetPaired(true)
		}
		o.logger.Info("node commissioned", "node", ev.NodeID, "fabric", ev.FabricIndex)
	case node.EventDecommissioned:
		if p != nil {
			p.SetPaired(false)
			p.SetConnected(false)
		}
		o.logger.Info("node decommissioned", "node", ev.NodeID, "fabric", ev.FabricIndex)
	case node.EventFabricAdded, node.EventFabricRemoved, node.EventFabricUpdated:
		o.logger.Info("fabric changed", "node", ev.NodeID, "fabric", ev.FabricIndex, "action", ev.Kind)
	case node.EventSessionOpened:
		if p != nil {
			p.SetConnected(true)
		}
		o.logger.Info("session opened", "node", ev.NodeID, "session", ev.SessionID)
	case node.EventSessionClosed:
		if p != nil {
			p.SetConnected(false)
		}
		o.logger.Info("session closed", "node", ev.NodeID, "session", ev.SessionID)
	case node.EventSubscriptionsChanged:
		o.logger.Debug("subscriptions changed", "node", ev.NodeID)
	default:
		o.logger.Debug("unhandled node event", "node", ev.NodeID, "kind", ev.Kind)
	}
}

// pluginForNode maps a node id back to the plugin owning it, or nil.
// Paired and connected flags only apply to plugin-owned nodes in
// childbridge mode.
func (o *Orchestrator) pluginForNode(nodeID string) *plugin.Plugin {
	for _, p := range o.plugins.List() {
		if h := p.Node(); h != nil && h.ID() == nodeID {
			return p
		}
	}
	return nil
}
