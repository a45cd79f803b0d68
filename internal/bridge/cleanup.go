package bridge

import (
	"context"

	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
)

// Cleanup tears the orchestrator down: timers cleared, every plugin shut
// down with a bounded per-call timeout, nodes stopped, storage flushed.
// No step's failure stops the others; nothing is re-thrown outward.
//
// Cleanup is idempotent and re-entrant safe: the first caller performs
// the teardown, any concurrent or later caller waits for that teardown
// to finish and returns without duplicating it.
func (o *Orchestrator) Cleanup(ctx context.Context, reason string, restart bool) {
	if !o.cleanupStarted.CompareAndSwap(false, true) {
		<-o.cleanupDone
		return
	}
	defer close(o.cleanupDone)

	o.setState(StateShuttingDown)
	o.logger.Info("cleanup starting", "reason", reason, "restart", restart)

	o.clearTimers()
	o.shutdownPlugins(ctx, reason)
	o.stopNodes(ctx)

	if err := o.store.Flush(ctx); err != nil {
		o.logger.Warn("storage flush failed", "error", err)
	}

	o.setState(StateStopped)
	o.logger.Info("cleanup complete", "reason", reason)

	if o.onExit != nil {
		o.onExit(restart)
	}
}

// DetachPlugin releases one plugin's live topology: its open
// commissioning window, its server-mode device nodes and its own
// protocol node. The caller removes the registry records afterwards;
// detaching here first keeps the node from outliving its plugin.
// Safe to call for plugins that never owned a node, and calling it
// twice is a no-op.
func (o *Orchestrator) DetachPlugin(ctx context.Context, p *plugin.Plugin) {
	if h := p.Node(); h != nil {
		if err := o.StopAdvertiseNode(h); err != nil {
			o.logger.Warn("closing commissioning window failed", "node", h.ID(), "error", err)
		}
	}

	for _, d := range o.devices.ListByPlugin(p.Name) {
		o.nodesMu.Lock()
		h, ok := o.deviceNodes[d.UniqueID]
		if ok {
			delete(o.deviceNodes, d.UniqueID)
		}
		o.nodesMu.Unlock()
		if !ok {
			continue
		}
		if err := o.factory.StopServerNode(ctx, h, DefaultNodeStopTimeout); err != nil {
			o.logger.Warn("device node stop failed", "device", d.UniqueID, "error", err)
		}
	}

	if h := p.Node(); h != nil {
		if err := o.factory.StopServerNode(ctx, h, DefaultNodeStopTimeout); err != nil {
			o.logger.Warn("plugin node stop failed", "plugin", p.Name, "error", err)
		}
		o.logger.Info("plugin node stopped", "plugin", p.Name, "node", h.ID())
	}
	p.SetNode(nil)
	p.SetAggregator(nil)

	o.hostsMu.Lock()
	delete(o.hosts, p.Name)
	o.hostsMu.Unlock()
}

// shutdownPlugins calls every plugin's shutdown hook. Each call is
// bounded by the adapter's timeout and a failure is isolated to its
// plugin.
func (o *Orchestrator) shutdownPlugins(ctx context.Context, reason string) {
	for _, p := range o.plugins.List() {
		o.adapter.Shutdown(ctx, p, reason)
	}
}

// stopNodes stops per-device nodes, per-plugin nodes and the shared
// node, logging failures without aborting.
func (o *Orchestrator) stopNodes(ctx context.Context) {
	o.nodesMu.Lock()
	deviceNodes := o.deviceNodes
	sharedNode := o.sharedNode
	o.deviceNodes = make(map[string]node.Handle)
	o.sharedNode = nil
	o.aggregator = nil
	o.nodesMu.Unlock()

	for id, h := range deviceNodes {
		if err := o.factory.StopServerNode(ctx, h, DefaultNodeStopTimeout); err != nil {
			o.logger.Warn("device node stop failed", "device", id, "error", err)
		}
	}

	for _, p := range o.plugins.List() {
		h := p.Node()
		if h == nil {
			continue
		}
		if err := o.factory.StopServerNode(ctx, h, DefaultNodeStopTimeout); err != nil {
			o.logger.Warn("plugin node stop failed", "plugin", p.Name, "error", err)
		}
		p.SetNode(nil)
		p.SetAggregator(nil)
	}

	if sharedNode != nil {
		if err := o.factory.StopServerNode(ctx, sharedNode, DefaultNodeStopTimeout); err != nil {
			o.logger.Warn("shared node stop failed", "error", err)
		}
	}
}
