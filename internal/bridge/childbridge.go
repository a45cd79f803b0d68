package bridge

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
)

// startChildBridges builds the per-plugin topology: each healthy plugin
// gets its own protocol node, dynamic plugins additionally an aggregator
// sub-node. Nodes start in parallel; a failure is isolated to its plugin
// and never blocks siblings or fails the run.
func (o *Orchestrator) startChildBridges(ctx context.Context) error {
	o.setState(StateCreatingNode)

	plugins := o.healthyPlugins()
	o.setState(StateStartingNode)

	var g errgroup.Group
	for _, p := range plugins {
		p := p
		g.Go(func() error {
			o.startChildBridge(ctx, p)
			return nil // failures are recorded on the plugin, never returned
		})
	}
	_ = g.Wait()

	o.logger.Info("childbridge topology up",
		"plugins", len(plugins),
		"devices", o.devices.Count(),
	)
	return nil
}

// startChildBridge brings up one plugin's node and attaches its devices.
// Any failure marks the plugin errored.
func (o *Orchestrator) startChildBridge(ctx context.Context, p *plugin.Plugin) {
	network := o.network
	network.Port = 0 // per-plugin nodes always auto-allocate
	network.NodeName = p.Name

	h, err := o.factory.CreateServerNode(p.Name, network)
	if err != nil {
		p.MarkErrored()
		o.logger.Error("plugin node creation failed", "plugin", p.Name, "error", err)
		return
	}
	p.SetNode(h)

	if p.Type == plugin.TypeDynamic {
		agg, err := o.factory.CreateAggregatorNode(p.Name)
		if err != nil {
			p.MarkErrored()
			o.logger.Error("plugin aggregator creation failed", "plugin", p.Name, "error", err)
			return
		}
		if err := o.factory.AttachAggregator(h, agg); err != nil {
			p.MarkErrored()
			o.logger.Error("plugin aggregator attach failed", "plugin", p.Name, "error", err)
			return
		}
		p.SetAggregator(agg)
	}

	if err := o.factory.StartServerNode(ctx, h); err != nil {
		p.MarkErrored()
		o.logger.Error("plugin node start failed",
			"plugin", p.Name,
			"error", node.ErrNodeStart,
			"cause", err,
		)
		return
	}

	o.attachPluginDevices(p)

	o.logger.Info("plugin node started", "plugin", p.Name, "node", h.ID())
}

// attachPluginDevices wires the plugin's startup-registered devices into
// its node. Attach failures are isolated per device.
func (o *Orchestrator) attachPluginDevices(p *plugin.Plugin) {
	for _, d := range o.devices.ListByPlugin(p.Name) {
		if d.Node != nil {
			continue
		}
		if err := o.attachDevice(d, p); err != nil {
			o.logger.Error("device attach failed",
				"device", d.UniqueID,
				"plugin", p.Name,
				"error", err,
			)
		}
	}
}
