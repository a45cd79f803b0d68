package bridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/node"
)

// startBridge builds the shared-node topology: one aggregator and one
// protocol node scoped to the orchestrator, devices from every plugin
// attached underneath. A node create or start failure here is fatal for
// the run; no shared node exists to serve anyone.
func (o *Orchestrator) startBridge(ctx context.Context) error {
	o.setState(StateCreatingNode)

	agg, err := o.factory.CreateAggregatorNode(hubOwnerID)
	if err != nil {
		return fmt.Errorf("creating aggregator: %w", err)
	}

	network := o.network
	network.NodeName = o.nodeName
	sharedNode, err := o.factory.CreateServerNode(hubOwnerID, network)
	if err != nil {
		return fmt.Errorf("creating shared node: %w", err)
	}
	if err := o.factory.AttachAggregator(sharedNode, agg); err != nil {
		return fmt.Errorf("attaching aggregator: %w", err)
	}

	o.nodesMu.Lock()
	o.aggregator = agg
	o.sharedNode = sharedNode
	o.nodesMu.Unlock()

	o.setState(StateStartingNode)
	if err := o.factory.StartServerNode(ctx, sharedNode); err != nil {
		return fmt.Errorf("%w: starting shared node: %v", node.ErrNodeStart, err)
	}

	o.attachStartupDevices()

	o.logger.Info("bridge topology up",
		"node", sharedNode.ID(),
		"devices", o.devices.Count(),
	)
	return nil
}

// attachStartupDevices wires every device registered during plugin
// startup into the now-live topology. An attach failure is isolated to
// that device.
func (o *Orchestrator) attachStartupDevices() {
	for _, d := range o.devices.List() {
		if d.Node != nil {
			continue
		}
		p, err := o.plugins.Get(d.PluginName)
		if err != nil {
			o.logger.Warn("device with unknown plugin", "device", d.UniqueID, "plugin", d.PluginName)
			continue
		}
		if err := o.attachDevice(d, p); err != nil {
			o.logger.Error("device attach failed",
				"device", d.UniqueID,
				"plugin", d.PluginName,
				"error", err,
			)
		}
	}
}
