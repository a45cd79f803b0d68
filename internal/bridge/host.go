package bridge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
)

// pluginHost is the per-plugin surface handed to plugin code. It routes
// device registrations into the registry and live topology and exposes
// the plugin's private storage context.
type pluginHost struct {
	orch    *Orchestrator
	plugin  *plugin.Plugin
	storage *storage.Context
}

// RegisterDevice implements plugin.Host. During startup the device is
// only recorded; the orchestrator attaches it once the topology is up.
// Dynamic plugins registering after startup get attached immediately.
func (h *pluginHost) RegisterDevice(name string, mode device.Mode) (string, error) {
	d := &device.Device{
		UniqueID:   uuid.NewString(),
		Name:       name,
		PluginName: h.plugin.Name,
		Mode:       mode,
	}

	if err := h.orch.devices.Add(d); err != nil {
		return "", err
	}

	if h.orch.State() == StateRunning {
		if err := h.orch.attachDevice(d, h.plugin); err != nil {
			h.orch.logger.Error("late device attach failed",
				"device", d.UniqueID,
				"plugin", h.plugin.Name,
				"error", err,
			)
			return d.UniqueID, err
		}
	}

	h.orch.logger.Info("device registered",
		"device", d.UniqueID,
		"name", name,
		"plugin", h.plugin.Name,
		"mode", mode,
	)
	return d.UniqueID, nil
}

// Storage implements plugin.Host.
func (h *pluginHost) Storage() *storage.Context {
	return h.storage
}

// attachDevice wires a device into the live topology: bridged devices
// become aggregator children, server-mode devices get their own node.
func (o *Orchestrator) attachDevice(d *device.Device, p *plugin.Plugin) error {
	switch d.Mode {
	case device.ModeBridged:
		return o.attachBridged(d, p)
	case device.ModeServer:
		return o.attachServer(d)
	default:
		return fmt.Errorf("%w: unknown mode %q", device.ErrInvalidDevice, d.Mode)
	}
}

func (o *Orchestrator) attachBridged(d *device.Device, p *plugin.Plugin) error {
	var (
		agg     = p.Aggregator()
		carrier = p.Node()
	)
	if o.mode == ModeBridge {
		o.nodesMu.Lock()
		agg = o.aggregator
		carrier = o.sharedNode
		o.nodesMu.Unlock()
	}
	if carrier == nil {
		return fmt.Errorf("no carrier node for device %q", d.UniqueID)
	}

	// Accessory plugins in childbridge mode have no aggregator; their
	// devices sit directly on the plugin node.
	if agg != nil {
		if err := agg.AddChild(d.UniqueID, d.Name); err != nil {
			return fmt.Errorf("attaching device %q: %w", d.UniqueID, err)
		}
	}
	return o.devices.SetNode(d.UniqueID, carrier)
}

// attachServer gives a server-mode device its own started node.
func (o *Orchestrator) attachServer(d *device.Device) error {
	h, err := o.factory.CreateServerNode("device:"+d.UniqueID, o.deviceNetwork(d))
	if err != nil {
		return err
	}
	if err := o.factory.StartServerNode(context.Background(), h); err != nil {
		return err
	}

	o.nodesMu.Lock()
	o.deviceNodes[d.UniqueID] = h
	o.nodesMu.Unlock()

	return o.devices.SetNode(d.UniqueID, h)
}

func (o *Orchestrator) deviceNetwork(d *device.Device) node.NetworkOptions {
	return node.NetworkOptions{
		Interface: o.network.Interface,
		NodeName:  d.Name,
	}
}
