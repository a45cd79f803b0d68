package device

import (
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/node"
)

// Mode describes how a device is exposed on the fabric.
type Mode string

const (
	// ModeBridged devices live as endpoints behind a shared bridge node.
	ModeBridged Mode = "bridged"

	// ModeServer devices own a standalone node with their own
	// commissioning window.
	ModeServer Mode = "server"
)

// Device is a single exposed endpoint registered by a plugin.
//
// Devices are runtime-only state: they are rebuilt from the plugins on
// every start and never persisted.
type Device struct {
	// UniqueID identifies the device within the registry. Generated when
	// empty on registration.
	UniqueID string `json:"unique_id"`

	// Name is the human-readable label shown to controllers.
	Name string `json:"name"`

	// PluginName is the registered name of the owning plugin.
	PluginName string `json:"plugin_name"`

	// Mode selects bridged or server exposure.
	Mode Mode `json:"mode"`

	// Node is the protocol node carrying this device. For bridged devices
	// this is the shared bridge node; for server devices it is dedicated.
	Node node.Handle `json:"-"`
}

// DeepCopy returns a copy of the device. The node handle is shared; handles
// are opaque references owned by the factory.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// Validate checks device fields for registration.
func (d *Device) Validate() error {
	if d == nil {
		return ErrInvalidDevice
	}
	if d.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidDevice)
	}
	if d.PluginName == "" {
		return fmt.Errorf("%w: plugin name cannot be empty", ErrInvalidDevice)
	}
	switch d.Mode {
	case ModeBridged, ModeServer:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidDevice, d.Mode)
	}
	return nil
}
