// Package device provides the in-memory registry of endpoints exposed by
// the hub.
//
// Devices are registered by plugins during startup and torn down with
// them; they are rebuilt from scratch on every run and never persisted.
// Registration order is preserved because endpoint numbering on the
// fabric follows it.
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(logger)
//
//	err := registry.Add(&device.Device{
//		Name:       "Living Room Lamp",
//		PluginName: "hue",
//		Mode:       device.ModeBridged,
//		Node:       bridgeNode,
//	})
//
//	devices := registry.ListByPlugin("hue")
package device
