// Package virtual is the built-in demo integration.
//
// It exposes a configurable number of virtual switches so a freshly
// commissioned hub has something to pair against before any real
// integration is installed. The switch count comes from the plugin's
// config blob:
//
//	{"switches": 2}
//
// Registered device ids are remembered in the plugin's storage context
// so they stay stable across runs.
package virtual

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
	"github.com/nerrad567/gray-logic-hub/internal/storage"
)

// Name is the catalog name this integration registers under.
const Name = "virtual"

// defaultSwitches is how many switches to expose when config is silent.
const defaultSwitches = 1

// maxSwitches caps the configured switch count.
const maxSwitches = 32

// deviceIDsKey is the storage key holding registered device ids.
const deviceIDsKey = "device_ids"

// Register adds the integration to a resolver catalog.
func Register(catalog *plugin.CatalogResolver) {
	catalog.Register(Name, func(p *plugin.Plugin) plugin.Handler {
		return &handler{switches: switchCount(p.Config)}
	})
}

// handler implements plugin.Handler for the virtual switches.
type handler struct {
	switches int
	host     plugin.Host
}

// switchCount reads the configured switch count, clamped to a sane range.
func switchCount(cfg map[string]any) int {
	raw, ok := cfg["switches"]
	if !ok {
		return defaultSwitches
	}

	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case float64:
		n = int(v)
	default:
		return defaultSwitches
	}

	if n < 1 {
		return defaultSwitches
	}
	if n > maxSwitches {
		return maxSwitches
	}
	return n
}

// OnLoad captures the host for later registration.
func (h *handler) OnLoad(_ context.Context, host plugin.Host) error {
	h.host = host
	return nil
}

// OnStart registers the virtual switches with the hub.
func (h *handler) OnStart(ctx context.Context) error {
	if h.host == nil {
		return errors.New("virtual: host not bound")
	}

	ids := make([]string, 0, h.switches)
	for i := 1; i <= h.switches; i++ {
		id, err := h.host.RegisterDevice(fmt.Sprintf("Virtual Switch %d", i), device.ModeBridged)
		if err != nil {
			return fmt.Errorf("registering switch %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	if err := h.host.Storage().Set(ctx, deviceIDsKey, ids); err != nil {
		return fmt.Errorf("persisting device ids: %w", err)
	}
	return nil
}

// OnConfigure has nothing to do; the switches carry no settings beyond
// their count, which only applies at start.
func (h *handler) OnConfigure(context.Context) error {
	return nil
}

// OnShutdown clears the persisted device ids. Missing keys are fine on
// a first run that never reached start.
func (h *handler) OnShutdown(ctx context.Context, _ string) error {
	if h.host == nil {
		return nil
	}
	if err := h.host.Storage().Remove(ctx, deviceIDsKey); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return fmt.Errorf("clearing device ids: %w", err)
	}
	return nil
}
