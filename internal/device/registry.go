package device

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/node"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds all devices currently exposed by the hub.
//
// Devices are runtime state rebuilt from the plugins on every start, so
// the registry is purely in-memory. Registration order is preserved
// because endpoint numbering on the fabric follows it.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Device
	ordered []string // UniqueIDs in registration order
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add registers a device. A UniqueID is generated when empty. Returns
// ErrDeviceExists when the UniqueID is already registered and
// ErrInvalidDevice when required fields are missing.
func (r *Registry) Add(d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.UniqueID == "" {
		d.UniqueID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.UniqueID]; exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.UniqueID)
	}

	r.byID[d.UniqueID] = d.DeepCopy()
	r.ordered = append(r.ordered, d.UniqueID)

	r.logger.Debug("device registered",
		"unique_id", d.UniqueID,
		"name", d.Name,
		"plugin", d.PluginName,
		"mode", d.Mode,
	)
	return nil
}

// Get retrieves a device by UniqueID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(uniqueID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[uniqueID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, uniqueID)
	}
	return d.DeepCopy(), nil
}

// List returns all devices in registration order.
func (r *Registry) List() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.byID[id].DeepCopy())
	}
	return out
}

// ListByPlugin returns the devices owned by a plugin, in registration order.
func (r *Registry) ListByPlugin(pluginName string) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Device
	for _, id := range r.ordered {
		if d := r.byID[id]; d.PluginName == pluginName {
			out = append(out, d.DeepCopy())
		}
	}
	return out
}

// SetNode binds a device to the protocol node carrying it.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) SetNode(uniqueID string, h node.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[uniqueID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, uniqueID)
	}
	d.Node = h
	return nil
}

// Remove deletes a device by UniqueID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Remove(uniqueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[uniqueID]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, uniqueID)
	}
	delete(r.byID, uniqueID)
	r.ordered = removeID(r.ordered, uniqueID)

	r.logger.Debug("device removed", "unique_id", uniqueID)
	return nil
}

// RemoveByPlugin deletes every device owned by a plugin and returns how
// many were removed.
func (r *Registry) RemoveByPlugin(pluginName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	kept := r.ordered[:0]
	for _, id := range r.ordered {
		if r.byID[id].PluginName == pluginName {
			delete(r.byID, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.ordered = kept

	if removed > 0 {
		r.logger.Debug("plugin devices removed", "plugin", pluginName, "count", removed)
	}
	return removed
}

// Clear removes every device.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[string]*Device)
	r.ordered = nil
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
