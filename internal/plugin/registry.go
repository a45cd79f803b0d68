package plugin

import (
	"context"
	"fmt"
	"sync"
)

// Registry is the ordered collection of registered plugins.
//
// Identity and the enabled flag persist through the Repository; lifecycle
// flags live on the records and are rebuilt each run. Iteration order is
// stable insertion order.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	logger Logger

	mu      sync.RWMutex
	byName  map[string]*Plugin
	ordered []string
}

// NewRegistry creates a plugin registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		byName: make(map[string]*Plugin),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load reads all persisted plugins into memory and resets their runtime
// state. Called once at startup.
func (r *Registry) Load(ctx context.Context) error {
	plugins, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading plugins: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName = make(map[string]*Plugin, len(plugins))
	r.ordered = make([]string, 0, len(plugins))
	for _, p := range plugins {
		p.ResetRuntimeState()
		r.byName[p.Name] = p
		r.ordered = append(r.ordered, p.Name)
	}

	r.logger.Info("plugin registry loaded", "count", len(plugins))
	return nil
}

// Add registers and persists a plugin. Re-adding an already-registered
// name is an idempotent no-op success.
func (r *Registry) Add(ctx context.Context, p *Plugin) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidPlugin)
	}
	if p.Type == "" {
		p.Type = TypeUnknown
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name]; exists {
		return nil
	}

	p.Position = len(r.ordered)
	if err := r.repo.Save(ctx, p); err != nil {
		return err
	}
	r.byName[p.Name] = p
	r.ordered = append(r.ordered, p.Name)

	r.logger.Info("plugin registered", "plugin", p.Name, "type", p.Type, "enabled", p.Enabled)
	return nil
}

// Set upserts a plugin record, persisting it and replacing any existing
// entry under the same name in place.
func (r *Registry) Set(ctx context.Context, p *Plugin) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidPlugin)
	}
	if p.Type == "" {
		p.Type = TypeUnknown
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[p.Name]; ok {
		p.Position = existing.Position
	} else {
		p.Position = len(r.ordered)
		r.ordered = append(r.ordered, p.Name)
	}
	if err := r.repo.Save(ctx, p); err != nil {
		return err
	}
	r.byName[p.Name] = p
	return nil
}

// Get retrieves a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (r *Registry) Get(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return p, nil
}

// List returns all plugins in stable insertion order.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plugin, 0, len(r.ordered))
	for _, name := range r.ordered {
		out = append(out, r.byName[name])
	}
	return out
}

// ListEnabled returns the enabled plugins in stable insertion order.
func (r *Registry) ListEnabled() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Plugin
	for _, name := range r.ordered {
		if p := r.byName[name]; p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// SetEnabled flips a plugin's enabled flag and persists it immediately.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if err := r.repo.SetEnabled(ctx, name, enabled); err != nil {
		return err
	}
	p.Enabled = enabled

	r.logger.Info("plugin enabled flag changed", "plugin", name, "enabled", enabled)
	return nil
}

// Remove unregisters and deletes a plugin.
// Returns ErrPluginNotFound if the plugin does not exist.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if err := r.repo.Delete(ctx, name); err != nil {
		return err
	}
	delete(r.byName, name)
	for i, n := range r.ordered {
		if n == name {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}

	r.logger.Info("plugin removed", "plugin", name)
	return nil
}

// Clear unregisters and deletes every plugin.
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.DeleteAll(ctx); err != nil {
		return err
	}
	r.byName = make(map[string]*Plugin)
	r.ordered = nil
	return nil
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
