package plugin

import (
	"context"
	"sort"
	"sync"
)

// HandlerFunc constructs a fresh Handler instance for a plugin.
type HandlerFunc func(p *Plugin) Handler

// CatalogResolver resolves plugins against a catalog of registered
// constructors, the same way database/sql resolves driver names.
// Integrations compiled into the binary register themselves by name;
// resolution of an unregistered name returns not-found so the adapter's
// reinstall path can run.
type CatalogResolver struct {
	mu      sync.RWMutex
	entries map[string]HandlerFunc
}

// NewCatalogResolver creates an empty catalog.
func NewCatalogResolver() *CatalogResolver {
	return &CatalogResolver{entries: make(map[string]HandlerFunc)}
}

// Register adds a handler constructor under a plugin name. Registering
// the same name twice replaces the earlier entry.
func (r *CatalogResolver) Register(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = fn
}

// Names returns the registered plugin names, sorted.
func (r *CatalogResolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve implements Resolver. Returns (nil, nil) for unknown names.
func (r *CatalogResolver) Resolve(_ context.Context, p *Plugin) (Handler, error) {
	r.mu.RLock()
	fn, ok := r.entries[p.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return fn(p), nil
}
