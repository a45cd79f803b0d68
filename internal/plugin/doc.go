// Package plugin provides the plugin registry and runtime adapter.
//
// A plugin is an integration with a family of third-party devices,
// implementing the Handler lifecycle contract (OnLoad, OnStart,
// OnConfigure, OnShutdown). The Registry holds the ordered set of
// registered plugins with identity and the enabled flag persisted
// through a Repository; lifecycle flags are runtime-only and reset on
// every start.
//
// The Adapter wraps the lifecycle contract with the hub's error policy:
//
//   - Resolve: one reinstall attempt through the Installer, then
//     ErrResolution.
//   - Load/Start: failure marks the plugin errored (sticky) and returns
//     ErrLifecycle; the error never propagates past the orchestrator.
//   - Configure: failure is logged and swallowed, the plugin stays
//     unconfigured.
//   - Shutdown: best-effort, bounded by a per-call timeout, never fails.
//
// # Usage
//
//	resolver := plugin.NewCatalogResolver()
//	resolver.Register("hue", func(p *plugin.Plugin) plugin.Handler {
//		return hue.New(p.Config)
//	})
//
//	adapter, err := plugin.NewAdapter(plugin.AdapterOptions{
//		Resolver: resolver,
//		Logger:   logger,
//	})
//
//	registry := plugin.NewRegistry(plugin.NewSQLiteRepository(db.DB))
//	if err := registry.Load(ctx); err != nil {
//		return err
//	}
package plugin
