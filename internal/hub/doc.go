// Package hub is the facade composing the plugin registry, device
// registry, storage and the bridge orchestrator into one lifecycle.
//
// Initialize loads persisted plugins, resolves the topology (config
// override, then persisted selection, then bridge mode) and starts the
// orchestrator. Destroy routes through the orchestrator's idempotent
// cleanup and is safe to call at any point. The API layer and the
// process entry point both talk to the Hub, never to the orchestrator
// directly.
package hub
