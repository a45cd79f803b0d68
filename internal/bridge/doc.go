// Package bridge contains the orchestrator coordinating plugin and node
// lifecycle across two topologies.
//
// In bridge mode every plugin's devices are exposed under one shared
// protocol node and aggregator; a failure creating or starting that node
// is fatal for the run. In childbridge mode each plugin owns a node
// (dynamic plugins additionally an aggregator sub-node) and any node
// failure is isolated to its plugin.
//
// Startup sequence: launch every enabled plugin concurrently, hold a
// polling barrier until each one is loaded-and-started or errored
// (bounded by the fail-safe counter), build the node topology, then
// after a settle delay run the deferred configure pass and open the
// commissioning windows. Plugin failures are recorded on the plugin
// record and never fail the run; the hub starts with whatever survived.
//
// Shutdown is a single idempotent Cleanup entry point with bounded
// per-plugin timeouts; concurrent callers wait on the first teardown
// instead of duplicating it.
//
// # Usage
//
//	orch, err := bridge.New(bridge.Options{
//		Mode:    bridge.ModeBridge,
//		Plugins: plugins,
//		Devices: devices,
//		Adapter: adapter,
//		Factory: factory,
//		Store:   store,
//		Logger:  logger,
//	})
//	if err != nil {
//		return err
//	}
//	if err := orch.Start(ctx); err != nil {
//		return err
//	}
//	defer orch.Cleanup(ctx, "process exit", false)
package bridge
