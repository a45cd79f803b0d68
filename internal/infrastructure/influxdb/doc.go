// Package influxdb provides time-series storage for Gray Logic Hub.
//
// It wraps the official influxdb-client-go v2 library for recording
// node lifecycle events, plugin state snapshots and orchestrator
// transitions.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteNodeEvent(ev)
//	client.WritePluginState("hue", flags)
//
// NodeEventSink adapts the client to the orchestrator's event sink
// interface so fabric and session events land in the bucket without
// extra plumbing.
//
// # Error Handling
//
// Writes are non-blocking and batched; failures surface through the
// SetOnError callback rather than at the call site. Connection and
// health check errors are returned directly.
package influxdb
