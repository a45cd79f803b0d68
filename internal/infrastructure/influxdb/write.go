package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-hub/internal/node"
	"github.com/nerrad567/gray-logic-hub/internal/plugin"
)

// WriteNodeEvent records a protocol node lifecycle event.
//
// Events are tagged by kind and node id so dashboards can slice
// commissioning and session activity per node. The write is
// non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteNodeEvent(ev node.Event) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if ev.FabricIndex > 0 {
		fields["fabric_index"] = ev.FabricIndex
	}
	if ev.SessionID != "" {
		fields["session_id"] = ev.SessionID
	}

	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		"node_events",
		map[string]string{
			"node_id": ev.NodeID,
			"kind":    string(ev.Kind),
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePluginState records a plugin's lifecycle flags as a snapshot.
//
// Booleans are written as 0/1 integers so Flux queries can aggregate
// them (e.g. count of errored plugins over time).
func (c *Client) WritePluginState(name string, flags plugin.Flags) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"plugin_state",
		map[string]string{
			"plugin": name,
		},
		map[string]interface{}{
			"loaded":     boolField(flags.Loaded),
			"started":    boolField(flags.Started),
			"configured": boolField(flags.Configured),
			"paired":     boolField(flags.Paired),
			"connected":  boolField(flags.Connected),
			"errored":    boolField(flags.Errored),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBridgeState records an orchestrator state transition.
func (c *Client) WriteBridgeState(mode, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_state",
		map[string]string{
			"mode": mode,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
