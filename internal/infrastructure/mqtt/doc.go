// Package mqtt provides the hub's MQTT client with connection
// management, publishing, subscription handling and automatic
// reconnection.
//
// The hub publishes its retained online/offline status (with an LWT for
// crash detection), per-plugin lifecycle state, and node fabric/session
// events. It subscribes to hub command topics. Topic names are built
// through the Topics helpers so naming stays consistent.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	client.SetLogger(logger)
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.AllHubCommands(), 1,
//		func(topic string, payload []byte) error {
//			return handleCommand(topic, payload)
//		})
//
// The NodeEventSink adapter plugs the client into the bridge
// orchestrator's event fan-out.
package mqtt
