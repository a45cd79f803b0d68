package mqtt

import "fmt"

// Topic prefixes for the hub's MQTT surface.
//
// Scheme: grayhub/{category}/{id}/{suffix}
const (
	// TopicPrefix is the base for all hub topics.
	TopicPrefix = "grayhub"

	// TopicPrefixHub is the base for hub-level topics.
	TopicPrefixHub = "grayhub/hub"

	// TopicPrefixPlugin is the base for per-plugin topics.
	TopicPrefixPlugin = "grayhub/plugin"

	// TopicPrefixNode is the base for per-node topics.
	TopicPrefixNode = "grayhub/node"
)

// Topics provides builders for hub MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.PluginState("hue")
//	// Returns: "grayhub/plugin/hue/state"
type Topics struct{}

// HubStatus returns the retained hub online/offline status topic. Also
// used as the LWT topic.
//
// Example: grayhub/hub/status
func (Topics) HubStatus() string {
	return TopicPrefixHub + "/status"
}

// HubState returns the topic for bridge lifecycle state changes.
//
// Example: grayhub/hub/state
func (Topics) HubState() string {
	return TopicPrefixHub + "/state"
}

// HubCommand returns the topic for commands addressed to the hub.
//
// Example: grayhub/hub/command/stop-advertise
func (Topics) HubCommand(command string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixHub, command)
}

// AllHubCommands returns the wildcard for every hub command.
func (Topics) AllHubCommands() string {
	return TopicPrefixHub + "/command/+"
}

// PluginState returns the topic for one plugin's lifecycle flags.
//
// Example: grayhub/plugin/hue/state
func (Topics) PluginState(name string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixPlugin, name)
}

// AllPluginStates returns the wildcard matching every plugin state topic.
func (Topics) AllPluginStates() string {
	return TopicPrefixPlugin + "/+/state"
}

// NodeEvent returns the topic for one node's fabric/session events.
//
// Example: grayhub/node/3f2a.../event
func (Topics) NodeEvent(nodeID string) string {
	return fmt.Sprintf("%s/%s/event", TopicPrefixNode, nodeID)
}

// AllNodeEvents returns the wildcard matching every node event topic.
func (Topics) AllNodeEvents() string {
	return TopicPrefixNode + "/+/event"
}

// Commissioning returns the retained topic carrying a node's open
// pairing window, cleared when the window closes.
//
// Example: grayhub/node/3f2a.../commissioning
func (Topics) Commissioning(nodeID string) string {
	return fmt.Sprintf("%s/%s/commissioning", TopicPrefixNode, nodeID)
}
