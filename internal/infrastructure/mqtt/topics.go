package mqtt

import "fmt"

// Topic prefixes for the Blue Scout topic tree.
//
// Everything lives under bluescout/{category}/... so a single ACL entry
// covers the engine.
const (
	// TopicPrefix is the root of every Blue Scout topic.
	TopicPrefix = "bluescout"

	// TopicPrefixSystem is the base for engine lifecycle topics.
	TopicPrefixSystem = "bluescout/system"
)

// Topics provides builders for Blue Scout MQTT topics.
// Using these helpers keeps topic naming consistent across packages:
//
//	topics := mqtt.Topics{}
//	topics.DeviceDiscovered("AA:BB:CC:11:22:33")
//	// Returns: "bluescout/device/AA:BB:CC:11:22:33/discovered"
type Topics struct{}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the engine online/offline topic (also the LWT topic).
//
// Example: bluescout/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// Health returns the periodic health topic.
//
// Example: bluescout/system/health
func (Topics) Health() string {
	return fmt.Sprintf("%s/health", TopicPrefixSystem)
}

// =============================================================================
// Discovery Topics
// =============================================================================

// DeviceDiscovered returns the topic announcing a new registry record.
//
// Example: bluescout/device/AA:BB:CC:11:22:33/discovered
func (Topics) DeviceDiscovered(address string) string {
	return fmt.Sprintf("%s/device/%s/discovered", TopicPrefix, address)
}

// RegistrySnapshot returns the retained topic carrying the full registry.
//
// Example: bluescout/registry/snapshot
func (Topics) RegistrySnapshot() string {
	return fmt.Sprintf("%s/registry/snapshot", TopicPrefix)
}

// DiscoveryPass returns the topic for completed scan pass summaries.
//
// Example: bluescout/discovery/classic
func (Topics) DiscoveryPass(transport string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, transport)
}

// =============================================================================
// Control Topics
// =============================================================================

// Command returns the request topic for one command name.
//
// Example: bluescout/command/connect
func (Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, name)
}

// Response returns the reply topic for one request id.
//
// Example: bluescout/response/req-1f2e3d4c
func (Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefix, requestID)
}

// ConnectionEvent returns the topic for connection lifecycle changes.
//
// Example: bluescout/connection/AA:BB:CC:11:22:33
func (Topics) ConnectionEvent(address string) string {
	return fmt.Sprintf("%s/connection/%s", TopicPrefix, address)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllCommands matches every command topic.
//
// Pattern: bluescout/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllDiscovered matches every new-device announcement.
//
// Pattern: bluescout/device/+/discovered
func (Topics) AllDiscovered() string {
	return fmt.Sprintf("%s/device/+/discovered", TopicPrefix)
}

// AllTopics matches the whole tree. Use with caution.
//
// Pattern: bluescout/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
