package mqtt

import "fmt"

// Topic prefixes for the Verdant MQTT hierarchy.
const (
	// TopicPrefixCore is the base for core-published topics.
	TopicPrefixCore = "verdant/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "verdant/system"
)

// Topics provides builders for Verdant MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	alertTopic := topics.Alert("critical")
//	// Returns: "verdant/core/alert/critical"
type Topics struct{}

// DeviceState returns the canonical device state topic.
//
// Example: verdant/core/device/bin-kitchen/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// DeviceReading returns the topic for decoded readings of one metric.
//
// Example: verdant/core/device/bin-kitchen/reading/weight
func (Topics) DeviceReading(deviceID, metric string) string {
	return fmt.Sprintf("%s/device/%s/reading/%s", TopicPrefixCore, deviceID, metric)
}

// Alert returns the topic for rate-limited alerts of one priority.
//
// Example: verdant/core/alert/high
func (Topics) Alert(priority string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, priority)
}

// AutomationFired returns the topic for automation rule triggers.
//
// Example: verdant/core/automation/rule-bin-full/fired
func (Topics) AutomationFired(ruleID string) string {
	return fmt.Sprintf("%s/automation/%s/fired", TopicPrefixCore, ruleID)
}

// Event returns the topic for typed integration events.
//
// Example: verdant/core/event/device_connected
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, kind)
}

// SystemStatus returns the system status topic carrying online/offline
// payloads, including the LWT.
//
// Example: verdant/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceReadings returns a pattern matching every reading topic.
//
// Pattern: verdant/core/device/+/reading/+
func (Topics) AllDeviceReadings() string {
	return fmt.Sprintf("%s/device/+/reading/+", TopicPrefixCore)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: verdant/core/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefixCore)
}

// AllAlerts returns a pattern matching alerts of every priority.
//
// Pattern: verdant/core/alert/+
func (Topics) AllAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefixCore)
}

// AllEvents returns a pattern matching all typed events.
//
// Pattern: verdant/core/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching every Verdant topic.
// Use with caution - this receives ALL traffic.
//
// Pattern: verdant/#
func (Topics) AllTopics() string {
	return "verdant/#"
}
