package device

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Device is the identity and connection record for one smart device.
// This matches the devices table in the bootstrap schema.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Classification
	Type DeviceType `json:"type"`

	// Connection
	ConnectionType   ConnectionType   `json:"connection_type"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`

	// Capabilities advertised or learned for this device.
	Capabilities []Capability `json:"capabilities"`

	// Metadata
	Manufacturer *string  `json:"manufacturer,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Metadata     Metadata `json:"metadata"`

	// LastSync is the last successful data exchange with the device.
	// Zero means never synced.
	LastSync time.Time `json:"last_sync"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata holds free-form device annotations as a JSON map.
//
// Examples:
//   - Bin: {"firmware": "2.4.1", "location": "kitchen"}
//   - Energy monitor: {"circuit": "mains", "phase": 1}
type Metadata map[string]any

// DeepCopy creates a complete independent copy of the Device.
// All map and slice fields are cloned so modifications to the copy
// do not affect the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	cpy.Metadata = deepCopyMap(d.Metadata)

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	// Pointer fields (*string) don't need deep copy because strings
	// are immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives are safe to copy by value
		return v
	}
}

// NewID generates a new unique device or rule identifier.
func NewID() string {
	return uuid.NewString()
}

// DeviceType represents the kind of smart device.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// DeviceType constants.
const (
	TypeBin            DeviceType = "bin"
	TypeEnergyMonitor  DeviceType = "energy-monitor"
	TypeAppliance      DeviceType = "appliance"
	TypeVoiceAssistant DeviceType = "voice-assistant"
	TypePlug           DeviceType = "plug"
	TypeWaterMonitor   DeviceType = "water-monitor"
	TypeCompostMonitor DeviceType = "compost-monitor"
	TypeOther          DeviceType = "other"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		TypeBin, TypeEnergyMonitor, TypeAppliance, TypeVoiceAssistant,
		TypePlug, TypeWaterMonitor, TypeCompostMonitor, TypeOther,
	}
}

// ConnectionType represents how a device is reached.
type ConnectionType string

// ConnectionType constants.
const (
	ConnectionBLE    ConnectionType = "ble"
	ConnectionWiFi   ConnectionType = "wifi"
	ConnectionZigbee ConnectionType = "zigbee"
	ConnectionZWave  ConnectionType = "zwave"
	ConnectionCloud  ConnectionType = "cloud"
	ConnectionMatter ConnectionType = "matter"
	ConnectionThread ConnectionType = "thread"
)

// AllConnectionTypes returns all valid connection type values.
func AllConnectionTypes() []ConnectionType {
	return []ConnectionType{
		ConnectionBLE, ConnectionWiFi, ConnectionZigbee, ConnectionZWave,
		ConnectionCloud, ConnectionMatter, ConnectionThread,
	}
}

// ConnectionStatus mirrors the transport session state machine.
type ConnectionStatus string

// ConnectionStatus constants.
const (
	StatusDisconnected     ConnectionStatus = "disconnected"
	StatusConnecting       ConnectionStatus = "connecting"
	StatusConnected        ConnectionStatus = "connected"
	StatusDisconnecting    ConnectionStatus = "disconnecting"
	StatusConnectionFailed ConnectionStatus = "connection_failed"
)

// AllConnectionStatuses returns all valid connection status values.
func AllConnectionStatuses() []ConnectionStatus {
	return []ConnectionStatus{
		StatusDisconnected, StatusConnecting, StatusConnected,
		StatusDisconnecting, StatusConnectionFailed,
	}
}

// Capability represents what a device can report or do.
type Capability string

// Reading capabilities.
const (
	CapWeightRead     Capability = "weight_read"
	CapFillLevelRead  Capability = "fill_level_read"
	CapMaterialDetect Capability = "material_detect"
	CapPowerRead      Capability = "power_read"
	CapVoltageRead    Capability = "voltage_read"
	CapCurrentRead    Capability = "current_read"
	CapEnergyRead     Capability = "energy_read"
	CapBatteryStatus  Capability = "battery_status"
)

// Control capabilities.
const (
	CapPowerControl   Capability = "power_control"
	CapModeSelect     Capability = "mode_select"
	CapTemperatureSet Capability = "temperature_set"
	CapScheduling     Capability = "scheduling"
)

// AllCapabilities returns all valid capability values.
func AllCapabilities() []Capability {
	return []Capability{
		CapWeightRead, CapFillLevelRead, CapMaterialDetect,
		CapPowerRead, CapVoltageRead, CapCurrentRead, CapEnergyRead,
		CapBatteryStatus, CapPowerControl, CapModeSelect,
		CapTemperatureSet, CapScheduling,
	}
}

// Validate checks a device for persistence readiness.
//
// Returns:
//   - error: ErrInvalidDevice wrapped with the failing field, or nil
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if !validDeviceType(d.Type) {
		return fmt.Errorf("%w: unrecognised type %q", ErrInvalidDevice, d.Type)
	}
	if !validConnectionType(d.ConnectionType) {
		return fmt.Errorf("%w: unrecognised connection type %q", ErrInvalidDevice, d.ConnectionType)
	}
	if d.ConnectionStatus != "" && !validConnectionStatus(d.ConnectionStatus) {
		return fmt.Errorf("%w: unrecognised connection status %q", ErrInvalidDevice, d.ConnectionStatus)
	}
	return nil
}

func validDeviceType(t DeviceType) bool {
	for _, v := range AllDeviceTypes() {
		if t == v {
			return true
		}
	}
	return false
}

func validConnectionType(t ConnectionType) bool {
	for _, v := range AllConnectionTypes() {
		if t == v {
			return true
		}
	}
	return false
}

func validConnectionStatus(s ConnectionStatus) bool {
	for _, v := range AllConnectionStatuses() {
		if s == v {
			return true
		}
	}
	return false
}
