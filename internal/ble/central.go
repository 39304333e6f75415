package ble

import "context"

// Permission identifies a platform radio-use permission.
type Permission string

// Platform permissions. Older mobile OS versions gate BLE behind a
// single coarse-location grant; newer ones use a bundled set.
const (
	PermissionCoarseLocation Permission = "coarse_location"
	PermissionScan           Permission = "bluetooth_scan"
	PermissionConnect        Permission = "bluetooth_connect"
	PermissionLocation       Permission = "fine_location"
)

// RadioState describes the power state of the Bluetooth radio.
type RadioState string

// Radio states as reported by the platform.
const (
	RadioStateUnknown     RadioState = "unknown"
	RadioStatePoweredOn   RadioState = "powered_on"
	RadioStatePoweredOff  RadioState = "powered_off"
	RadioStateUnsupported RadioState = "unsupported"
)

// Advertisement is a single BLE advertisement observed during scanning.
type Advertisement struct {
	// DeviceID is the platform-stable identifier for the peripheral.
	DeviceID string

	// Name is the advertised local name (may be empty).
	Name string

	// RSSI is the received signal strength in dBm (more negative = weaker).
	RSSI int

	// ServiceUUIDs lists the advertised primary service UUIDs.
	// Device-class adapters match on these to claim a device.
	ServiceUUIDs []string
}

// ServiceInfo describes one remote service and its characteristics,
// produced by service enumeration during the connection handshake.
type ServiceInfo struct {
	UUID            string
	Characteristics []string
}

// Central is the platform Bluetooth boundary consumed by the Manager.
//
// Implementations wrap the host BLE stack; the Manager owns all session
// state and event fan-out above this interface. A GATT stack itself is
// outside this package's scope.
type Central interface {
	// RequestPermissions asks the platform for the given permission set
	// and reports a per-permission granted/denied result.
	RequestPermissions(ctx context.Context, perms []Permission) (map[Permission]bool, error)

	// Scan starts advertising discovery, invoking onAdvertisement for
	// every observation until StopScan is called or ctx is cancelled.
	// Returns an error only if scanning cannot be started.
	Scan(ctx context.Context, onAdvertisement func(Advertisement)) error

	// StopScan stops an active scan. No-op when not scanning.
	StopScan() error

	// SetOnScanError registers a callback for asynchronous scan
	// failures (radio reset, platform resource exhaustion).
	SetOnScanError(callback func(error))

	// SetOnRadioStateChanged registers a callback for radio power
	// state transitions.
	SetOnRadioStateChanged(callback func(RadioState))

	// Dial opens a link-layer connection to a peripheral.
	Dial(ctx context.Context, deviceID string) (Peripheral, error)
}

// Peripheral is an open link to a single remote device.
type Peripheral interface {
	// DiscoverServices enumerates the remote GATT table. The session is
	// not considered connected until this succeeds.
	DiscoverServices(ctx context.Context) ([]ServiceInfo, error)

	// Read reads the current value of a characteristic.
	Read(ctx context.Context, serviceUUID, characteristicUUID string) ([]byte, error)

	// Write writes with acknowledgment: it does not return success
	// until the remote confirms the write.
	Write(ctx context.Context, serviceUUID, characteristicUUID string, value []byte) error

	// Subscribe registers for value notifications on a characteristic.
	// The returned function cancels the subscription.
	Subscribe(serviceUUID, characteristicUUID string, onValue func([]byte)) (func(), error)

	// SetOnDisconnect registers a callback invoked when the remote
	// drops the link. err is nil for a clean remote close.
	SetOnDisconnect(callback func(err error))

	// Close tears the link down.
	Close() error
}
