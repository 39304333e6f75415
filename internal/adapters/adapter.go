package adapters

import (
	"context"

	"github.com/verdant-home/verdant-core/internal/ble"
	"github.com/verdant-home/verdant-core/internal/device"
)

// Transport is the byte-oriented contract each adapter consumes from
// the BLE session manager. *ble.Manager satisfies it; tests substitute
// fakes.
type Transport interface {
	Connect(ctx context.Context, deviceID string) error
	Disconnect(deviceID string) error
	SessionState(deviceID string) ble.SessionState
	ReadCharacteristic(ctx context.Context, deviceID, serviceUUID, characteristicUUID string) ([]byte, error)
	WriteCharacteristic(ctx context.Context, deviceID, serviceUUID, characteristicUUID string, value []byte) error
	SubscribeCharacteristic(deviceID, serviceUUID, characteristicUUID string, callback func(ble.CharacteristicData)) (func(), error)
}

// Store is the durable key/blob contract adapters persist through.
// Satisfied by userconfig.SQLiteStore.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Adapter is the public contract every device-class adapter fulfils.
type Adapter interface {
	// Kind reports the device type this adapter owns.
	Kind() device.DeviceType

	// IsSupported reports whether a discovered device advertises one
	// of the adapter's known service identifiers.
	IsSupported(adv ble.Advertisement) bool

	// Connect establishes the transport session, performs an initial
	// full read of every known characteristic to seed the starting
	// reading, subscribes to telemetry, and persists.
	Connect(ctx context.Context, dev *device.Device) error

	// Disconnect tears the transport session down and drops the
	// device's subscriptions. In-memory state is retained.
	Disconnect(ctx context.Context, deviceID string) error
}

// Logger defines the logging interface used by the adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger is a Logger that does nothing.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// ReadingEvent is published on the bus once per successfully decoded
// metric. The orchestrator maps these to automation metric events.
type ReadingEvent struct {
	DeviceID string
	Class    device.DeviceType
	Metric   string
	Value    any

	// Reading is the full merged typed reading after this update
	// (BinMeasurement, EnergyReading, ApplianceStatus).
	Reading any
}
