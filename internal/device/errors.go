package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when no device exists with the
	// requested ID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when a device fails validation
	// before persistence.
	ErrInvalidDevice = errors.New("device: invalid device")

	// ErrNotMigrated is returned by Initialize when the devices table
	// is missing, meaning the bootstrap schema was never applied.
	ErrNotMigrated = errors.New("device: schema not migrated")
)
