package adapters

import "errors"

// Domain errors shared by the device-class adapters.
var (
	// ErrUnsupportedDevice is returned when an adapter is asked to
	// handle a device outside its known service identifiers.
	ErrUnsupportedDevice = errors.New("adapters: unsupported device")

	// ErrNoReading is returned when a device has no recorded state in
	// the adapter's in-memory maps.
	ErrNoReading = errors.New("adapters: no reading recorded")

	// ErrPersistFailed is returned when a settings update could not be
	// made durable. The in-memory state is rolled back to the last
	// persisted snapshot before this error is returned.
	ErrPersistFailed = errors.New("adapters: persist failed")

	// ErrInvalidCommand is returned when a command's parameters fall
	// outside the wire format's representable range.
	ErrInvalidCommand = errors.New("adapters: invalid command")
)
