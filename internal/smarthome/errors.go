package smarthome

import "errors"

// Domain-specific errors for orchestrator operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotInitialized is returned by every public operation invoked
	// before Initialize has completed for the current user.
	ErrNotInitialized = errors.New("smarthome: not initialised")

	// ErrNoAdapter is returned when no registered adapter owns the
	// device's type.
	ErrNoAdapter = errors.New("smarthome: no adapter for device type")

	// ErrUnknownCommand is returned for command names the dispatcher
	// does not recognise.
	ErrUnknownCommand = errors.New("smarthome: unknown command")

	// ErrInvalidCommandArgs is returned when a recognised command is
	// missing or carries malformed parameters.
	ErrInvalidCommandArgs = errors.New("smarthome: invalid command arguments")

	// ErrNoData is returned when no decoded reading has been observed
	// for the device since startup.
	ErrNoData = errors.New("smarthome: no data recorded for device")
)
