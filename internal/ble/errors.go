package ble

import "errors"

// Domain errors for the BLE transport package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, ble.ErrNotConnected) {
//	    // connect first, then retry
//	}
var (
	// ErrPermissionDenied is returned when the platform refuses one or
	// more of the required radio permissions. Fatal to initialisation;
	// callers must not proceed to scan or connect.
	ErrPermissionDenied = errors.New("ble: permission denied")

	// ErrNotInitialized is returned when an operation requires a prior
	// successful Initialize call.
	ErrNotInitialized = errors.New("ble: not initialised")

	// ErrNotConnected is returned when a characteristic operation is
	// attempted on a device whose session is not in the connected state.
	ErrNotConnected = errors.New("ble: device not connected")

	// ErrDeviceNotFound is returned when no session or peripheral exists
	// for the requested device ID.
	ErrDeviceNotFound = errors.New("ble: device not found")

	// ErrCharacteristicUnavailable is returned when the remote device
	// does not expose the requested service/characteristic pair
	// (model or firmware mismatch; not retried).
	ErrCharacteristicUnavailable = errors.New("ble: characteristic unavailable")

	// ErrConnectionFailed is returned when a session handshake fails.
	// The caller decides whether to retry; this layer never does.
	ErrConnectionFailed = errors.New("ble: connection failed")

	// ErrInvalidTransition is returned when a connect or disconnect is
	// requested from a state that does not permit it.
	ErrInvalidTransition = errors.New("ble: invalid session state transition")

	// ErrScanFailed is returned when scanning cannot be started, and
	// carried on the scan_failed event when it aborts mid-flight.
	ErrScanFailed = errors.New("ble: scan failed")

	// ErrReadFailed is returned when a characteristic read is rejected
	// by the transport. No automatic retry at this layer.
	ErrReadFailed = errors.New("ble: read failed")

	// ErrWriteFailed is returned when a characteristic write is not
	// acknowledged by the remote. No automatic retry at this layer.
	ErrWriteFailed = errors.New("ble: write failed")
)
