// Package influxdb provides the time-series audit trail for decoded
// device readings and alerts.
//
// The audit trail is append-only and independent of the SQLite device
// registry: points written for a device remain queryable after the
// device itself is deleted. Writes are non-blocking and batched; the
// in-memory adapter state and SQLite remain authoritative, so a lost
// point never affects behaviour.
//
// The integration is optional. When disabled in configuration,
// Connect returns ErrDisabled and callers run without the trail.
package influxdb
