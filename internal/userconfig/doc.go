// Package userconfig persists per-user application state and provides
// the durable key/blob contract used across Verdant Core.
//
// Two layers live here. Store is the low-level contract: get/set/delete
// of opaque blobs by string key with last-write-wins durability,
// implemented on the SQLite kv_store table. On top of it, Repository
// manages the SmartHomeConfig aggregate: exactly one per user, holding
// linked voice platforms, per-device settings, automation rules, and
// notification preferences. Absence of a config is not an error state;
// InitializeEmptyConfig lazily creates a default.
//
// Device-class adapters persist their settings and stats snapshots
// through the same Store under adapter/-prefixed keys.
package userconfig
