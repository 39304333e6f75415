// Package device defines the Device model and its SQLite-backed
// repository.
//
// A Device is the identity and connection record for one physical smart
// device: recycling bin, energy monitor, appliance, and so on. The
// repository owns the devices table exclusively; connection status and
// last-sync timestamps are refreshed by the orchestrator and the
// device-class adapters as sessions come and go. Deletion is always an
// explicit operation; nothing in this package removes a device as a
// side effect.
package device
