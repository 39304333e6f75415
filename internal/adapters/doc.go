// Package adapters holds the shared machinery of the device-class
// adapters (bin, energy monitor, appliance).
//
// Each adapter translates one device family's proprietary byte-level
// telemetry into typed readings and typed commands back to bytes. The
// adapters are structurally identical; what lives here is everything
// they have in common: the narrow Transport boundary to the BLE
// session manager, the data-driven Registry that classifies discovered
// devices, the bounded History ring for trend statistics, and the
// alert types with the edge/level threshold gate.
//
// Device claiming is exclusive: the Registry resolves each discovered
// device to at most one adapter, evaluated in fixed priority order.
package adapters
