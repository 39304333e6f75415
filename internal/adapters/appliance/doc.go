// Package appliance implements the device-class adapter for BLE smart
// appliances (washers, ovens, dishwashers).
//
// Beyond telemetry decoding (status, mode, and error code bytes plus a
// big-endian temperature in tenths of a degree), this adapter exposes
// typed commands: power on/off, set mode, set temperature, and
// time-based schedule management. Every command validates the device
// is connected, encodes to the documented byte layout, writes with
// acknowledgment, and only then updates in-memory state. Schedules are
// persisted in the device's settings and executed app-side with a cron
// runner that fires the corresponding power command.
package appliance
