// Package energy implements the device-class adapter for BLE plug-in
// energy monitors.
//
// Telemetry characteristics carry big-endian fixed-width values:
// instantaneous power in watts (u16), mains voltage in tenths of a
// volt (u16), current in hundredths of an amp (u16), cumulative energy
// in thousandths of a kWh (u32), and a detected-appliance code byte.
// Settings travel as a packed three-byte record: flag bits plus the
// high-usage threshold in watts. The adapter raises high-usage alerts
// against the stored threshold and tracks consumption statistics.
package energy
