// Package bin implements the device-class adapter for BLE recycling
// bins.
//
// Supported hardware advertises one of the known bin service UUIDs
// (one per hardware generation). Telemetry characteristics carry
// big-endian fixed-width values: weight in grams (u16), fill level
// 0-100 (u8), a material code byte, and battery 0-100 (u8). Settings
// travel as a packed two-byte record of flag bits plus the full
// threshold. The adapter decodes telemetry into BinMeasurement
// readings, keeps per-device history and statistics, raises bin-full
// alerts against the stored threshold, and generates advisory tips.
package bin
