// Package ble implements the transport session manager for Verdant Core.
//
// The Manager owns the Bluetooth radio lifecycle: platform permission
// acquisition, advertisement scanning with duplicate suppression, and a
// per-device connection state machine (disconnected, connecting,
// connected, disconnecting). It exposes a byte-oriented characteristic
// contract (read, acknowledged write, subscribe) to the device-class
// adapters and publishes transport events on the shared event bus.
//
// The Manager never interprets characteristic payloads and never
// retries failed operations; both concerns belong to the adapters
// above it. The platform BLE stack is reached through the Central and
// Peripheral interfaces so the state machine is testable without a
// radio.
package ble
