package energy

import (
	"encoding/binary"
	"fmt"
)

// Known energy-monitor service UUIDs, one per hardware model.
const (
	ServiceUUIDPlug  = "0000e1a0-0000-1000-8000-00805f9b34fb"
	ServiceUUIDClamp = "0000e1a1-0000-1000-8000-00805f9b34fb"
)

// ServiceUUIDs returns the service identifiers this adapter claims.
func ServiceUUIDs() []string {
	return []string{ServiceUUIDPlug, ServiceUUIDClamp}
}

// Characteristic UUIDs shared by both hardware models.
const (
	CharPower     = "0000e1b1-0000-1000-8000-00805f9b34fb"
	CharVoltage   = "0000e1b2-0000-1000-8000-00805f9b34fb"
	CharCurrent   = "0000e1b3-0000-1000-8000-00805f9b34fb"
	CharEnergy    = "0000e1b4-0000-1000-8000-00805f9b34fb"
	CharAppliance = "0000e1b5-0000-1000-8000-00805f9b34fb"
	CharSettings  = "0000e1b6-0000-1000-8000-00805f9b34fb"
)

// Appliance is the load category the monitor believes it is metering.
type Appliance string

// Detected appliance categories.
const (
	ApplianceUnknown    Appliance = "unknown"
	ApplianceFridge     Appliance = "fridge"
	ApplianceWasher     Appliance = "washer"
	ApplianceDryer      Appliance = "dryer"
	ApplianceDishwasher Appliance = "dishwasher"
	ApplianceOven       Appliance = "oven"
	ApplianceKettle     Appliance = "kettle"
	ApplianceHeater     Appliance = "heater"
	ApplianceTelevision Appliance = "television"
)

// Appliance wire codes. The code byte is fixed by the hardware protocol.
var applianceCodes = map[byte]Appliance{
	0x00: ApplianceUnknown,
	0x01: ApplianceFridge,
	0x02: ApplianceWasher,
	0x03: ApplianceDryer,
	0x04: ApplianceDishwasher,
	0x05: ApplianceOven,
	0x06: ApplianceKettle,
	0x07: ApplianceHeater,
	0x08: ApplianceTelevision,
}

var applianceBytes = func() map[Appliance]byte {
	m := make(map[Appliance]byte, len(applianceCodes))
	for code, a := range applianceCodes {
		m[a] = code
	}
	return m
}()

// DecodePower decodes a 2-byte big-endian power value in watts.
func DecodePower(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("power: expected 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodePower encodes a power value in watts as 2 bytes big-endian.
func EncodePower(watts uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, watts)
	return b
}

// DecodeVoltage decodes a 2-byte big-endian voltage in tenths of a
// volt.
func DecodeVoltage(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("voltage: expected 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodeVoltage encodes a voltage in tenths of a volt.
func EncodeVoltage(decivolts uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, decivolts)
	return b
}

// DecodeCurrent decodes a 2-byte big-endian current in hundredths of
// an amp.
func DecodeCurrent(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("current: expected 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodeCurrent encodes a current in hundredths of an amp.
func EncodeCurrent(centiamps uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, centiamps)
	return b
}

// DecodeEnergy decodes a 4-byte big-endian cumulative energy value in
// thousandths of a kWh.
func DecodeEnergy(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("energy: expected 4 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// EncodeEnergy encodes a cumulative energy value in thousandths of a
// kWh as 4 bytes big-endian.
func EncodeEnergy(milliKWh uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, milliKWh)
	return b
}

// DecodeAppliance decodes the detected-appliance code byte. Codes
// outside the table decode as unknown rather than failing.
func DecodeAppliance(b []byte) (Appliance, error) {
	if len(b) != 1 {
		return ApplianceUnknown, fmt.Errorf("appliance: expected 1 byte, got %d", len(b))
	}
	if a, ok := applianceCodes[b[0]]; ok {
		return a, nil
	}
	return ApplianceUnknown, nil
}

// EncodeAppliance encodes an appliance category as its code byte.
func EncodeAppliance(a Appliance) []byte {
	return []byte{applianceBytes[a]}
}

// Settings record flag bits (byte 0).
const flagAlertsEnabled = 1 << 0

// EncodeSettings packs settings into the 3-byte wire record:
// byte 0 flags, bytes 1-2 high-usage threshold in watts (big-endian).
func EncodeSettings(s Settings) []byte {
	var flags byte
	if s.AlertsEnabled {
		flags |= flagAlertsEnabled
	}
	b := make([]byte, 3)
	b[0] = flags
	binary.BigEndian.PutUint16(b[1:], s.HighUsageThresholdWatts)
	return b
}

// DecodeSettings unpacks the 3-byte settings record.
func DecodeSettings(b []byte) (Settings, error) {
	if len(b) != 3 {
		return Settings{}, fmt.Errorf("settings: expected 3 bytes, got %d", len(b))
	}
	return Settings{
		AlertsEnabled:           b[0]&flagAlertsEnabled != 0,
		HighUsageThresholdWatts: binary.BigEndian.Uint16(b[1:]),
	}, nil
}
