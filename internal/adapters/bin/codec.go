package bin

import (
	"encoding/binary"
	"fmt"
)

// Known bin service UUIDs, one per hardware generation.
const (
	ServiceUUIDGen1 = "0000b1a0-0000-1000-8000-00805f9b34fb"
	ServiceUUIDGen2 = "0000b1a1-0000-1000-8000-00805f9b34fb"
)

// ServiceUUIDs returns the service identifiers this adapter claims.
func ServiceUUIDs() []string {
	return []string{ServiceUUIDGen1, ServiceUUIDGen2}
}

// Characteristic UUIDs shared by both hardware generations.
const (
	CharWeight    = "0000b1b1-0000-1000-8000-00805f9b34fb"
	CharFillLevel = "0000b1b2-0000-1000-8000-00805f9b34fb"
	CharMaterial  = "0000b1b3-0000-1000-8000-00805f9b34fb"
	CharBattery   = "0000b1b4-0000-1000-8000-00805f9b34fb"
	CharSettings  = "0000b1b5-0000-1000-8000-00805f9b34fb"
)

// Material is the detected waste material category.
type Material string

// Material categories.
const (
	MaterialUnknown Material = "unknown"
	MaterialPlastic Material = "plastic"
	MaterialGlass   Material = "glass"
	MaterialMetal   Material = "metal"
	MaterialPaper   Material = "paper"
	MaterialOrganic Material = "organic"
	MaterialMixed   Material = "mixed"
)

// Material wire codes. The code byte is fixed by the hardware protocol.
var materialCodes = map[byte]Material{
	0x00: MaterialUnknown,
	0x01: MaterialPlastic,
	0x02: MaterialGlass,
	0x03: MaterialMetal,
	0x04: MaterialPaper,
	0x05: MaterialOrganic,
	0x06: MaterialMixed,
}

var materialBytes = map[Material]byte{
	MaterialUnknown: 0x00,
	MaterialPlastic: 0x01,
	MaterialGlass:   0x02,
	MaterialMetal:   0x03,
	MaterialPaper:   0x04,
	MaterialOrganic: 0x05,
	MaterialMixed:   0x06,
}

// DecodeWeight decodes a 2-byte big-endian weight in grams.
func DecodeWeight(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("weight: expected 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodeWeight encodes a weight in grams as 2 bytes big-endian.
func EncodeWeight(grams uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, grams)
	return b
}

// DecodeFillLevel decodes a 1-byte fill level percentage (0-100).
func DecodeFillLevel(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("fill level: expected 1 byte, got %d", len(b))
	}
	if b[0] > 100 {
		return 0, fmt.Errorf("fill level: %d out of range 0-100", b[0])
	}
	return b[0], nil
}

// EncodeFillLevel encodes a fill level percentage as 1 byte.
func EncodeFillLevel(level uint8) []byte {
	return []byte{level}
}

// DecodeMaterial decodes the material code byte. Codes outside the
// table decode as unknown rather than failing; newer hardware may add
// categories this firmware predates.
func DecodeMaterial(b []byte) (Material, error) {
	if len(b) != 1 {
		return MaterialUnknown, fmt.Errorf("material: expected 1 byte, got %d", len(b))
	}
	if m, ok := materialCodes[b[0]]; ok {
		return m, nil
	}
	return MaterialUnknown, nil
}

// EncodeMaterial encodes a material category as its code byte.
func EncodeMaterial(m Material) []byte {
	return []byte{materialBytes[m]}
}

// DecodeBattery decodes a 1-byte battery percentage (0-100).
func DecodeBattery(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("battery: expected 1 byte, got %d", len(b))
	}
	if b[0] > 100 {
		return 0, fmt.Errorf("battery: %d out of range 0-100", b[0])
	}
	return b[0], nil
}

// Settings record flag bits (byte 0).
const (
	flagAlertsEnabled      = 1 << 0
	flagCollectionReminder = 1 << 1
)

// EncodeSettings packs settings into the 2-byte wire record:
// byte 0 flags, byte 1 full threshold percentage.
func EncodeSettings(s Settings) []byte {
	var flags byte
	if s.AlertsEnabled {
		flags |= flagAlertsEnabled
	}
	if s.CollectionReminder {
		flags |= flagCollectionReminder
	}
	return []byte{flags, s.FullThreshold}
}

// DecodeSettings unpacks the 2-byte settings record.
func DecodeSettings(b []byte) (Settings, error) {
	if len(b) != 2 {
		return Settings{}, fmt.Errorf("settings: expected 2 bytes, got %d", len(b))
	}
	if b[1] > 100 {
		return Settings{}, fmt.Errorf("settings: threshold %d out of range 0-100", b[1])
	}
	return Settings{
		AlertsEnabled:      b[0]&flagAlertsEnabled != 0,
		CollectionReminder: b[0]&flagCollectionReminder != 0,
		FullThreshold:      b[1],
	}, nil
}
