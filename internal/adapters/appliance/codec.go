package appliance

import (
	"encoding/binary"
	"fmt"
)

// Known appliance service UUIDs, one per hardware family.
const (
	ServiceUUIDMajor = "0000a1a0-0000-1000-8000-00805f9b34fb"
	ServiceUUIDMinor = "0000a1a1-0000-1000-8000-00805f9b34fb"
)

// ServiceUUIDs returns the service identifiers this adapter claims.
func ServiceUUIDs() []string {
	return []string{ServiceUUIDMajor, ServiceUUIDMinor}
}

// Characteristic UUIDs shared by both hardware families.
const (
	CharStatus      = "0000a1b1-0000-1000-8000-00805f9b34fb"
	CharMode        = "0000a1b2-0000-1000-8000-00805f9b34fb"
	CharTemperature = "0000a1b3-0000-1000-8000-00805f9b34fb"
	CharError       = "0000a1b4-0000-1000-8000-00805f9b34fb"
	CharCommand     = "0000a1b5-0000-1000-8000-00805f9b34fb"
	CharSchedule    = "0000a1b6-0000-1000-8000-00805f9b34fb"
)

// State is the appliance run state.
type State string

// Appliance run states.
const (
	StateOff     State = "off"
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateError   State = "error"
)

var stateCodes = map[byte]State{
	0x00: StateOff,
	0x01: StateIdle,
	0x02: StateRunning,
	0x03: StatePaused,
	0x04: StateError,
}

// Mode is the appliance operating programme.
type Mode string

// Operating modes.
const (
	ModeUnknown Mode = "unknown"
	ModeEco     Mode = "eco"
	ModeNormal  Mode = "normal"
	ModeBoost   Mode = "boost"
	ModeAuto    Mode = "auto"
)

var modeCodes = map[byte]Mode{
	0x00: ModeUnknown,
	0x01: ModeEco,
	0x02: ModeNormal,
	0x03: ModeBoost,
	0x04: ModeAuto,
}

var modeBytes = map[Mode]byte{
	ModeUnknown: 0x00,
	ModeEco:     0x01,
	ModeNormal:  0x02,
	ModeBoost:   0x03,
	ModeAuto:    0x04,
}

// ErrorCode is the appliance fault category.
type ErrorCode string

// Fault categories.
const (
	ErrorNone     ErrorCode = "none"
	ErrorOverheat ErrorCode = "overheat"
	ErrorMotor    ErrorCode = "motor"
	ErrorSensor   ErrorCode = "sensor"
	ErrorWater    ErrorCode = "water"
	ErrorPower    ErrorCode = "power"
)

var errorCodes = map[byte]ErrorCode{
	0x00: ErrorNone,
	0x01: ErrorOverheat,
	0x02: ErrorMotor,
	0x03: ErrorSensor,
	0x04: ErrorWater,
	0x05: ErrorPower,
}

// DecodeState decodes the run-state code byte. Codes outside the table
// decode as error rather than failing.
func DecodeState(b []byte) (State, error) {
	if len(b) != 1 {
		return StateOff, fmt.Errorf("state: expected 1 byte, got %d", len(b))
	}
	if s, ok := stateCodes[b[0]]; ok {
		return s, nil
	}
	return StateError, nil
}

// DecodeMode decodes the mode code byte. Unknown codes decode as
// unknown.
func DecodeMode(b []byte) (Mode, error) {
	if len(b) != 1 {
		return ModeUnknown, fmt.Errorf("mode: expected 1 byte, got %d", len(b))
	}
	if m, ok := modeCodes[b[0]]; ok {
		return m, nil
	}
	return ModeUnknown, nil
}

// EncodeMode encodes an operating mode as its code byte.
func EncodeMode(m Mode) []byte {
	return []byte{modeBytes[m]}
}

// DecodeTemperature decodes a 2-byte big-endian temperature in tenths
// of a degree Celsius.
func DecodeTemperature(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("temperature: expected 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// EncodeTemperature encodes a temperature in tenths of a degree.
func EncodeTemperature(decidegrees uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, decidegrees)
	return b
}

// DecodeError decodes the fault code byte. Unknown codes map to power
// faults so they still surface.
func DecodeError(b []byte) (ErrorCode, error) {
	if len(b) != 1 {
		return ErrorNone, fmt.Errorf("error code: expected 1 byte, got %d", len(b))
	}
	if e, ok := errorCodes[b[0]]; ok {
		return e, nil
	}
	return ErrorPower, nil
}

// Command opcode bytes (byte 0 of the command characteristic).
const (
	opPower          = 0x01
	opSetMode        = 0x02
	opSetTemperature = 0x03
)

// EncodePowerCommand encodes a power on/off command.
func EncodePowerCommand(on bool) []byte {
	if on {
		return []byte{opPower, 0x01}
	}
	return []byte{opPower, 0x00}
}

// EncodeModeCommand encodes a set-mode command.
func EncodeModeCommand(m Mode) []byte {
	return []byte{opSetMode, modeBytes[m]}
}

// EncodeTemperatureCommand encodes a set-temperature command with the
// target in tenths of a degree.
func EncodeTemperatureCommand(decidegrees uint16) []byte {
	b := make([]byte, 3)
	b[0] = opSetTemperature
	binary.BigEndian.PutUint16(b[1:], decidegrees)
	return b
}

// Schedule record flag bits (byte 1).
const scheduleFlagEnabled = 1 << 0

// EncodeScheduleRecord packs one schedule slot for the device:
// byte 0 slot, byte 1 flags, byte 2 hour, byte 3 minute, byte 4 action
// (1 = power on, 0 = power off).
func EncodeScheduleRecord(slot uint8, s Schedule) []byte {
	var flags byte
	if s.Enabled {
		flags |= scheduleFlagEnabled
	}
	action := byte(0x00)
	if s.Action == SchedulePowerOn {
		action = 0x01
	}
	return []byte{slot, flags, s.Hour, s.Minute, action}
}

// EncodeScheduleClear packs a slot-clear record.
func EncodeScheduleClear(slot uint8) []byte {
	return []byte{slot, 0x00, 0x00, 0x00, 0x00}
}
