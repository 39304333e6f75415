package energy

import (
	"fmt"
	"time"
)

// Reading is a timestamped decoded snapshot of one monitor's state.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`

	PowerWatts       uint16 `json:"power_watts"`
	VoltageDecivolts uint16 `json:"voltage_decivolts"`
	CurrentCentiamps uint16 `json:"current_centiamps"`

	// EnergyMilliKWh is the hardware's cumulative consumption counter
	// in thousandths of a kWh.
	EnergyMilliKWh uint32 `json:"energy_milli_kwh"`

	DetectedAppliance Appliance `json:"detected_appliance"`
}

// Volts returns the mains voltage in volts.
func (r Reading) Volts() float64 {
	return float64(r.VoltageDecivolts) / 10
}

// Amps returns the current in amps.
func (r Reading) Amps() float64 {
	return float64(r.CurrentCentiamps) / 100
}

// KWh returns the cumulative energy in kWh.
func (r Reading) KWh() float64 {
	return float64(r.EnergyMilliKWh) / 1000
}

// Settings are the user-tunable monitor parameters.
type Settings struct {
	// HighUsageThresholdWatts is the instantaneous power at which a
	// high-usage alert fires.
	HighUsageThresholdWatts uint16 `json:"high_usage_threshold_watts"`

	AlertsEnabled bool `json:"alerts_enabled"`
}

// DefaultSettings returns the factory defaults applied on first
// connection.
func DefaultSettings() Settings {
	return Settings{
		HighUsageThresholdWatts: 2000,
		AlertsEnabled:           true,
	}
}

// SettingsUpdate is a partial settings change; nil fields keep their
// stored value.
type SettingsUpdate struct {
	HighUsageThresholdWatts *uint16 `json:"high_usage_threshold_watts,omitempty"`
	AlertsEnabled           *bool   `json:"alerts_enabled,omitempty"`
}

func (s Settings) merge(u SettingsUpdate) Settings {
	if u.HighUsageThresholdWatts != nil {
		s.HighUsageThresholdWatts = *u.HighUsageThresholdWatts
	}
	if u.AlertsEnabled != nil {
		s.AlertsEnabled = *u.AlertsEnabled
	}
	return s
}

// Stats are running derived statistics per monitor.
type Stats struct {
	// TotalEnergyMilliKWh accumulates increases of the hardware
	// counter, tolerating counter resets.
	TotalEnergyMilliKWh uint64 `json:"total_energy_milli_kwh"`

	// PeakPowerWatts is the highest instantaneous power observed.
	PeakPowerWatts uint16 `json:"peak_power_watts"`

	// ApplianceCounts tallies detected load categories.
	ApplianceCounts map[Appliance]int `json:"appliance_counts"`

	// Updates counts reading updates processed.
	Updates int `json:"updates"`
}

func newStats() *Stats {
	return &Stats{ApplianceCounts: make(map[Appliance]int)}
}

// Tip thresholds. Advisory only.
const (
	tipStandbyWatts  = 15
	tipHeavyLoadKWh  = 5.0
	tipMinHistoryLen = 10
)

// Tips compares the latest reading and recent history against fixed
// domain thresholds and returns zero or more human-readable
// recommendations.
func Tips(current Reading, settings Settings, history []Reading) []string {
	var tips []string

	if current.PowerWatts >= settings.HighUsageThresholdWatts {
		tips = append(tips, fmt.Sprintf("Drawing %d W right now. Check what is running on this circuit.", current.PowerWatts))
	}

	if len(history) >= tipMinHistoryLen {
		standby := true
		for _, r := range history[len(history)-tipMinHistoryLen:] {
			if r.PowerWatts == 0 || r.PowerWatts > tipStandbyWatts {
				standby = false
				break
			}
		}
		if standby {
			tips = append(tips, "This device has been idling in standby. Switching it off at the wall saves energy.")
		}
	}

	if current.KWh() >= tipHeavyLoadKWh {
		tips = append(tips, fmt.Sprintf("Cumulative consumption is %.1f kWh. Consider scheduling heavy loads off-peak.", current.KWh()))
	}

	return tips
}
