package appliance

import (
	"fmt"
	"time"

	"github.com/verdant-home/verdant-core/internal/adapters"
)

// Status is a timestamped decoded snapshot of one appliance's state.
type Status struct {
	Timestamp time.Time `json:"timestamp"`

	State State `json:"state"`
	Mode  Mode  `json:"mode"`

	// TemperatureDeciC is the reported temperature in tenths of a
	// degree Celsius.
	TemperatureDeciC uint16 `json:"temperature_deci_c"`

	ErrorCode ErrorCode `json:"error_code"`
}

// Celsius returns the reported temperature in degrees Celsius.
func (s Status) Celsius() float64 {
	return float64(s.TemperatureDeciC) / 10
}

// ScheduleAction is what a schedule does when it fires.
type ScheduleAction string

// Schedule actions.
const (
	SchedulePowerOn  ScheduleAction = "power_on"
	SchedulePowerOff ScheduleAction = "power_off"
)

// Schedule is a time-based power action. Days are time.Weekday values
// (0 = Sunday); empty means every day.
type Schedule struct {
	ID      string         `json:"id"`
	Label   string         `json:"label,omitempty"`
	Enabled bool           `json:"enabled"`
	Hour    uint8          `json:"hour"`
	Minute  uint8          `json:"minute"`
	Days    []int          `json:"days,omitempty"`
	Action  ScheduleAction `json:"action"`
}

// CronSpec renders the schedule as a standard 5-field cron expression.
func (s Schedule) CronSpec() string {
	days := "*"
	if len(s.Days) > 0 {
		days = ""
		for i, d := range s.Days {
			if i > 0 {
				days += ","
			}
			days += fmt.Sprintf("%d", d)
		}
	}
	return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, days)
}

// Validate checks the schedule's time and action fields.
func (s Schedule) Validate() error {
	if s.Hour > 23 {
		return fmt.Errorf("%w: schedule hour %d out of range", adapters.ErrInvalidCommand, s.Hour)
	}
	if s.Minute > 59 {
		return fmt.Errorf("%w: schedule minute %d out of range", adapters.ErrInvalidCommand, s.Minute)
	}
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: schedule day %d out of range", adapters.ErrInvalidCommand, d)
		}
	}
	if s.Action != SchedulePowerOn && s.Action != SchedulePowerOff {
		return fmt.Errorf("%w: unknown schedule action %q", adapters.ErrInvalidCommand, s.Action)
	}
	return nil
}

// maxSchedules bounds the per-device schedule slots the hardware holds.
const maxSchedules = 16

// Settings are the user-tunable appliance parameters, including the
// persisted schedule list.
type Settings struct {
	AlertsEnabled bool       `json:"alerts_enabled"`
	Schedules     []Schedule `json:"schedules,omitempty"`
}

// DefaultSettings returns the factory defaults applied on first
// connection.
func DefaultSettings() Settings {
	return Settings{AlertsEnabled: true}
}

// SettingsUpdate is a partial settings change; nil fields keep their
// stored value. Schedules are managed through the schedule operations,
// not through settings updates.
type SettingsUpdate struct {
	AlertsEnabled *bool `json:"alerts_enabled,omitempty"`
}

func (s Settings) merge(u SettingsUpdate) Settings {
	if u.AlertsEnabled != nil {
		s.AlertsEnabled = *u.AlertsEnabled
	}
	return s
}

// Stats are running derived statistics per appliance.
type Stats struct {
	// RunCount counts transitions into the running state.
	RunCount int `json:"run_count"`

	// ErrorCount counts transitions from no fault to a fault.
	ErrorCount int `json:"error_count"`

	// ModeCounts tallies observed mode changes.
	ModeCounts map[Mode]int `json:"mode_counts"`

	// Updates counts status updates processed.
	Updates int `json:"updates"`
}

func newStats() *Stats {
	return &Stats{ModeCounts: make(map[Mode]int)}
}

// Tip thresholds. Advisory only.
const (
	tipHighTempDeciC  = 900
	tipEcoSuggestRuns = 10
)

// Tips compares the latest status and running statistics against fixed
// domain thresholds and returns zero or more human-readable
// recommendations.
func Tips(current Status, stats Stats) []string {
	var tips []string

	if current.ErrorCode != ErrorNone {
		tips = append(tips, fmt.Sprintf("Fault reported (%s). Power-cycle the appliance; contact support if it persists.", current.ErrorCode))
	}

	if current.TemperatureDeciC >= tipHighTempDeciC {
		tips = append(tips, fmt.Sprintf("Running hot at %.1f°C. Check ventilation around the appliance.", current.Celsius()))
	}

	if stats.RunCount >= tipEcoSuggestRuns && stats.ModeCounts[ModeEco] == 0 {
		tips = append(tips, "You never use eco mode. Eco cycles cut energy use on most loads.")
	}

	return tips
}
