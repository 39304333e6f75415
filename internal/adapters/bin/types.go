package bin

import (
	"fmt"
	"time"
)

// Measurement is a timestamped decoded snapshot of one bin's state.
// One current measurement per connected device, merged field-by-field
// as characteristic updates arrive.
type Measurement struct {
	Timestamp   time.Time `json:"timestamp"`
	WeightGrams uint16    `json:"weight_grams"`
	FillLevel   uint8     `json:"fill_level"`
	Material    Material  `json:"material"`
	Battery     uint8     `json:"battery"`
}

// Settings are the user-tunable bin parameters, created with defaults
// on first connection.
type Settings struct {
	// FullThreshold is the fill-level percentage at which a bin-full
	// alert fires.
	FullThreshold uint8 `json:"full_threshold"`

	AlertsEnabled      bool `json:"alerts_enabled"`
	CollectionReminder bool `json:"collection_reminder"`
}

// DefaultSettings returns the factory defaults applied on first
// connection.
func DefaultSettings() Settings {
	return Settings{
		FullThreshold:      80,
		AlertsEnabled:      true,
		CollectionReminder: false,
	}
}

// SettingsUpdate is a partial settings change; nil fields keep their
// stored value.
type SettingsUpdate struct {
	FullThreshold      *uint8 `json:"full_threshold,omitempty"`
	AlertsEnabled      *bool  `json:"alerts_enabled,omitempty"`
	CollectionReminder *bool  `json:"collection_reminder,omitempty"`
}

// merge applies an update over stored settings.
func (s Settings) merge(u SettingsUpdate) Settings {
	if u.FullThreshold != nil {
		s.FullThreshold = *u.FullThreshold
	}
	if u.AlertsEnabled != nil {
		s.AlertsEnabled = *u.AlertsEnabled
	}
	if u.CollectionReminder != nil {
		s.CollectionReminder = *u.CollectionReminder
	}
	return s
}

// Stats are running derived statistics per bin.
type Stats struct {
	// TotalWeightGrams is the cumulative sum of weight deltas observed
	// while weight was increasing (items added).
	TotalWeightGrams uint64 `json:"total_weight_grams"`

	// MaterialCounts tallies detected material categories.
	MaterialCounts map[Material]int `json:"material_counts"`

	// Updates counts measurement updates processed.
	Updates int `json:"updates"`
}

func newStats() *Stats {
	return &Stats{MaterialCounts: make(map[Material]int)}
}

// Tip thresholds. Advisory only, no control decisions hang off these.
const (
	tipFillUrgent    = 90
	tipBatteryLow    = 20
	tipPlasticSkew   = 0.6
	tipMinCategories = 5
)

// Tips compares the latest measurement and recent history against
// fixed domain thresholds and returns zero or more human-readable
// recommendations.
func Tips(current Measurement, stats *Stats) []string {
	var tips []string

	if current.FillLevel >= tipFillUrgent {
		tips = append(tips, fmt.Sprintf("Bin is %d%% full. Empty it soon to avoid overflow.", current.FillLevel))
	}
	if current.Battery <= tipBatteryLow {
		tips = append(tips, fmt.Sprintf("Sensor battery at %d%%. Recharge or replace it.", current.Battery))
	}

	if stats != nil {
		total := 0
		for _, n := range stats.MaterialCounts {
			total += n
		}
		if total >= tipMinCategories {
			if plastic := stats.MaterialCounts[MaterialPlastic]; float64(plastic)/float64(total) >= tipPlasticSkew {
				tips = append(tips, "Most of your waste is plastic. Consider reusable alternatives to cut it down.")
			}
		}
	}

	return tips
}
