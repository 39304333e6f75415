package userconfig

import (
	"time"

	"github.com/verdant-home/verdant-core/internal/automation"
)

// VoicePlatformKind identifies a linked voice-assistant platform.
type VoicePlatformKind string

// Supported voice platforms.
const (
	PlatformGoogle VoicePlatformKind = "google"
	PlatformAlexa  VoicePlatformKind = "alexa"
	PlatformSiri   VoicePlatformKind = "siri"
)

// VoicePlatform records one linked voice-assistant account.
// The OAuth flow itself happens outside the core; only the resulting
// link is stored here.
type VoicePlatform struct {
	Platform  VoicePlatformKind `json:"platform"`
	AccountID string            `json:"account_id,omitempty"`
	LinkedAt  time.Time         `json:"linked_at"`
}

// DeviceSettings holds per-device user settings as an opaque JSON map.
// The owning device-class adapter defines the fields; the aggregate
// only carries them.
type DeviceSettings map[string]any

// NotificationPreference controls delivery of one alert category.
type NotificationPreference struct {
	// AlertType matches Alert.Type from the adapters (bin_full,
	// high_power_usage, appliance_error, ...).
	AlertType string   `json:"alert_type"`
	Enabled   bool     `json:"enabled"`
	Channels  []string `json:"channels,omitempty"`
}

// SmartHomeConfig is the per-user configuration aggregate.
// Invariant: exactly one per user; absence triggers lazy creation of
// an empty default.
type SmartHomeConfig struct {
	UserID string `json:"user_id"`

	VoicePlatforms          []VoicePlatform           `json:"voice_platforms"`
	DeviceSettings          map[string]DeviceSettings `json:"device_settings"`
	AutomationRules         []automation.Rule         `json:"automation_rules"`
	NotificationPreferences []NotificationPreference  `json:"notification_preferences"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// emptyConfig returns the lazy default aggregate for a user.
func emptyConfig(userID string) *SmartHomeConfig {
	now := time.Now().UTC()
	return &SmartHomeConfig{
		UserID:                  userID,
		VoicePlatforms:          []VoicePlatform{},
		DeviceSettings:          map[string]DeviceSettings{},
		AutomationRules:         []automation.Rule{},
		NotificationPreferences: []NotificationPreference{},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}
