package userconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/verdant-home/verdant-core/internal/automation"
)

// configKey builds the storage key for a user's aggregate.
func configKey(userID string) string {
	return "config/" + userID
}

// Repository manages SmartHomeConfig aggregates over the blob Store.
// All reads deserialize the stored aggregate; all mutations go through
// a read-modify-write of the whole aggregate (last-write-wins, single
// writer per user in practice since the orchestrator serialises calls).
type Repository struct {
	store Store
}

// NewRepository creates a configuration repository over store.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// GetConfig retrieves a user's configuration aggregate.
//
// Returns:
//   - *SmartHomeConfig: The stored aggregate
//   - error: ErrConfigNotFound if the user has no config yet
func (r *Repository) GetConfig(ctx context.Context, userID string) (*SmartHomeConfig, error) {
	raw, err := r.store.Get(ctx, configKey(userID))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: user %s", ErrConfigNotFound, userID)
		}
		return nil, err
	}

	var cfg SmartHomeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config for user %s: %w", userID, err)
	}
	return &cfg, nil
}

// SaveConfig persists a user's configuration aggregate, refreshing its
// updated timestamp.
func (r *Repository) SaveConfig(ctx context.Context, cfg *SmartHomeConfig) error {
	if cfg == nil || cfg.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidConfig)
	}

	cfg.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config for user %s: %w", cfg.UserID, err)
	}
	return r.store.Set(ctx, configKey(cfg.UserID), raw)
}

// InitializeEmptyConfig ensures a user has a configuration aggregate,
// creating an empty default if absent. The existing aggregate is
// returned untouched when present.
func (r *Repository) InitializeEmptyConfig(ctx context.Context, userID string) (*SmartHomeConfig, error) {
	cfg, err := r.GetConfig(ctx, userID)
	if err == nil {
		return cfg, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	cfg = emptyConfig(userID)
	if err := r.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("creating empty config: %w", err)
	}
	return cfg, nil
}

// GetRules returns a user's automation rules.
func (r *Repository) GetRules(ctx context.Context, userID string) ([]automation.Rule, error) {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cfg.AutomationRules, nil
}

// AddRule appends an automation rule to a user's configuration.
// Create/update timestamps are stamped here.
func (r *Repository) AddRule(ctx context.Context, userID string, rule automation.Rule) error {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	cfg.AutomationRules = append(cfg.AutomationRules, rule)
	return r.SaveConfig(ctx, cfg)
}

// UpdateRule replaces a rule by ID, preserving its creation timestamp.
//
// Returns:
//   - error: ErrRuleNotFound if no rule has the given ID
func (r *Repository) UpdateRule(ctx context.Context, userID string, rule automation.Rule) error {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return err
	}

	for i, existing := range cfg.AutomationRules {
		if existing.ID == rule.ID {
			rule.CreatedAt = existing.CreatedAt
			rule.UpdatedAt = time.Now().UTC()
			cfg.AutomationRules[i] = rule
			return r.SaveConfig(ctx, cfg)
		}
	}
	return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
}

// DeleteRule removes a rule by ID.
//
// Returns:
//   - error: ErrRuleNotFound if no rule has the given ID
func (r *Repository) DeleteRule(ctx context.Context, userID, ruleID string) error {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return err
	}

	for i, existing := range cfg.AutomationRules {
		if existing.ID == ruleID {
			cfg.AutomationRules = append(cfg.AutomationRules[:i], cfg.AutomationRules[i+1:]...)
			return r.SaveConfig(ctx, cfg)
		}
	}
	return fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
}

// GetDeviceSettings returns the stored settings for one device, or nil
// if none are recorded.
func (r *Repository) GetDeviceSettings(ctx context.Context, userID, deviceID string) (DeviceSettings, error) {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cfg.DeviceSettings[deviceID], nil
}

// SetDeviceSettings stores the settings for one device.
func (r *Repository) SetDeviceSettings(ctx context.Context, userID, deviceID string, settings DeviceSettings) error {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return err
	}

	if cfg.DeviceSettings == nil {
		cfg.DeviceSettings = map[string]DeviceSettings{}
	}
	cfg.DeviceSettings[deviceID] = settings
	return r.SaveConfig(ctx, cfg)
}

// DeleteDeviceSettings removes the settings for one device. Deleting
// settings a device never had is a no-op.
func (r *Repository) DeleteDeviceSettings(ctx context.Context, userID, deviceID string) error {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return err
	}

	if _, ok := cfg.DeviceSettings[deviceID]; !ok {
		return nil
	}
	delete(cfg.DeviceSettings, deviceID)
	return r.SaveConfig(ctx, cfg)
}

// ReplaceNotificationPreferences swaps a user's notification
// preference list wholesale.
func (r *Repository) ReplaceNotificationPreferences(ctx context.Context, userID string, prefs []NotificationPreference) error {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return err
	}

	if prefs == nil {
		prefs = []NotificationPreference{}
	}
	cfg.NotificationPreferences = prefs
	return r.SaveConfig(ctx, cfg)
}

// LinkVoicePlatform records a voice-assistant account link, replacing
// any previous link for the same platform.
func (r *Repository) LinkVoicePlatform(ctx context.Context, userID string, platform VoicePlatform) error {
	cfg, err := r.GetConfig(ctx, userID)
	if err != nil {
		return err
	}

	platform.LinkedAt = time.Now().UTC()
	for i, existing := range cfg.VoicePlatforms {
		if existing.Platform == platform.Platform {
			cfg.VoicePlatforms[i] = platform
			return r.SaveConfig(ctx, cfg)
		}
	}
	cfg.VoicePlatforms = append(cfg.VoicePlatforms, platform)
	return r.SaveConfig(ctx, cfg)
}

// isNotFound reports whether err is the missing-key or missing-config
// condition.
func isNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrConfigNotFound)
}
