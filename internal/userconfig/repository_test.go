package userconfig

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/verdant-home/verdant-core/internal/automation"
	"github.com/verdant-home/verdant-core/internal/infrastructure/database"
)

// newTestRepo opens a fresh migrated SQLite store for one test.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return NewRepository(NewSQLiteStore(db.DB))
}

func TestStore_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	store := repo.store
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}

	if err := store.Set(ctx, "adapter/bin/dev-1/settings", []byte(`{"full_threshold":80}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get(ctx, "adapter/bin/dev-1/settings")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"full_threshold":80}` {
		t.Errorf("Get() = %s", got)
	}

	// Last write wins
	if err := store.Set(ctx, "adapter/bin/dev-1/settings", []byte(`{"full_threshold":90}`)); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}
	got, err = store.Get(ctx, "adapter/bin/dev-1/settings")
	if err != nil {
		t.Fatalf("Get() after overwrite error = %v", err)
	}
	if string(got) != `{"full_threshold":90}` {
		t.Errorf("Get() after overwrite = %s", got)
	}

	if err := store.Delete(ctx, "adapter/bin/dev-1/settings"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "adapter/bin/dev-1/settings"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrKeyNotFound", err)
	}

	// Deleting an absent key is a no-op
	if err := store.Delete(ctx, "adapter/bin/dev-1/settings"); err != nil {
		t.Errorf("repeat Delete() error = %v", err)
	}
}

func TestStore_KeysPrefix(t *testing.T) {
	repo := newTestRepo(t)
	store := repo.store
	ctx := context.Background()

	for _, key := range []string{"adapter/bin/a/settings", "adapter/bin/b/settings", "adapter/energy/a/settings"} {
		if err := store.Set(ctx, key, []byte("{}")); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	keys, err := store.Keys(ctx, "adapter/bin/")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys(adapter/bin/) = %v, want 2 entries", keys)
	}
}

func TestInitializeEmptyConfig(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetConfig(ctx, "user-1"); !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("GetConfig() error = %v, want ErrConfigNotFound", err)
	}

	cfg, err := repo.InitializeEmptyConfig(ctx, "user-1")
	if err != nil {
		t.Fatalf("InitializeEmptyConfig() error = %v", err)
	}
	if cfg.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", cfg.UserID)
	}
	if cfg.AutomationRules == nil || cfg.DeviceSettings == nil || cfg.NotificationPreferences == nil {
		t.Error("empty config has nil collections")
	}

	// Existing config must be returned untouched
	cfg.DeviceSettings["dev-1"] = DeviceSettings{"full_threshold": 80}
	if err := repo.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	again, err := repo.InitializeEmptyConfig(ctx, "user-1")
	if err != nil {
		t.Fatalf("second InitializeEmptyConfig() error = %v", err)
	}
	if len(again.DeviceSettings) != 1 {
		t.Error("InitializeEmptyConfig overwrote an existing config")
	}
}

func TestConfig_LosslessRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	cfg, err := repo.InitializeEmptyConfig(ctx, "user-1")
	if err != nil {
		t.Fatalf("InitializeEmptyConfig() error = %v", err)
	}
	cfg.VoicePlatforms = []VoicePlatform{{Platform: PlatformGoogle, AccountID: "acc-1"}}
	cfg.NotificationPreferences = []NotificationPreference{
		{AlertType: "bin_full", Enabled: true, Channels: []string{"push"}},
	}
	if err := repo.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	got, err := repo.GetConfig(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if len(got.VoicePlatforms) != 1 || got.VoicePlatforms[0].Platform != PlatformGoogle {
		t.Errorf("VoicePlatforms = %v", got.VoicePlatforms)
	}
	if len(got.NotificationPreferences) != 1 || got.NotificationPreferences[0].AlertType != "bin_full" {
		t.Errorf("NotificationPreferences = %v", got.NotificationPreferences)
	}
}

func TestRuleCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.InitializeEmptyConfig(ctx, "user-1"); err != nil {
		t.Fatalf("InitializeEmptyConfig() error = %v", err)
	}

	rule := automation.Rule{
		ID:              "rule-1",
		Name:            "Bin full alert",
		Enabled:         true,
		TriggerDeviceID: "bin-1",
		TriggerMetric:   "fill_level",
		Condition:       automation.ConditionGreaterOrEqual,
		TriggerValue:    80,
		Actions:         []automation.Action{{DeviceID: "hub", Name: "notify"}},
	}
	if err := repo.AddRule(ctx, "user-1", rule); err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	rules, err := repo.GetRules(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetRules() error = %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "rule-1" {
		t.Fatalf("GetRules() = %v, want [rule-1]", rules)
	}
	if rules[0].CreatedAt.IsZero() {
		t.Error("AddRule did not stamp CreatedAt")
	}

	rule.Name = "Bin nearly full"
	rule.Enabled = false
	if err := repo.UpdateRule(ctx, "user-1", rule); err != nil {
		t.Fatalf("UpdateRule() error = %v", err)
	}
	rules, _ = repo.GetRules(ctx, "user-1")
	if rules[0].Name != "Bin nearly full" || rules[0].Enabled {
		t.Errorf("UpdateRule not applied: %+v", rules[0])
	}

	missing := rule
	missing.ID = "ghost"
	if err := repo.UpdateRule(ctx, "user-1", missing); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("UpdateRule(ghost) error = %v, want ErrRuleNotFound", err)
	}

	if err := repo.DeleteRule(ctx, "user-1", "rule-1"); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if err := repo.DeleteRule(ctx, "user-1", "rule-1"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second DeleteRule() error = %v, want ErrRuleNotFound", err)
	}
}

func TestDeviceSettingsCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.InitializeEmptyConfig(ctx, "user-1"); err != nil {
		t.Fatalf("InitializeEmptyConfig() error = %v", err)
	}

	if err := repo.SetDeviceSettings(ctx, "user-1", "bin-1", DeviceSettings{"full_threshold": 85}); err != nil {
		t.Fatalf("SetDeviceSettings() error = %v", err)
	}

	got, err := repo.GetDeviceSettings(ctx, "user-1", "bin-1")
	if err != nil {
		t.Fatalf("GetDeviceSettings() error = %v", err)
	}
	// JSON round-trip delivers numbers as float64
	if got["full_threshold"] != float64(85) {
		t.Errorf("full_threshold = %v, want 85", got["full_threshold"])
	}

	none, err := repo.GetDeviceSettings(ctx, "user-1", "unknown")
	if err != nil {
		t.Fatalf("GetDeviceSettings(unknown) error = %v", err)
	}
	if none != nil {
		t.Errorf("GetDeviceSettings(unknown) = %v, want nil", none)
	}

	if err := repo.DeleteDeviceSettings(ctx, "user-1", "bin-1"); err != nil {
		t.Fatalf("DeleteDeviceSettings() error = %v", err)
	}
	if err := repo.DeleteDeviceSettings(ctx, "user-1", "bin-1"); err != nil {
		t.Errorf("repeat DeleteDeviceSettings() error = %v", err)
	}
}

func TestLinkVoicePlatform_ReplacesSamePlatform(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.InitializeEmptyConfig(ctx, "user-1"); err != nil {
		t.Fatalf("InitializeEmptyConfig() error = %v", err)
	}

	if err := repo.LinkVoicePlatform(ctx, "user-1", VoicePlatform{Platform: PlatformAlexa, AccountID: "a1"}); err != nil {
		t.Fatalf("LinkVoicePlatform() error = %v", err)
	}
	if err := repo.LinkVoicePlatform(ctx, "user-1", VoicePlatform{Platform: PlatformAlexa, AccountID: "a2"}); err != nil {
		t.Fatalf("second LinkVoicePlatform() error = %v", err)
	}

	cfg, err := repo.GetConfig(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if len(cfg.VoicePlatforms) != 1 || cfg.VoicePlatforms[0].AccountID != "a2" {
		t.Errorf("VoicePlatforms = %v, want single alexa link a2", cfg.VoicePlatforms)
	}
}
