package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Verdant Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Home     HomeConfig     `yaml:"home"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	BLE      BLEConfig      `yaml:"ble"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// HomeConfig contains installation-specific information.
type HomeConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the reading
// audit trail. Optional; in-memory and SQLite state is authoritative
// either way.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BLEConfig contains Bluetooth transport settings.
type BLEConfig struct {
	// ScanTimeout is the maximum scan duration in seconds before
	// scanning is force-stopped.
	ScanTimeout int `yaml:"scan_timeout"`

	// RSSIDelta is the minimum signal-strength change before a
	// previously discovered device is re-announced.
	RSSIDelta int `yaml:"rssi_delta"`

	// PermissionMode selects the platform permission request shape:
	// "legacy" requests a single coarse-location grant (older OS
	// versions), "bundled" requests the {scan, connect, location} set.
	PermissionMode string `yaml:"permission_mode"`
}

// AlertsConfig contains threshold alert and rate limiting settings.
type AlertsConfig struct {
	// TriggerMode controls threshold alert re-arming:
	// "edge" fires once per upward crossing and re-arms only when the
	// value drops back below the threshold; "level" fires on every
	// reading at or above the threshold (the rate limiter is then the
	// only damper).
	TriggerMode string `yaml:"trigger_mode"`

	Buckets AlertBucketsConfig `yaml:"buckets"`
}

// AlertBucketsConfig contains per-priority token bucket parameters.
type AlertBucketsConfig struct {
	Critical BucketConfig `yaml:"critical"`
	High     BucketConfig `yaml:"high"`
	Medium   BucketConfig `yaml:"medium"`
	Low      BucketConfig `yaml:"low"`
}

// BucketConfig describes a single token bucket: Burst tokens available
// immediately, Refill tokens added per Interval seconds.
type BucketConfig struct {
	Burst    int `yaml:"burst"`
	Refill   int `yaml:"refill"`
	Interval int `yaml:"interval"`
}

// BLE transport defaults.
const (
	defaultScanTimeout = 30
	defaultRSSIDelta   = 10
)

// Load reads, parses, and validates a configuration file.
//
// Defaults are applied first, then the YAML file, then environment
// variable overrides of the form VERDANT_SECTION_KEY
// (e.g. VERDANT_DATABASE_PATH, VERDANT_MQTT_HOST).
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Bucket parameters are chosen so critical alerts always get through
// quickly while low-priority chatter is throttled hard.
func defaultConfig() *Config {
	return &Config{
		Home: HomeConfig{
			ID:       "home-001",
			Name:     "Verdant Home",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/verdant.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "verdant-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		BLE: BLEConfig{
			ScanTimeout:    defaultScanTimeout,
			RSSIDelta:      defaultRSSIDelta,
			PermissionMode: "bundled",
		},
		Alerts: AlertsConfig{
			TriggerMode: "edge",
			Buckets: AlertBucketsConfig{
				Critical: BucketConfig{Burst: 3, Refill: 10, Interval: 300},
				High:     BucketConfig{Burst: 5, Refill: 15, Interval: 900},
				Medium:   BucketConfig{Burst: 8, Refill: 20, Interval: 1800},
				Low:      BucketConfig{Burst: 10, Refill: 30, Interval: 3600},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VERDANT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("VERDANT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("VERDANT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VERDANT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VERDANT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("VERDANT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// BLE
	if v := os.Getenv("VERDANT_BLE_SCAN_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BLE.ScanTimeout = n
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Home.ID == "" {
		errs = append(errs, "home.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.BLE.ScanTimeout <= 0 {
		errs = append(errs, "ble.scan_timeout must be positive")
	}
	switch c.BLE.PermissionMode {
	case "legacy", "bundled":
	default:
		errs = append(errs, `ble.permission_mode must be "legacy" or "bundled"`)
	}

	switch c.Alerts.TriggerMode {
	case "edge", "level":
	default:
		errs = append(errs, `alerts.trigger_mode must be "edge" or "level"`)
	}
	buckets := []struct {
		name   string
		bucket BucketConfig
	}{
		{"critical", c.Alerts.Buckets.Critical},
		{"high", c.Alerts.Buckets.High},
		{"medium", c.Alerts.Buckets.Medium},
		{"low", c.Alerts.Buckets.Low},
	}
	for _, b := range buckets {
		if b.bucket.Burst <= 0 || b.bucket.Refill <= 0 || b.bucket.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("alerts.buckets.%s: burst, refill and interval must be positive", b.name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetScanTimeout returns the BLE scan timeout as a Duration.
func (c *Config) GetScanTimeout() time.Duration {
	return time.Duration(c.BLE.ScanTimeout) * time.Second
}
