// Verdant Core - Eco Smart Home Integration Layer
//
// This is the main entry point for the Verdant Core daemon. Verdant
// Core integrates BLE eco-devices (recycling bins, energy monitors,
// appliances) into one local-first system:
//   - Offline-first operation: SQLite is authoritative, cloud optional
//   - Open egress: decoded readings and alerts published over MQTT
//   - No vendor lock-in: byte-level device codecs, documented topics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/verdant-home/verdant-core/internal/adapters"
	"github.com/verdant-home/verdant-core/internal/adapters/appliance"
	"github.com/verdant-home/verdant-core/internal/adapters/bin"
	"github.com/verdant-home/verdant-core/internal/adapters/energy"
	"github.com/verdant-home/verdant-core/internal/automation"
	"github.com/verdant-home/verdant-core/internal/ble"
	"github.com/verdant-home/verdant-core/internal/device"
	"github.com/verdant-home/verdant-core/internal/events"
	"github.com/verdant-home/verdant-core/internal/infrastructure/config"
	"github.com/verdant-home/verdant-core/internal/infrastructure/database"
	"github.com/verdant-home/verdant-core/internal/infrastructure/influxdb"
	"github.com/verdant-home/verdant-core/internal/infrastructure/logging"
	"github.com/verdant-home/verdant-core/internal/infrastructure/mqtt"
	"github.com/verdant-home/verdant-core/internal/notify"
	"github.com/verdant-home/verdant-core/internal/smarthome"
	"github.com/verdant-home/verdant-core/internal/userconfig"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// registryTimeout bounds repository lookups in the discovery loop.
const registryTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Verdant Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Event bus - everything downstream fans out from here
	bus := events.NewBus()
	defer bus.Close()

	// BLE transport. The daemon ships without a host radio binding:
	// mobile embedders supply a platform Central, headless installs run
	// persistence, automation, and MQTT egress against stored state.
	transport := ble.NewManager(&headlessCentral{}, bus, ble.Config{
		ScanTimeout:    cfg.GetScanTimeout(),
		RSSIDelta:      cfg.BLE.RSSIDelta,
		PermissionMode: cfg.BLE.PermissionMode,
	})
	transport.SetLogger(log)

	// Repositories share one SQLite handle
	deviceRepo := device.NewSQLiteRepository(db.DB)
	store := userconfig.NewSQLiteStore(db.DB)
	configRepo := userconfig.NewRepository(store)

	// Device-class adapters
	triggerMode := adapters.TriggerMode(cfg.Alerts.TriggerMode)
	binAdapter := bin.New(transport, bus, store, triggerMode)
	binAdapter.SetLogger(log)
	energyAdapter := energy.New(transport, bus, store, triggerMode)
	energyAdapter.SetLogger(log)
	applianceAdapter := appliance.New(transport, bus, store)
	applianceAdapter.SetLogger(log)
	defer applianceAdapter.Close()

	// Classification registry: first matching predicate claims the
	// advertisement, so registration order is priority order.
	registry := adapters.NewRegistry()
	registry.Register(device.TypeBin, binAdapter.IsSupported, binAdapter)
	registry.Register(device.TypeEnergyMonitor, energyAdapter.IsSupported, energyAdapter)
	registry.Register(device.TypeAppliance, applianceAdapter.IsSupported, applianceAdapter)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional reading audit trail)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Rate-limited alert delivery over MQTT
	notifier := notify.NewNotifier(
		notify.NewRateLimiter(cfg.Alerts.Buckets),
		mqttClient,
		byte(cfg.MQTT.QoS),
	)
	notifier.SetLogger(log)

	// Orchestrator ties the layers together
	opts := smarthome.Options{
		Transport: transport,
		Devices:   deviceRepo,
		Config:    configRepo,
		Adapters: []smarthome.DeviceAdapter{
			binAdapter, energyAdapter, applianceAdapter,
		},
		Commander: applianceAdapter,
		Evaluator: automation.NewEvaluator(),
		Notifier:  notifier,
		Bus:       bus,
		Logger:    log,
	}
	if influxClient != nil {
		opts.Audit = influxClient
	}
	orch := smarthome.New(opts)
	defer orch.Close()

	// The daemon owns one installation; the home ID is its user
	if err := orch.Initialize(ctx, cfg.Home.ID); err != nil {
		return fmt.Errorf("initialising orchestrator: %w", err)
	}
	log.Info("orchestrator initialised", "home_id", cfg.Home.ID)

	// Background loops: discovery auto-registration and MQTT egress.
	// Closing their subscriptions (deferred below) stops them.
	var wg sync.WaitGroup
	defer wg.Wait()

	discoverySub, err := orch.Subscribe(events.KindDeviceDiscovered)
	if err != nil {
		return fmt.Errorf("subscribing to discovery events: %w", err)
	}
	defer discoverySub.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		runDiscoveryLoop(discoverySub, orch, registry, log)
	}()

	egressSub, err := orch.Subscribe(
		events.KindReadingUpdated,
		events.KindDeviceConnected,
		events.KindDeviceDisconnected,
		events.KindAutomationFired,
		events.KindSettingsChanged,
	)
	if err != nil {
		return fmt.Errorf("subscribing to egress events: %w", err)
	}
	defer egressSub.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		runEgressLoop(egressSub, mqttClient, byte(cfg.MQTT.QoS), log)
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Event loops (subscriptions close, goroutines drain)
	// 2. Orchestrator
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Appliance scheduler, event bus, database

	log.Info("Verdant Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VERDANT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VERDANT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// runDiscoveryLoop registers newly discovered supported devices.
// Advertisements claimed by an adapter predicate become device records;
// everything else is ignored. Already-known devices are left untouched.
func runDiscoveryLoop(sub *events.Subscription, orch *smarthome.Orchestrator, registry *adapters.Registry, log *logging.Logger) {
	for ev := range sub.Events() {
		adv, ok := ev.Payload.(ble.Advertisement)
		if !ok {
			continue
		}

		kind, claimed := registry.Classify(adv)
		if !claimed {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		if _, err := orch.GetDevice(ctx, adv.DeviceID); err == nil {
			cancel()
			continue
		} else if !errors.Is(err, device.ErrDeviceNotFound) {
			log.Warn("looking up discovered device", "device_id", adv.DeviceID, "error", err)
			cancel()
			continue
		}

		name := adv.Name
		if name == "" {
			name = string(kind)
		}
		err := orch.SaveDevice(ctx, &device.Device{
			ID:             adv.DeviceID,
			Name:           name,
			Type:           kind,
			ConnectionType: device.ConnectionBLE,
		})
		cancel()
		if err != nil {
			log.Warn("registering discovered device", "device_id", adv.DeviceID, "error", err)
			continue
		}
		log.Info("device registered from discovery",
			"device_id", adv.DeviceID,
			"type", kind,
			"rssi", adv.RSSI,
		)
	}
}

// runEgressLoop mirrors integration events onto the MQTT topic tree so
// UI panels and voice adapters can follow along without linking the Go
// API. Delivery is best-effort: a broker outage drops messages, local
// state remains authoritative.
func runEgressLoop(sub *events.Subscription, client *mqtt.Client, qos byte, log *logging.Logger) {
	topics := mqtt.Topics{}
	for ev := range sub.Events() {
		var (
			topic   string
			payload any
		)

		switch ev.Kind {
		case events.KindReadingUpdated:
			reading, ok := ev.Payload.(adapters.ReadingEvent)
			if !ok {
				continue
			}
			topic = topics.DeviceReading(reading.DeviceID, reading.Metric)
			payload = reading
		case events.KindDeviceConnected, events.KindDeviceDisconnected:
			topic = topics.DeviceState(ev.DeviceID)
			payload = map[string]string{
				"device_id": ev.DeviceID,
				"state":     string(ev.Kind),
			}
		case events.KindAutomationFired:
			req, ok := ev.Payload.(automation.ActionRequest)
			if !ok {
				continue
			}
			topic = topics.AutomationFired(req.RuleID)
			payload = req
		case events.KindSettingsChanged:
			topic = topics.Event(string(ev.Kind))
			payload = map[string]string{"device_id": ev.DeviceID}
		default:
			continue
		}

		data, err := json.Marshal(payload)
		if err != nil {
			log.Warn("encoding egress payload", "kind", string(ev.Kind), "error", err)
			continue
		}
		if err := client.Publish(topic, data, qos, false); err != nil {
			log.Debug("egress publish dropped", "topic", topic, "error", err)
		}
	}
}

// headlessCentral is the no-radio platform binding used when the daemon
// runs on a host without BLE support. Permissions are granted (there is
// no OS permission prompt to fail), the radio reports unsupported, and
// scan or dial attempts fail cleanly.
type headlessCentral struct{}

// RequestPermissions implements ble.Central.
func (c *headlessCentral) RequestPermissions(_ context.Context, perms []ble.Permission) (map[ble.Permission]bool, error) {
	granted := make(map[ble.Permission]bool, len(perms))
	for _, p := range perms {
		granted[p] = true
	}
	return granted, nil
}

// Scan implements ble.Central.
func (c *headlessCentral) Scan(_ context.Context, _ func(ble.Advertisement)) error {
	return errors.New("no host radio binding")
}

// StopScan implements ble.Central.
func (c *headlessCentral) StopScan() error {
	return nil
}

// SetOnScanError implements ble.Central.
func (c *headlessCentral) SetOnScanError(_ func(error)) {}

// SetOnRadioStateChanged implements ble.Central. The unsupported state
// is reported immediately so subscribers never wait on a radio that
// will not arrive.
func (c *headlessCentral) SetOnRadioStateChanged(callback func(ble.RadioState)) {
	if callback != nil {
		callback(ble.RadioStateUnsupported)
	}
}

// Dial implements ble.Central.
func (c *headlessCentral) Dial(_ context.Context, deviceID string) (ble.Peripheral, error) {
	return nil, fmt.Errorf("no host radio binding for %s", deviceID)
}
