package smarthome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verdant-home/verdant-core/internal/adapters"
	"github.com/verdant-home/verdant-core/internal/adapters/appliance"
	"github.com/verdant-home/verdant-core/internal/automation"
	"github.com/verdant-home/verdant-core/internal/ble"
	"github.com/verdant-home/verdant-core/internal/device"
	"github.com/verdant-home/verdant-core/internal/events"
	"github.com/verdant-home/verdant-core/internal/notify"
	"github.com/verdant-home/verdant-core/internal/userconfig"
)

// handlerTimeout bounds repository access from the event loop.
const handlerTimeout = 5 * time.Second

// Transport is the session-manager surface the orchestrator drives.
// Satisfied by *ble.Manager.
type Transport interface {
	Initialize(ctx context.Context) error
	StartScan(ctx context.Context) error
	StopScan() error
	Connect(ctx context.Context, deviceID string) error
	Disconnect(deviceID string) error
	SessionState(deviceID string) ble.SessionState
	ConnectedDevices() []string
}

// DeviceAdapter extends the shared adapter contract with the lifecycle
// operations the orchestrator sequences. Satisfied by the bin, energy,
// and appliance adapters.
type DeviceAdapter interface {
	adapters.Adapter
	Initialize(ctx context.Context) error
	RemoveDevice(ctx context.Context, deviceID string) error
}

// Commander dispatches typed appliance commands.
// Satisfied by *appliance.Adapter.
type Commander interface {
	PowerOn(ctx context.Context, deviceID string) error
	PowerOff(ctx context.Context, deviceID string) error
	SetMode(ctx context.Context, deviceID string, mode appliance.Mode) error
	SetTemperature(ctx context.Context, deviceID string, celsius float64) error
}

// AuditSink mirrors readings and alerts to the time-series trail.
// Satisfied by *influxdb.Client. Optional.
type AuditSink interface {
	WriteReading(deviceID, class, metric string, value float64)
	WriteAlert(deviceID, alertType, priority string, value float64)
}

// Logger is the minimal logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options carries the orchestrator's injected dependencies.
// Transport, Devices, Config, Bus, and at least one adapter are
// required; Commander, Notifier, and Audit are optional.
type Options struct {
	Transport Transport
	Devices   device.Repository
	Config    *userconfig.Repository
	Adapters  []DeviceAdapter
	Commander Commander
	Evaluator *automation.Evaluator
	Notifier  *notify.Notifier
	Audit     AuditSink
	Bus       *events.Bus
	Logger    Logger
}

// Orchestrator sequences initialization and fronts every public
// operation of the integration layer.
//
// Thread Safety: all methods are safe for concurrent use.
type Orchestrator struct {
	transport Transport
	devices   device.Repository
	config    *userconfig.Repository
	adapters  []DeviceAdapter
	byKind    map[device.DeviceType]DeviceAdapter
	commander Commander
	evaluator *automation.Evaluator
	notifier  *notify.Notifier
	audit     AuditSink
	bus       *events.Bus
	logger    Logger

	mu          sync.Mutex
	user        string
	loopStarted bool
	loopSub     *events.Subscription
	wg          sync.WaitGroup

	// readings caches the last decoded reading per device, fed by the
	// event loop. Adapters hold the authoritative typed state.
	readings map[string]adapters.ReadingEvent
}

// New creates an orchestrator from its dependencies. The event loop
// starts on the first successful Initialize.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		transport: opts.Transport,
		devices:   opts.Devices,
		config:    opts.Config,
		adapters:  opts.Adapters,
		byKind:    make(map[device.DeviceType]DeviceAdapter, len(opts.Adapters)),
		commander: opts.Commander,
		evaluator: opts.Evaluator,
		notifier:  opts.Notifier,
		audit:     opts.Audit,
		bus:       opts.Bus,
		logger:    opts.Logger,
		readings:  make(map[string]adapters.ReadingEvent),
	}
	if o.evaluator == nil {
		o.evaluator = automation.NewEvaluator()
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	for _, a := range opts.Adapters {
		o.byKind[a.Kind()] = a
	}
	return o
}

// Initialize runs the fixed startup sequence for one user: transport,
// device repository, per-user configuration (creating an empty default
// if none exists), then each adapter.
//
// Calling it again for the same user is a no-op. A different user
// re-runs the full sequence; the transport layer's own idempotence
// prevents duplicate permission prompts within a process.
func (o *Orchestrator) Initialize(ctx context.Context, userID string) error {
	o.mu.Lock()
	if o.user == userID && userID != "" {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if err := o.transport.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising transport: %w", err)
	}
	if err := o.devices.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising device repository: %w", err)
	}
	o.resetStaleStatuses(ctx)
	if _, err := o.config.InitializeEmptyConfig(ctx, userID); err != nil {
		return fmt.Errorf("initialising config for user %s: %w", userID, err)
	}
	for _, a := range o.adapters {
		if err := a.Initialize(ctx); err != nil {
			return fmt.Errorf("initialising %s adapter: %w", a.Kind(), err)
		}
	}

	o.mu.Lock()
	o.user = userID
	if !o.loopStarted {
		o.loopStarted = true
		o.loopSub = o.bus.Subscribe(
			events.KindReadingUpdated,
			events.KindThresholdAlert,
			events.KindApplianceError,
			events.KindDeviceConnected,
			events.KindDeviceDisconnected,
		)
		o.wg.Add(1)
		go o.eventLoop(o.loopSub)
	}
	o.mu.Unlock()

	o.logger.Info("orchestrator initialised", "user_id", userID)
	return nil
}

// resetStaleStatuses clears connected rows left behind by a previous
// process. A row stays connected only when the transport still holds a
// live session for the device.
func (o *Orchestrator) resetStaleStatuses(ctx context.Context) {
	connected, err := o.devices.GetConnected(ctx)
	if err != nil {
		o.logger.Warn("listing connected devices", "error", err)
		return
	}
	for _, dev := range connected {
		if o.transport.SessionState(dev.ID) == ble.StateConnected {
			continue
		}
		if err := o.devices.UpdateConnectionStatus(ctx, dev.ID, device.StatusDisconnected); err != nil {
			o.logger.Warn("resetting stale status", "device_id", dev.ID, "error", err)
		}
	}
}

// Close stops the event loop. Adapters and the transport are shut down
// by their owners.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	sub := o.loopSub
	o.loopSub = nil
	o.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	o.wg.Wait()
}

func (o *Orchestrator) currentUser() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.user == "" {
		return "", ErrNotInitialized
	}
	return o.user, nil
}

// StartDiscovery begins scanning for nearby devices.
func (o *Orchestrator) StartDiscovery(ctx context.Context) error {
	if _, err := o.currentUser(); err != nil {
		return err
	}
	return o.transport.StartScan(ctx)
}

// StopDiscovery stops an active scan. Safe to call when idle.
func (o *Orchestrator) StopDiscovery() error {
	if _, err := o.currentUser(); err != nil {
		return err
	}
	return o.transport.StopScan()
}

// GetDevice returns one stored device by ID.
func (o *Orchestrator) GetDevice(ctx context.Context, deviceID string) (*device.Device, error) {
	if _, err := o.currentUser(); err != nil {
		return nil, err
	}
	return o.devices.GetByID(ctx, deviceID)
}

// GetDevices returns all stored devices.
func (o *Orchestrator) GetDevices(ctx context.Context) ([]device.Device, error) {
	if _, err := o.currentUser(); err != nil {
		return nil, err
	}
	return o.devices.GetAll(ctx)
}

// SaveDevice validates and upserts a device record.
func (o *Orchestrator) SaveDevice(ctx context.Context, dev *device.Device) error {
	if _, err := o.currentUser(); err != nil {
		return err
	}
	return o.devices.Save(ctx, dev)
}

// ConnectDevice establishes a session through the device's class
// adapter and records the connected status.
func (o *Orchestrator) ConnectDevice(ctx context.Context, deviceID string) error {
	if _, err := o.currentUser(); err != nil {
		return err
	}

	dev, err := o.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	adapter, ok := o.byKind[dev.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, dev.Type)
	}

	if err := adapter.Connect(ctx, dev); err != nil {
		return err
	}
	if err := o.devices.UpdateConnectionStatus(ctx, deviceID, device.StatusConnected); err != nil {
		o.logger.Warn("recording connected status", "device_id", deviceID, "error", err)
	}
	return nil
}

// DisconnectDevice tears the device's session down and records the
// disconnected status.
func (o *Orchestrator) DisconnectDevice(ctx context.Context, deviceID string) error {
	if _, err := o.currentUser(); err != nil {
		return err
	}

	dev, err := o.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if adapter, ok := o.byKind[dev.Type]; ok {
		if err := adapter.Disconnect(ctx, deviceID); err != nil {
			return err
		}
	} else if err := o.transport.Disconnect(deviceID); err != nil {
		return err
	}

	if err := o.devices.UpdateConnectionStatus(ctx, deviceID, device.StatusDisconnected); err != nil {
		o.logger.Warn("recording disconnected status", "device_id", deviceID, "error", err)
	}
	return nil
}

// DeleteDevice removes a device and all its adapter state. A currently
// connected device is disconnected first.
func (o *Orchestrator) DeleteDevice(ctx context.Context, deviceID string) error {
	if _, err := o.currentUser(); err != nil {
		return err
	}

	dev, err := o.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}

	if o.transport.SessionState(deviceID) == ble.StateConnected {
		if err := o.DisconnectDevice(ctx, deviceID); err != nil {
			o.logger.Warn("disconnect before delete failed", "device_id", deviceID, "error", err)
		}
	}

	if adapter, ok := o.byKind[dev.Type]; ok {
		if err := adapter.RemoveDevice(ctx, deviceID); err != nil {
			o.logger.Warn("removing adapter state", "device_id", deviceID, "error", err)
		}
	}

	o.mu.Lock()
	delete(o.readings, deviceID)
	o.mu.Unlock()

	return o.devices.Delete(ctx, deviceID)
}

// GetDeviceData returns the last decoded reading observed for a device
// since startup.
//
// Returns:
//   - adapters.ReadingEvent: metric, value, and the full typed reading
//   - error: ErrNoData if nothing has been decoded for the device yet
func (o *Orchestrator) GetDeviceData(deviceID string) (adapters.ReadingEvent, error) {
	if _, err := o.currentUser(); err != nil {
		return adapters.ReadingEvent{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	reading, ok := o.readings[deviceID]
	if !ok {
		return adapters.ReadingEvent{}, fmt.Errorf("%w: %s", ErrNoData, deviceID)
	}
	return reading, nil
}

// SendCommand dispatches a named device command.
//
// Recognised commands: power_on, power_off, set_mode (parameter
// "mode"), set_temperature (parameter "temperature").
func (o *Orchestrator) SendCommand(ctx context.Context, deviceID, name string, params map[string]any) error {
	if _, err := o.currentUser(); err != nil {
		return err
	}
	if o.commander == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	switch name {
	case "power_on":
		return o.commander.PowerOn(ctx, deviceID)
	case "power_off":
		return o.commander.PowerOff(ctx, deviceID)
	case "set_mode":
		mode, ok := params["mode"].(string)
		if !ok {
			return fmt.Errorf("%w: set_mode requires a mode string", ErrInvalidCommandArgs)
		}
		return o.commander.SetMode(ctx, deviceID, appliance.Mode(mode))
	case "set_temperature":
		celsius, ok := numericValue(params["temperature"])
		if !ok {
			return fmt.Errorf("%w: set_temperature requires a numeric temperature", ErrInvalidCommandArgs)
		}
		return o.commander.SetTemperature(ctx, deviceID, celsius)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

// GetRules returns the current user's automation rules.
func (o *Orchestrator) GetRules(ctx context.Context) ([]automation.Rule, error) {
	user, err := o.currentUser()
	if err != nil {
		return nil, err
	}
	return o.config.GetRules(ctx, user)
}

// AddRule appends an automation rule for the current user.
func (o *Orchestrator) AddRule(ctx context.Context, rule automation.Rule) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}
	return o.config.AddRule(ctx, user, rule)
}

// UpdateRule replaces an automation rule by ID.
func (o *Orchestrator) UpdateRule(ctx context.Context, rule automation.Rule) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}
	return o.config.UpdateRule(ctx, user, rule)
}

// DeleteRule removes an automation rule by ID.
func (o *Orchestrator) DeleteRule(ctx context.Context, ruleID string) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}
	return o.config.DeleteRule(ctx, user, ruleID)
}

// GetConfig returns the current user's configuration aggregate.
func (o *Orchestrator) GetConfig(ctx context.Context) (*userconfig.SmartHomeConfig, error) {
	user, err := o.currentUser()
	if err != nil {
		return nil, err
	}
	return o.config.GetConfig(ctx, user)
}

// GetDeviceSettings returns the current user's stored settings map for
// one device. An empty map means no settings recorded.
func (o *Orchestrator) GetDeviceSettings(ctx context.Context, deviceID string) (userconfig.DeviceSettings, error) {
	user, err := o.currentUser()
	if err != nil {
		return nil, err
	}
	return o.config.GetDeviceSettings(ctx, user, deviceID)
}

// SetDeviceSettings replaces the current user's settings map for one
// device.
func (o *Orchestrator) SetDeviceSettings(ctx context.Context, deviceID string, settings userconfig.DeviceSettings) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}
	return o.config.SetDeviceSettings(ctx, user, deviceID, settings)
}

// DeleteDeviceSettings removes the current user's settings map for one
// device.
func (o *Orchestrator) DeleteDeviceSettings(ctx context.Context, deviceID string) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}
	return o.config.DeleteDeviceSettings(ctx, user, deviceID)
}

// SetNotificationPreferences replaces the current user's notification
// preferences.
func (o *Orchestrator) SetNotificationPreferences(ctx context.Context, prefs []userconfig.NotificationPreference) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}
	return o.config.ReplaceNotificationPreferences(ctx, user, prefs)
}

// LinkVoicePlatform stores a voice-assistant account link for the
// current user.
func (o *Orchestrator) LinkVoicePlatform(ctx context.Context, platform userconfig.VoicePlatform) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}
	return o.config.LinkVoicePlatform(ctx, user, platform)
}

// ReceiveVoiceCommand publishes a voice command event enriched with the
// originating platform resolved from the account link.
func (o *Orchestrator) ReceiveVoiceCommand(ctx context.Context, accountID, command string) error {
	user, err := o.currentUser()
	if err != nil {
		return err
	}

	meta := map[string]string{"account_id": accountID}
	cfg, err := o.config.GetConfig(ctx, user)
	if err == nil {
		for _, p := range cfg.VoicePlatforms {
			if p.AccountID == accountID {
				meta["platform"] = string(p.Platform)
				break
			}
		}
	}

	o.bus.Publish(events.Event{
		Kind:    events.KindVoiceCommand,
		Payload: command,
		Meta:    meta,
	})
	return nil
}

// Subscribe returns an event stream handle for the given kinds
// (all kinds when empty).
func (o *Orchestrator) Subscribe(kinds ...events.Kind) (*events.Subscription, error) {
	if _, err := o.currentUser(); err != nil {
		return nil, err
	}
	return o.bus.Subscribe(kinds...), nil
}

// eventLoop consumes adapter events: readings feed the audit trail and
// the automation evaluator, alerts go through the rate-limited
// notifier.
func (o *Orchestrator) eventLoop(sub *events.Subscription) {
	defer o.wg.Done()
	for ev := range sub.Events() {
		switch ev.Kind {
		case events.KindReadingUpdated:
			o.handleReading(ev)
		case events.KindThresholdAlert, events.KindApplianceError:
			o.handleAlert(ev)
		case events.KindDeviceConnected, events.KindDeviceDisconnected:
			o.handleSessionChange(ev)
		}
	}
}

// handleSessionChange mirrors transport-level session transitions into
// the device repository. Covers unsolicited link drops, which never
// pass through DisconnectDevice.
func (o *Orchestrator) handleSessionChange(ev events.Event) {
	status := device.StatusDisconnected
	if ev.Kind == events.KindDeviceConnected {
		status = device.StatusConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	err := o.devices.UpdateConnectionStatus(ctx, ev.DeviceID, status)
	if err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		o.logger.Warn("recording session change", "device_id", ev.DeviceID, "status", status, "error", err)
	}
}

func (o *Orchestrator) handleReading(ev events.Event) {
	reading, ok := ev.Payload.(adapters.ReadingEvent)
	if !ok {
		return
	}

	o.mu.Lock()
	o.readings[reading.DeviceID] = reading
	o.mu.Unlock()

	if o.audit != nil {
		if v, numeric := numericValue(reading.Value); numeric {
			o.audit.WriteReading(reading.DeviceID, string(reading.Class), reading.Metric, v)
		}
	}

	user, err := o.currentUser()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	rules, err := o.config.GetRules(ctx, user)
	if err != nil {
		o.logger.Warn("loading automation rules", "error", err)
		return
	}

	requests := o.evaluator.Evaluate(automation.MetricEvent{
		DeviceID: reading.DeviceID,
		Metric:   reading.Metric,
		Value:    reading.Value,
	}, rules)

	for _, req := range requests {
		if err := o.SendCommand(ctx, req.Action.DeviceID, req.Action.Name, req.Action.Parameters); err != nil {
			o.logger.Warn("automation action failed",
				"rule_id", req.RuleID,
				"action", req.Action.Name,
				"error", err,
			)
			continue
		}
		o.bus.Publish(events.Event{
			Kind:     events.KindAutomationFired,
			DeviceID: req.Action.DeviceID,
			Payload:  req,
		})
	}
}

func (o *Orchestrator) handleAlert(ev events.Event) {
	alert, ok := ev.Payload.(adapters.Alert)
	if !ok {
		return
	}

	user, err := o.currentUser()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	// A preference row for the alert type can disable delivery; absence
	// means deliver.
	if cfg, err := o.config.GetConfig(ctx, user); err == nil {
		for _, pref := range cfg.NotificationPreferences {
			if pref.AlertType == alert.Type && !pref.Enabled {
				return
			}
		}
	}

	if o.audit != nil {
		o.audit.WriteAlert(alert.DeviceID, alert.Type, string(alert.Priority), alert.Value)
	}

	if o.notifier == nil {
		return
	}
	delivered, err := o.notifier.Deliver(alert)
	if err != nil {
		o.logger.Warn("alert delivery failed", "alert_id", alert.ID, "error", err)
		return
	}
	if delivered {
		o.bus.Publish(events.Event{
			Kind:     events.KindNotificationQueued,
			DeviceID: alert.DeviceID,
			Payload:  alert,
		})
	}
}

// numericValue widens any integer or float value to float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
