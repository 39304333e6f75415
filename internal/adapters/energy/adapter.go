package energy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdant-home/verdant-core/internal/adapters"
	"github.com/verdant-home/verdant-core/internal/ble"
	"github.com/verdant-home/verdant-core/internal/device"
	"github.com/verdant-home/verdant-core/internal/events"
)

const (
	keyPrefix      = "adapter/energy/"
	persistTimeout = 5 * time.Second
)

func stateKey(deviceID string) string    { return keyPrefix + deviceID + "/state" }
func settingsKey(deviceID string) string { return keyPrefix + deviceID + "/settings" }

// persistedState is the durable snapshot of one monitor's state.
type persistedState struct {
	Current *Reading  `json:"current,omitempty"`
	History []Reading `json:"history"`
	Stats   *Stats    `json:"stats,omitempty"`
}

// Adapter is the energy-monitor device-class adapter.
//
// Thread Safety: all methods are safe for concurrent use. Telemetry
// for a single device is applied under one lock.
type Adapter struct {
	transport adapters.Transport
	bus       *events.Bus
	store     adapters.Store
	gate      *adapters.ThresholdGate
	logger    adapters.Logger

	mu       sync.Mutex
	current  map[string]*Reading
	history  map[string]*adapters.History[Reading]
	settings map[string]Settings
	stats    map[string]*Stats
	services map[string]string
	unsubs   map[string][]func()
}

// New creates an energy-monitor adapter over the given transport,
// event bus, and blob store. mode selects the alert boundary policy.
func New(transport adapters.Transport, bus *events.Bus, store adapters.Store, mode adapters.TriggerMode) *Adapter {
	return &Adapter{
		transport: transport,
		bus:       bus,
		store:     store,
		gate:      adapters.NewThresholdGate(mode),
		logger:    adapters.NoopLogger{},
		current:   make(map[string]*Reading),
		history:   make(map[string]*adapters.History[Reading]),
		settings:  make(map[string]Settings),
		stats:     make(map[string]*Stats),
		services:  make(map[string]string),
		unsubs:    make(map[string][]func()),
	}
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger adapters.Logger) {
	a.logger = logger
}

// Kind reports the device type this adapter owns.
func (a *Adapter) Kind() device.DeviceType {
	return device.TypeEnergyMonitor
}

// IsSupported reports whether the advertisement carries a known
// energy-monitor service UUID.
func (a *Adapter) IsSupported(adv ble.Advertisement) bool {
	return adapters.ServiceUUIDPredicate(ServiceUUIDs()...)(adv)
}

// Initialize reloads persisted per-device snapshots after a restart.
func (a *Adapter) Initialize(ctx context.Context) error {
	keys, err := a.store.Keys(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("listing persisted energy state: %w", err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/state") {
			continue
		}
		deviceID := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), "/state")
		if err := a.loadDevice(ctx, deviceID); err != nil {
			a.logger.Warn("reloading persisted energy state", "device_id", deviceID, "error", err)
		}
	}
	return nil
}

func (a *Adapter) loadDevice(ctx context.Context, deviceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadDeviceLocked(ctx, deviceID)
}

func (a *Adapter) loadDeviceLocked(ctx context.Context, deviceID string) error {
	if raw, err := a.store.Get(ctx, stateKey(deviceID)); err == nil {
		var state persistedState
		if err := json.Unmarshal(raw, &state); err != nil {
			return fmt.Errorf("unmarshalling state: %w", err)
		}
		if state.Current != nil {
			a.current[deviceID] = state.Current
		}
		h := &adapters.History[Reading]{}
		h.Restore(state.History)
		a.history[deviceID] = h
		if state.Stats != nil {
			if state.Stats.ApplianceCounts == nil {
				state.Stats.ApplianceCounts = make(map[Appliance]int)
			}
			a.stats[deviceID] = state.Stats
		}
	}

	if raw, err := a.store.Get(ctx, settingsKey(deviceID)); err == nil {
		var s Settings
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("unmarshalling settings: %w", err)
		}
		a.settings[deviceID] = s
	}
	return nil
}

// telemetryChars lists the characteristics read on connect and
// subscribed for notifications.
func telemetryChars() []string {
	return []string{CharPower, CharVoltage, CharCurrent, CharEnergy, CharAppliance}
}

// Connect establishes the transport session, seeds the starting
// reading with a full read, subscribes to telemetry, and persists.
func (a *Adapter) Connect(ctx context.Context, dev *device.Device) error {
	if err := a.transport.Connect(ctx, dev.ID); err != nil {
		return fmt.Errorf("connecting energy monitor %s: %w", dev.ID, err)
	}

	a.mu.Lock()
	if _, ok := a.settings[dev.ID]; !ok {
		if err := a.loadDeviceLocked(ctx, dev.ID); err != nil {
			a.logger.Warn("loading persisted state", "device_id", dev.ID, "error", err)
		}
	}
	firstConnection := false
	if _, ok := a.settings[dev.ID]; !ok {
		a.settings[dev.ID] = DefaultSettings()
		firstConnection = true
	}
	a.mu.Unlock()

	if firstConnection {
		if err := a.persistSettings(ctx, dev.ID); err != nil {
			a.logger.Warn("persisting default settings", "device_id", dev.ID, "error", err)
		}
	}

	svc, err := a.resolveService(ctx, dev)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.services[dev.ID] = svc
	a.mu.Unlock()

	for _, char := range telemetryChars() {
		value, err := a.transport.ReadCharacteristic(ctx, dev.ID, svc, char)
		if err != nil {
			a.logger.Debug("initial read skipped", "device_id", dev.ID, "characteristic", char, "error", err)
			continue
		}
		a.ingest(dev.ID, char, value)
	}

	var unsubs []func()
	for _, char := range telemetryChars() {
		unsub, err := a.transport.SubscribeCharacteristic(dev.ID, svc, char, a.handleData)
		if err != nil {
			a.logger.Warn("subscription skipped", "device_id", dev.ID, "characteristic", char, "error", err)
			continue
		}
		unsubs = append(unsubs, unsub)
	}

	a.mu.Lock()
	a.unsubs[dev.ID] = unsubs
	a.mu.Unlock()

	a.logger.Info("energy monitor connected", "device_id", dev.ID, "service", svc)
	return nil
}

func (a *Adapter) resolveService(ctx context.Context, dev *device.Device) (string, error) {
	if hint, ok := dev.Metadata["service_uuid"].(string); ok {
		for _, svc := range ServiceUUIDs() {
			if svc == hint {
				return svc, nil
			}
		}
	}

	for _, svc := range ServiceUUIDs() {
		_, err := a.transport.ReadCharacteristic(ctx, dev.ID, svc, CharPower)
		if err == nil || errors.Is(err, ble.ErrReadFailed) {
			return svc, nil
		}
	}
	return "", fmt.Errorf("%w: %s exposes no known energy service", adapters.ErrUnsupportedDevice, dev.ID)
}

// Disconnect drops the device's subscriptions and tears the transport
// session down. In-memory state is retained.
func (a *Adapter) Disconnect(_ context.Context, deviceID string) error {
	a.mu.Lock()
	unsubs := a.unsubs[deviceID]
	delete(a.unsubs, deviceID)
	a.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	err := a.transport.Disconnect(deviceID)
	if err != nil && !errors.Is(err, ble.ErrDeviceNotFound) {
		return fmt.Errorf("disconnecting energy monitor %s: %w", deviceID, err)
	}
	return nil
}

func (a *Adapter) handleData(data ble.CharacteristicData) {
	a.ingest(data.DeviceID, data.CharacteristicUUID, data.Value)
}

// ingest decodes one characteristic value, merges it into the current
// reading, and runs the persistence and event side effects. Decode
// failures skip the field non-fatally.
func (a *Adapter) ingest(deviceID, characteristicUUID string, value []byte) {
	a.mu.Lock()

	r := a.current[deviceID]
	if r == nil {
		r = &Reading{DetectedAppliance: ApplianceUnknown}
		a.current[deviceID] = r
	}

	now := time.Now().UTC()
	if now.Before(r.Timestamp) {
		now = r.Timestamp
	}

	st := a.stats[deviceID]
	if st == nil {
		st = newStats()
		a.stats[deviceID] = st
	}

	var (
		metric      string
		metricValue any
	)
	switch characteristicUUID {
	case CharPower:
		watts, err := DecodePower(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if watts > st.PeakPowerWatts {
			st.PeakPowerWatts = watts
		}
		r.PowerWatts = watts
		metric, metricValue = "power", watts
	case CharVoltage:
		decivolts, err := DecodeVoltage(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		r.VoltageDecivolts = decivolts
		metric, metricValue = "voltage", decivolts
	case CharCurrent:
		centiamps, err := DecodeCurrent(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		r.CurrentCentiamps = centiamps
		metric, metricValue = "current", centiamps
	case CharEnergy:
		milliKWh, err := DecodeEnergy(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if milliKWh > r.EnergyMilliKWh {
			st.TotalEnergyMilliKWh += uint64(milliKWh - r.EnergyMilliKWh)
		}
		r.EnergyMilliKWh = milliKWh
		metric, metricValue = "energy", milliKWh
	case CharAppliance:
		appliance, err := DecodeAppliance(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if appliance != ApplianceUnknown && appliance != r.DetectedAppliance {
			st.ApplianceCounts[appliance]++
		}
		r.DetectedAppliance = appliance
		metric, metricValue = "appliance", string(appliance)
	default:
		a.skipField(deviceID, characteristicUUID, errors.New("unrecognised characteristic"))
		return
	}

	r.Timestamp = now
	st.Updates++

	h := a.history[deviceID]
	if h == nil {
		h = &adapters.History[Reading]{}
		a.history[deviceID] = h
	}
	h.Append(*r)

	snapshot := *r
	settings := a.settings[deviceID]

	var alert *adapters.Alert
	if metric == "power" && settings.AlertsEnabled {
		if a.gate.Crossed(deviceID, "power", float64(r.PowerWatts), float64(settings.HighUsageThresholdWatts)) {
			alert = &adapters.Alert{
				ID:        uuid.NewString(),
				DeviceID:  deviceID,
				Type:      "high_power_usage",
				Metric:    "power",
				Value:     float64(r.PowerWatts),
				Threshold: float64(settings.HighUsageThresholdWatts),
				Priority:  adapters.PriorityMedium,
				GroupID:   "energy/" + deviceID,
				Message:   fmt.Sprintf("Power draw %d W exceeds %d W", r.PowerWatts, settings.HighUsageThresholdWatts),
				Timestamp: now,
			}
		}
	}
	a.mu.Unlock()

	a.persistState(deviceID)

	a.bus.Publish(events.Event{
		Kind:     events.KindReadingUpdated,
		DeviceID: deviceID,
		Payload: adapters.ReadingEvent{
			DeviceID: deviceID,
			Class:    device.TypeEnergyMonitor,
			Metric:   metric,
			Value:    metricValue,
			Reading:  snapshot,
		},
	})
	if alert != nil {
		a.logger.Info("high usage alert", "device_id", deviceID, "watts", alert.Value)
		a.bus.Publish(events.Event{
			Kind:     events.KindThresholdAlert,
			DeviceID: deviceID,
			Payload:  *alert,
		})
	}
}

func (a *Adapter) skipField(deviceID, characteristicUUID string, err error) {
	a.mu.Unlock()
	a.logger.Warn("decode skipped", "device_id", deviceID, "characteristic", characteristicUUID, "error", err)
}

func (a *Adapter) persistState(deviceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	a.mu.Lock()
	state := persistedState{
		Current: a.current[deviceID],
		Stats:   a.stats[deviceID],
	}
	if h := a.history[deviceID]; h != nil {
		state.History = h.Items()
	}
	raw, err := json.Marshal(state)
	a.mu.Unlock()
	if err != nil {
		a.logger.Error("marshalling energy state", "device_id", deviceID, "error", err)
		return
	}

	if err := a.store.Set(ctx, stateKey(deviceID), raw); err != nil {
		a.logger.Error("persisting energy state", "device_id", deviceID, "error", err)
	}
}

func (a *Adapter) persistSettings(ctx context.Context, deviceID string) error {
	a.mu.Lock()
	settings := a.settings[deviceID]
	a.mu.Unlock()

	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	return a.store.Set(ctx, settingsKey(deviceID), raw)
}

// UpdateSettings merges a partial update into the stored settings.
// The merged record is persisted first; on persist failure in-memory
// settings stay untouched and ErrPersistFailed is returned. Connected
// devices additionally receive the encoded record.
func (a *Adapter) UpdateSettings(ctx context.Context, deviceID string, update SettingsUpdate) (Settings, error) {
	a.mu.Lock()
	old, ok := a.settings[deviceID]
	if !ok {
		old = DefaultSettings()
	}
	merged := old.merge(update)
	svc := a.services[deviceID]
	a.mu.Unlock()
	connected := a.transport.SessionState(deviceID) == ble.StateConnected

	raw, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, fmt.Errorf("marshalling settings: %w", err)
	}
	if err := a.store.Set(ctx, settingsKey(deviceID), raw); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", adapters.ErrPersistFailed, err)
	}

	a.mu.Lock()
	a.settings[deviceID] = merged
	a.mu.Unlock()

	if connected && svc != "" {
		if err := a.transport.WriteCharacteristic(ctx, deviceID, svc, CharSettings, EncodeSettings(merged)); err != nil {
			return merged, fmt.Errorf("writing settings to energy monitor %s: %w", deviceID, err)
		}
	}

	a.bus.Publish(events.Event{
		Kind:     events.KindSettingsChanged,
		DeviceID: deviceID,
		Payload:  merged,
	})
	return merged, nil
}

// CurrentReading returns a copy of the device's current reading, or
// nil if none is recorded.
func (a *Adapter) CurrentReading(deviceID string) *Reading {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.current[deviceID]
	if r == nil {
		return nil
	}
	cpy := *r
	return &cpy
}

// GetSettings returns a copy of the device's settings, or nil if the
// device has never been seen.
func (a *Adapter) GetSettings(deviceID string) *Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.settings[deviceID]
	if !ok {
		return nil
	}
	cpy := s
	return &cpy
}

// GetStats returns a copy of the device's derived statistics, or nil
// if none are recorded.
func (a *Adapter) GetStats(deviceID string) *Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stats[deviceID]
	if st == nil {
		return nil
	}
	cpy := Stats{
		TotalEnergyMilliKWh: st.TotalEnergyMilliKWh,
		PeakPowerWatts:      st.PeakPowerWatts,
		Updates:             st.Updates,
		ApplianceCounts:     make(map[Appliance]int, len(st.ApplianceCounts)),
	}
	for k, v := range st.ApplianceCounts {
		cpy.ApplianceCounts[k] = v
	}
	return &cpy
}

// GetHistory returns the device's reading history, oldest first.
func (a *Adapter) GetHistory(deviceID string) []Reading {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.history[deviceID]
	if h == nil {
		return nil
	}
	return h.Items()
}

// GetTips returns advisory recommendations for the device, or nil when
// no reading is recorded.
func (a *Adapter) GetTips(deviceID string) []string {
	r := a.CurrentReading(deviceID)
	if r == nil {
		return nil
	}
	s := a.GetSettings(deviceID)
	if s == nil {
		defaults := DefaultSettings()
		s = &defaults
	}
	return Tips(*r, *s, a.GetHistory(deviceID))
}

// RemoveDevice drops all in-memory and persisted state for a device.
func (a *Adapter) RemoveDevice(ctx context.Context, deviceID string) error {
	a.mu.Lock()
	delete(a.current, deviceID)
	delete(a.history, deviceID)
	delete(a.settings, deviceID)
	delete(a.stats, deviceID)
	delete(a.services, deviceID)
	a.mu.Unlock()
	a.gate.Forget(deviceID)

	if err := a.store.Delete(ctx, stateKey(deviceID)); err != nil {
		return err
	}
	return a.store.Delete(ctx, settingsKey(deviceID))
}
