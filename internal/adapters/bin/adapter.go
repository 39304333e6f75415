package bin

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
	keyPrefix = "adapter/bin/"

	// persistTimeout bounds fire-and-forget persistence triggered from
	// telemetry handlers.
	persistTimeout = 5 * time.Second
)

func stateKey(deviceID string) string    { return keyPrefix + deviceID + "/state" }
func settingsKey(deviceID string) string { return keyPrefix + deviceID + "/settings" }

// persistedState is the durable snapshot of one bin's in-memory state.
// Settings are stored under their own key so a settings persist failure
// can be isolated and rolled back.
type persistedState struct {
	Current *Measurement  `json:"current,omitempty"`
	History []Measurement `json:"history"`
	Stats   *Stats        `json:"stats,omitempty"`
}

// Adapter is the recycling-bin device-class adapter.
//
// Thread Safety: all methods are safe for concurrent use. Telemetry for
// a single device is applied under one lock, so no two updates for the
// same device interleave.
type Adapter struct {
	transport adapters.Transport
	bus       *events.Bus
	store     adapters.Store
	gate      *adapters.ThresholdGate
	logger    adapters.Logger

	mu       sync.Mutex
	current  map[string]*Measurement
	history  map[string]*adapters.History[Measurement]
	settings map[string]Settings
	stats    map[string]*Stats
	services map[string]string
	unsubs   map[string][]func()
}

// New creates a bin adapter over the given transport, event bus, and
// blob store. mode selects the alert boundary policy.
func New(transport adapters.Transport, bus *events.Bus, store adapters.Store, mode adapters.TriggerMode) *Adapter {
	return &Adapter{
		transport: transport,
		bus:       bus,
		store:     store,
		gate:      adapters.NewThresholdGate(mode),
		logger:    adapters.NoopLogger{},
		current:   make(map[string]*Measurement),
		history:   make(map[string]*adapters.History[Measurement]),
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
	return device.TypeBin
}

// IsSupported reports whether the advertisement carries a known bin
// service UUID.
func (a *Adapter) IsSupported(adv ble.Advertisement) bool {
	return adapters.ServiceUUIDPredicate(ServiceUUIDs()...)(adv)
}

// Initialize reloads persisted per-device snapshots so in-memory state
// is reconstructed from the last successfully persisted records after
// a restart.
func (a *Adapter) Initialize(ctx context.Context) error {
	keys, err := a.store.Keys(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("listing persisted bin state: %w", err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/state") {
			continue
		}
		deviceID := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), "/state")
		if err := a.loadDevice(ctx, deviceID); err != nil {
			a.logger.Warn("reloading persisted bin state", "device_id", deviceID, "error", err)
		}
	}
	return nil
}

// loadDevice restores one device's snapshot and settings from the store.
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
		h := &adapters.History[Measurement]{}
		h.Restore(state.History)
		a.history[deviceID] = h
		if state.Stats != nil {
			if state.Stats.MaterialCounts == nil {
				state.Stats.MaterialCounts = make(map[Material]int)
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

// Connect establishes the transport session, seeds the starting
// measurement with a full read of every telemetry characteristic,
// subscribes to notifications, and persists.
func (a *Adapter) Connect(ctx context.Context, dev *device.Device) error {
	if err := a.transport.Connect(ctx, dev.ID); err != nil {
		return fmt.Errorf("connecting bin %s: %w", dev.ID, err)
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

	// Initial full read populates the starting measurement; individual
	// characteristic failures are tolerated.
	for _, char := range []string{CharWeight, CharFillLevel, CharMaterial, CharBattery} {
		value, err := a.transport.ReadCharacteristic(ctx, dev.ID, svc, char)
		if err != nil {
			a.logger.Debug("initial read skipped", "device_id", dev.ID, "characteristic", char, "error", err)
			continue
		}
		a.ingest(dev.ID, char, value)
	}

	var unsubs []func()
	for _, char := range []string{CharWeight, CharFillLevel, CharMaterial, CharBattery} {
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

	a.logger.Info("bin connected", "device_id", dev.ID, "service", svc)
	return nil
}

// resolveService finds which hardware generation's service the device
// exposes: a metadata hint first, then probing known UUIDs.
func (a *Adapter) resolveService(ctx context.Context, dev *device.Device) (string, error) {
	if hint, ok := dev.Metadata["service_uuid"].(string); ok {
		for _, svc := range ServiceUUIDs() {
			if svc == hint {
				return svc, nil
			}
		}
	}

	for _, svc := range ServiceUUIDs() {
		_, err := a.transport.ReadCharacteristic(ctx, dev.ID, svc, CharFillLevel)
		if err == nil || errors.Is(err, ble.ErrReadFailed) {
			return svc, nil
		}
	}
	return "", fmt.Errorf("%w: %s exposes no known bin service", adapters.ErrUnsupportedDevice, dev.ID)
}

// Disconnect drops the device's subscriptions and tears the transport
// session down. In-memory state is retained for accessors.
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
		return fmt.Errorf("disconnecting bin %s: %w", deviceID, err)
	}
	return nil
}

// handleData is the transport notification callback.
func (a *Adapter) handleData(data ble.CharacteristicData) {
	a.ingest(data.DeviceID, data.CharacteristicUUID, data.Value)
}

// ingest decodes one characteristic value, merges it into the current
// measurement, appends history, updates stats, persists, and publishes
// the typed events. Decode failures skip the field non-fatally.
func (a *Adapter) ingest(deviceID, characteristicUUID string, value []byte) {
	a.mu.Lock()

	m := a.current[deviceID]
	if m == nil {
		m = &Measurement{}
		a.current[deviceID] = m
	}

	// Timestamps are monotonically non-decreasing per device.
	now := time.Now().UTC()
	if now.Before(m.Timestamp) {
		now = m.Timestamp
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
	case CharWeight:
		grams, err := DecodeWeight(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if grams > m.WeightGrams {
			st.TotalWeightGrams += uint64(grams - m.WeightGrams)
		}
		m.WeightGrams = grams
		metric, metricValue = "weight", grams
	case CharFillLevel:
		level, err := DecodeFillLevel(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		m.FillLevel = level
		metric, metricValue = "fill_level", level
	case CharMaterial:
		material, err := DecodeMaterial(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if material != MaterialUnknown {
			st.MaterialCounts[material]++
		}
		m.Material = material
		metric, metricValue = "material", string(material)
	case CharBattery:
		battery, err := DecodeBattery(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		m.Battery = battery
		metric, metricValue = "battery", battery
	default:
		a.skipField(deviceID, characteristicUUID, errors.New("unrecognised characteristic"))
		return
	}

	m.Timestamp = now
	st.Updates++

	h := a.history[deviceID]
	if h == nil {
		h = &adapters.History[Measurement]{}
		a.history[deviceID] = h
	}
	h.Append(*m)

	snapshot := *m
	settings := a.settings[deviceID]

	var alert *adapters.Alert
	if metric == "fill_level" && settings.AlertsEnabled {
		if a.gate.Crossed(deviceID, "fill_level", float64(m.FillLevel), float64(settings.FullThreshold)) {
			alert = &adapters.Alert{
				ID:        uuid.NewString(),
				DeviceID:  deviceID,
				Type:      "bin_full",
				Metric:    "fill_level",
				Value:     float64(m.FillLevel),
				Threshold: float64(settings.FullThreshold),
				Priority:  adapters.PriorityHigh,
				GroupID:   "bin/" + deviceID,
				Message:   fmt.Sprintf("Bin is %d%% full (threshold %d%%)", m.FillLevel, settings.FullThreshold),
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
			Class:    device.TypeBin,
			Metric:   metric,
			Value:    metricValue,
			Reading:  snapshot,
		},
	})
	if alert != nil {
		a.logger.Info("bin full alert", "device_id", deviceID, "fill_level", alert.Value)
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

// persistState writes the device's snapshot. Persistence failures are
// logged; in-memory state stays authoritative for the session.
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
		a.logger.Error("marshalling bin state", "device_id", deviceID, "error", err)
		return
	}

	if err := a.store.Set(ctx, stateKey(deviceID), raw); err != nil {
		a.logger.Error("persisting bin state", "device_id", deviceID, "error", err)
	}
}

// persistSettings makes the device's settings durable.
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
// The merged record is persisted first; on persist failure the
// in-memory settings are left untouched and ErrPersistFailed is
// returned. When the device is connected the merged record is also
// encoded and written to the settings characteristic.
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
			return merged, fmt.Errorf("writing settings to bin %s: %w", deviceID, err)
		}
	}

	a.bus.Publish(events.Event{
		Kind:     events.KindSettingsChanged,
		DeviceID: deviceID,
		Payload:  merged,
	})
	return merged, nil
}

// CurrentReading returns a copy of the device's current measurement,
// or nil if none is recorded.
func (a *Adapter) CurrentReading(deviceID string) *Measurement {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.current[deviceID]
	if m == nil {
		return nil
	}
	cpy := *m
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
		TotalWeightGrams: st.TotalWeightGrams,
		Updates:          st.Updates,
		MaterialCounts:   make(map[Material]int, len(st.MaterialCounts)),
	}
	for k, v := range st.MaterialCounts {
		cpy.MaterialCounts[k] = v
	}
	return &cpy
}

// GetHistory returns the device's measurement history, oldest first.
func (a *Adapter) GetHistory(deviceID string) []Measurement {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.history[deviceID]
	if h == nil {
		return nil
	}
	return h.Items()
}

// GetTips returns advisory recommendations for the device, or nil when
// no measurement is recorded.
func (a *Adapter) GetTips(deviceID string) []string {
	m := a.CurrentReading(deviceID)
	if m == nil {
		return nil
	}
	return Tips(*m, a.GetStats(deviceID))
}

// RemoveDevice drops all in-memory and persisted state for a device.
// Called when the device itself is deleted; flushed historical
// readings in the audit sink are untouched.
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
