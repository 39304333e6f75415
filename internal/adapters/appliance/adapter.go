package appliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/verdant-home/verdant-core/internal/adapters"
	"github.com/verdant-home/verdant-core/internal/ble"
	"github.com/verdant-home/verdant-core/internal/device"
	"github.com/verdant-home/verdant-core/internal/events"
)

const (
	keyPrefix      = "adapter/appliance/"
	persistTimeout = 5 * time.Second
)

func stateKey(deviceID string) string    { return keyPrefix + deviceID + "/state" }
func settingsKey(deviceID string) string { return keyPrefix + deviceID + "/settings" }

// persistedState is the durable snapshot of one appliance's state.
type persistedState struct {
	Current *Status  `json:"current,omitempty"`
	History []Status `json:"history"`
	Stats   *Stats   `json:"stats,omitempty"`
}

// Adapter is the appliance device-class adapter.
//
// Thread Safety: all methods are safe for concurrent use.
type Adapter struct {
	transport adapters.Transport
	bus       *events.Bus
	store     adapters.Store
	logger    adapters.Logger
	cron      *cron.Cron

	mu       sync.Mutex
	current  map[string]*Status
	history  map[string]*adapters.History[Status]
	settings map[string]Settings
	stats    map[string]*Stats
	services map[string]string
	unsubs   map[string][]func()
	entries  map[string]map[string]cron.EntryID
}

// New creates an appliance adapter over the given transport, event
// bus, and blob store, and starts the schedule runner.
func New(transport adapters.Transport, bus *events.Bus, store adapters.Store) *Adapter {
	a := &Adapter{
		transport: transport,
		bus:       bus,
		store:     store,
		logger:    adapters.NoopLogger{},
		cron:      cron.New(),
		current:   make(map[string]*Status),
		history:   make(map[string]*adapters.History[Status]),
		settings:  make(map[string]Settings),
		stats:     make(map[string]*Stats),
		services:  make(map[string]string),
		unsubs:    make(map[string][]func()),
		entries:   make(map[string]map[string]cron.EntryID),
	}
	a.cron.Start()
	return a
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger adapters.Logger) {
	a.logger = logger
}

// Close stops the schedule runner. Pending schedule fires complete
// before it returns.
func (a *Adapter) Close() {
	<-a.cron.Stop().Done()
}

// Kind reports the device type this adapter owns.
func (a *Adapter) Kind() device.DeviceType {
	return device.TypeAppliance
}

// IsSupported reports whether the advertisement carries a known
// appliance service UUID.
func (a *Adapter) IsSupported(adv ble.Advertisement) bool {
	return adapters.ServiceUUIDPredicate(ServiceUUIDs()...)(adv)
}

// Initialize reloads persisted per-device snapshots after a restart
// and re-registers their schedules with the runner.
func (a *Adapter) Initialize(ctx context.Context) error {
	keys, err := a.store.Keys(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("listing persisted appliance state: %w", err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "/settings") {
			continue
		}
		deviceID := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), "/settings")
		if err := a.loadDevice(ctx, deviceID); err != nil {
			a.logger.Warn("reloading persisted appliance state", "device_id", deviceID, "error", err)
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
		h := &adapters.History[Status]{}
		h.Restore(state.History)
		a.history[deviceID] = h
		if state.Stats != nil {
			if state.Stats.ModeCounts == nil {
				state.Stats.ModeCounts = make(map[Mode]int)
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
		a.rescheduleLocked(deviceID)
	}
	return nil
}

// telemetryChars lists the characteristics read on connect and
// subscribed for notifications.
func telemetryChars() []string {
	return []string{CharStatus, CharMode, CharTemperature, CharError}
}

// Connect establishes the transport session, seeds the starting status
// with a full read, subscribes to telemetry, and persists.
func (a *Adapter) Connect(ctx context.Context, dev *device.Device) error {
	if err := a.transport.Connect(ctx, dev.ID); err != nil {
		return fmt.Errorf("connecting appliance %s: %w", dev.ID, err)
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

	a.logger.Info("appliance connected", "device_id", dev.ID, "service", svc)
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
		_, err := a.transport.ReadCharacteristic(ctx, dev.ID, svc, CharStatus)
		if err == nil || errors.Is(err, ble.ErrReadFailed) {
			return svc, nil
		}
	}
	return "", fmt.Errorf("%w: %s exposes no known appliance service", adapters.ErrUnsupportedDevice, dev.ID)
}

// Disconnect drops the device's subscriptions and tears the transport
// session down. In-memory state and registered schedules are retained.
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
		return fmt.Errorf("disconnecting appliance %s: %w", deviceID, err)
	}
	return nil
}

func (a *Adapter) handleData(data ble.CharacteristicData) {
	a.ingest(data.DeviceID, data.CharacteristicUUID, data.Value)
}

// ingest decodes one characteristic value, merges it into the current
// status, and runs the persistence and event side effects. Decode
// failures skip the field non-fatally.
func (a *Adapter) ingest(deviceID, characteristicUUID string, value []byte) {
	a.mu.Lock()

	s := a.current[deviceID]
	if s == nil {
		s = &Status{State: StateOff, Mode: ModeUnknown, ErrorCode: ErrorNone}
		a.current[deviceID] = s
	}

	now := time.Now().UTC()
	if now.Before(s.Timestamp) {
		now = s.Timestamp
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
	case CharStatus:
		state, err := DecodeState(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if state == StateRunning && s.State != StateRunning {
			st.RunCount++
		}
		s.State = state
		metric, metricValue = "state", string(state)
	case CharMode:
		mode, err := DecodeMode(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if mode != ModeUnknown && mode != s.Mode {
			st.ModeCounts[mode]++
		}
		s.Mode = mode
		metric, metricValue = "mode", string(mode)
	case CharTemperature:
		deciC, err := DecodeTemperature(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		s.TemperatureDeciC = deciC
		metric, metricValue = "temperature", deciC
	case CharError:
		code, err := DecodeError(value)
		if err != nil {
			a.skipField(deviceID, characteristicUUID, err)
			return
		}
		if code != ErrorNone && s.ErrorCode == ErrorNone {
			st.ErrorCount++
		}
		prev := s.ErrorCode
		s.ErrorCode = code
		metric, metricValue = "error", string(code)
		defer a.maybeRaiseFault(deviceID, prev, code, now)
	default:
		a.skipField(deviceID, characteristicUUID, errors.New("unrecognised characteristic"))
		return
	}

	s.Timestamp = now
	st.Updates++

	h := a.history[deviceID]
	if h == nil {
		h = &adapters.History[Status]{}
		a.history[deviceID] = h
	}
	h.Append(*s)

	snapshot := *s
	a.mu.Unlock()

	a.persistState(deviceID)

	a.bus.Publish(events.Event{
		Kind:     events.KindReadingUpdated,
		DeviceID: deviceID,
		Payload: adapters.ReadingEvent{
			DeviceID: deviceID,
			Class:    device.TypeAppliance,
			Metric:   metric,
			Value:    metricValue,
			Reading:  snapshot,
		},
	})
}

// maybeRaiseFault publishes an appliance fault alert on the transition
// from no fault to a fault. Runs without the adapter lock held.
func (a *Adapter) maybeRaiseFault(deviceID string, prev, code ErrorCode, at time.Time) {
	if code == ErrorNone || prev != ErrorNone {
		return
	}
	a.mu.Lock()
	alertsEnabled := a.settings[deviceID].AlertsEnabled
	a.mu.Unlock()
	if !alertsEnabled {
		return
	}

	a.logger.Info("appliance fault", "device_id", deviceID, "code", string(code))
	a.bus.Publish(events.Event{
		Kind:     events.KindApplianceError,
		DeviceID: deviceID,
		Payload: adapters.Alert{
			ID:        uuid.NewString(),
			DeviceID:  deviceID,
			Type:      "appliance_error",
			Metric:    "error",
			Priority:  adapters.PriorityCritical,
			GroupID:   "appliance/" + deviceID,
			Message:   fmt.Sprintf("Appliance fault: %s", code),
			Timestamp: at,
		},
	})
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
		a.logger.Error("marshalling appliance state", "device_id", deviceID, "error", err)
		return
	}

	if err := a.store.Set(ctx, stateKey(deviceID), raw); err != nil {
		a.logger.Error("persisting appliance state", "device_id", deviceID, "error", err)
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

// connectedService returns the resolved service for a device with an
// active session, or an error when the device is not connected.
func (a *Adapter) connectedService(deviceID string) (string, error) {
	a.mu.Lock()
	svc := a.services[deviceID]
	a.mu.Unlock()
	if svc == "" || a.transport.SessionState(deviceID) != ble.StateConnected {
		return "", fmt.Errorf("appliance %s: %w", deviceID, ble.ErrNotConnected)
	}
	return svc, nil
}

// command writes an encoded command and, on acknowledgment, applies
// mutate to the in-memory status and publishes the updated snapshot.
func (a *Adapter) command(ctx context.Context, deviceID, metric string, metricValue any, payload []byte, mutate func(*Status)) error {
	svc, err := a.connectedService(deviceID)
	if err != nil {
		return err
	}
	if err := a.transport.WriteCharacteristic(ctx, deviceID, svc, CharCommand, payload); err != nil {
		return fmt.Errorf("writing %s command to appliance %s: %w", metric, deviceID, err)
	}

	a.mu.Lock()
	s := a.current[deviceID]
	if s == nil {
		s = &Status{State: StateOff, Mode: ModeUnknown, ErrorCode: ErrorNone}
		a.current[deviceID] = s
	}
	mutate(s)
	s.Timestamp = time.Now().UTC()
	snapshot := *s
	a.mu.Unlock()

	a.persistState(deviceID)
	a.bus.Publish(events.Event{
		Kind:     events.KindReadingUpdated,
		DeviceID: deviceID,
		Payload: adapters.ReadingEvent{
			DeviceID: deviceID,
			Class:    device.TypeAppliance,
			Metric:   metric,
			Value:    metricValue,
			Reading:  snapshot,
		},
	})
	return nil
}

// PowerOn turns the appliance on. The device must be connected; memory
// is only updated after the write is acknowledged.
func (a *Adapter) PowerOn(ctx context.Context, deviceID string) error {
	return a.command(ctx, deviceID, "state", string(StateIdle), EncodePowerCommand(true), func(s *Status) {
		if s.State == StateOff {
			s.State = StateIdle
		}
	})
}

// PowerOff turns the appliance off.
func (a *Adapter) PowerOff(ctx context.Context, deviceID string) error {
	return a.command(ctx, deviceID, "state", string(StateOff), EncodePowerCommand(false), func(s *Status) {
		s.State = StateOff
	})
}

// SetMode switches the appliance's operating programme.
func (a *Adapter) SetMode(ctx context.Context, deviceID string, mode Mode) error {
	if _, ok := modeBytes[mode]; !ok || mode == ModeUnknown {
		return fmt.Errorf("%w: unknown mode %q", adapters.ErrInvalidCommand, mode)
	}
	return a.command(ctx, deviceID, "mode", string(mode), EncodeModeCommand(mode), func(s *Status) {
		s.Mode = mode
	})
}

// maxTargetDeciC bounds the settable temperature (300.0°C).
const maxTargetDeciC = 3000

// SetTemperature sets the target temperature in degrees Celsius.
func (a *Adapter) SetTemperature(ctx context.Context, deviceID string, celsius float64) error {
	deciC := celsius * 10
	if deciC < 0 || deciC > maxTargetDeciC {
		return fmt.Errorf("%w: temperature %.1f°C out of range", adapters.ErrInvalidCommand, celsius)
	}
	target := uint16(deciC)
	return a.command(ctx, deviceID, "temperature", target, EncodeTemperatureCommand(target), func(s *Status) {
		s.TemperatureDeciC = target
	})
}

// UpdateSettings merges a partial update into the stored settings. The
// merged record is persisted first; on persist failure in-memory
// settings stay untouched and ErrPersistFailed is returned.
func (a *Adapter) UpdateSettings(ctx context.Context, deviceID string, update SettingsUpdate) (Settings, error) {
	a.mu.Lock()
	old, ok := a.settings[deviceID]
	if !ok {
		old = DefaultSettings()
	}
	merged := old.merge(update)
	a.mu.Unlock()

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

	a.bus.Publish(events.Event{
		Kind:     events.KindSettingsChanged,
		DeviceID: deviceID,
		Payload:  merged,
	})
	return merged, nil
}

// AddSchedule appends a time-based power schedule. The updated
// settings are persisted first; a connected device additionally
// receives the packed slot record. Returns the stored schedule with
// its assigned ID.
func (a *Adapter) AddSchedule(ctx context.Context, deviceID string, s Schedule) (Schedule, error) {
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	a.mu.Lock()
	settings, ok := a.settings[deviceID]
	if !ok {
		settings = DefaultSettings()
	}
	if len(settings.Schedules) >= maxSchedules {
		a.mu.Unlock()
		return Schedule{}, fmt.Errorf("%w: schedule slots exhausted (%d)", adapters.ErrInvalidCommand, maxSchedules)
	}
	updated := settings
	updated.Schedules = append(append([]Schedule(nil), settings.Schedules...), s)
	a.mu.Unlock()

	if err := a.commitSchedules(ctx, deviceID, updated, len(settings.Schedules)); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// UpdateSchedule replaces a stored schedule by ID.
func (a *Adapter) UpdateSchedule(ctx context.Context, deviceID string, s Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	settings, ok := a.settings[deviceID]
	idx := -1
	if ok {
		for i, existing := range settings.Schedules {
			if existing.ID == s.ID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: schedule %s not found on %s", adapters.ErrInvalidCommand, s.ID, deviceID)
	}
	updated := settings
	updated.Schedules = append([]Schedule(nil), settings.Schedules...)
	updated.Schedules[idx] = s
	a.mu.Unlock()

	return a.commitSchedules(ctx, deviceID, updated, len(settings.Schedules))
}

// DeleteSchedule removes a stored schedule by ID. A connected device
// has the freed slot cleared.
func (a *Adapter) DeleteSchedule(ctx context.Context, deviceID, scheduleID string) error {
	a.mu.Lock()
	settings, ok := a.settings[deviceID]
	idx := -1
	if ok {
		for i, existing := range settings.Schedules {
			if existing.ID == scheduleID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: schedule %s not found on %s", adapters.ErrInvalidCommand, scheduleID, deviceID)
	}
	updated := settings
	updated.Schedules = append([]Schedule(nil), settings.Schedules...)
	updated.Schedules = append(updated.Schedules[:idx], updated.Schedules[idx+1:]...)
	a.mu.Unlock()

	return a.commitSchedules(ctx, deviceID, updated, len(settings.Schedules))
}

// GetSchedules returns a copy of the device's stored schedules.
func (a *Adapter) GetSchedules(deviceID string) []Schedule {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Schedule(nil), a.settings[deviceID].Schedules...)
}

// commitSchedules persists the updated settings (persist-first), swaps
// them into memory, re-registers the runner entries, and mirrors the
// slot table to a connected device.
func (a *Adapter) commitSchedules(ctx context.Context, deviceID string, updated Settings, prevCount int) error {
	raw, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	if err := a.store.Set(ctx, settingsKey(deviceID), raw); err != nil {
		return fmt.Errorf("%w: %v", adapters.ErrPersistFailed, err)
	}

	a.mu.Lock()
	a.settings[deviceID] = updated
	a.rescheduleLocked(deviceID)
	svc := a.services[deviceID]
	a.mu.Unlock()
	connected := a.transport.SessionState(deviceID) == ble.StateConnected

	if connected && svc != "" {
		for i, s := range updated.Schedules {
			if err := a.transport.WriteCharacteristic(ctx, deviceID, svc, CharSchedule, EncodeScheduleRecord(uint8(i), s)); err != nil {
				a.logger.Warn("schedule slot write failed", "device_id", deviceID, "slot", i, "error", err)
			}
		}
		for i := len(updated.Schedules); i < prevCount; i++ {
			if err := a.transport.WriteCharacteristic(ctx, deviceID, svc, CharSchedule, EncodeScheduleClear(uint8(i))); err != nil {
				a.logger.Warn("schedule slot clear failed", "device_id", deviceID, "slot", i, "error", err)
			}
		}
	}

	a.bus.Publish(events.Event{
		Kind:     events.KindSettingsChanged,
		DeviceID: deviceID,
		Payload:  updated,
	})
	return nil
}

// rescheduleLocked rebuilds the runner entries for one device from its
// current settings. Caller holds a.mu.
func (a *Adapter) rescheduleLocked(deviceID string) {
	for _, id := range a.entries[deviceID] {
		a.cron.Remove(id)
	}
	a.entries[deviceID] = make(map[string]cron.EntryID)

	for _, s := range a.settings[deviceID].Schedules {
		if !s.Enabled {
			continue
		}
		scheduleID := s.ID
		entryID, err := a.cron.AddFunc(s.CronSpec(), func() {
			a.fireSchedule(deviceID, scheduleID)
		})
		if err != nil {
			a.logger.Error("registering schedule", "device_id", deviceID, "schedule_id", scheduleID, "error", err)
			continue
		}
		a.entries[deviceID][scheduleID] = entryID
	}
}

// fireSchedule executes one due schedule by issuing its power command.
// Disconnected devices are skipped.
func (a *Adapter) fireSchedule(deviceID, scheduleID string) {
	a.mu.Lock()
	var sched *Schedule
	for i := range a.settings[deviceID].Schedules {
		if a.settings[deviceID].Schedules[i].ID == scheduleID {
			sched = &a.settings[deviceID].Schedules[i]
			break
		}
	}
	if sched == nil || !sched.Enabled {
		a.mu.Unlock()
		return
	}
	action := sched.Action
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	if action == SchedulePowerOn {
		err = a.PowerOn(ctx, deviceID)
	} else {
		err = a.PowerOff(ctx, deviceID)
	}
	if err != nil {
		a.logger.Warn("schedule fire skipped", "device_id", deviceID, "schedule_id", scheduleID, "error", err)
		return
	}
	a.logger.Info("schedule fired", "device_id", deviceID, "schedule_id", scheduleID, "action", string(action))
}

// CurrentStatus returns a copy of the device's current status, or nil
// if none is recorded.
func (a *Adapter) CurrentStatus(deviceID string) *Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.current[deviceID]
	if s == nil {
		return nil
	}
	cpy := *s
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
	cpy.Schedules = append([]Schedule(nil), s.Schedules...)
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
		RunCount:   st.RunCount,
		ErrorCount: st.ErrorCount,
		Updates:    st.Updates,
		ModeCounts: make(map[Mode]int, len(st.ModeCounts)),
	}
	for k, v := range st.ModeCounts {
		cpy.ModeCounts[k] = v
	}
	return &cpy
}

// GetHistory returns the device's status history, oldest first.
func (a *Adapter) GetHistory(deviceID string) []Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.history[deviceID]
	if h == nil {
		return nil
	}
	return h.Items()
}

// GetTips returns advisory recommendations for the device, or nil when
// no status is recorded.
func (a *Adapter) GetTips(deviceID string) []string {
	s := a.CurrentStatus(deviceID)
	if s == nil {
		return nil
	}
	st := a.GetStats(deviceID)
	if st == nil {
		st = newStats()
	}
	return Tips(*s, *st)
}

// RemoveDevice drops all in-memory and persisted state for a device,
// including its runner entries.
func (a *Adapter) RemoveDevice(ctx context.Context, deviceID string) error {
	a.mu.Lock()
	delete(a.current, deviceID)
	delete(a.history, deviceID)
	delete(a.settings, deviceID)
	delete(a.stats, deviceID)
	delete(a.services, deviceID)
	for _, id := range a.entries[deviceID] {
		a.cron.Remove(id)
	}
	delete(a.entries, deviceID)
	a.mu.Unlock()

	if err := a.store.Delete(ctx, stateKey(deviceID)); err != nil {
		return err
	}
	return a.store.Delete(ctx, settingsKey(deviceID))
}
