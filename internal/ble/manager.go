package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/verdant-home/verdant-core/internal/events"
)

// SessionState describes the connection lifecycle of one device session.
type SessionState string

// Session states. connect() is only legal from disconnected;
// disconnect() from connected or connecting. connection_failed is
// reachable from connecting and behaves as disconnected for retry
// purposes (the caller decides whether to retry).
const (
	StateDisconnected     SessionState = "disconnected"
	StateConnecting       SessionState = "connecting"
	StateConnected        SessionState = "connected"
	StateDisconnecting    SessionState = "disconnecting"
	StateConnectionFailed SessionState = "connection_failed"
)

// CharacteristicData is a raw notification tuple delivered to
// characteristic subscribers and published on the event bus.
type CharacteristicData struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Value              []byte
}

// Config contains transport tuning parameters from config.yaml.
type Config struct {
	// ScanTimeout force-stops scanning after this duration.
	ScanTimeout time.Duration

	// RSSIDelta is the minimum signal change before a known device is
	// re-announced during scanning.
	RSSIDelta int

	// PermissionMode selects the permission request shape:
	// "legacy" or "bundled".
	PermissionMode string
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// session tracks one device's connection lifecycle.
type session struct {
	id         string
	state      SessionState
	peripheral Peripheral

	// characteristics maps service UUID -> set of characteristic UUIDs,
	// populated by service enumeration during the handshake.
	characteristics map[string]map[string]struct{}

	// unsubs cancels all active characteristic subscriptions.
	unsubs []func()

	// disconnected guards the single deviceDisconnected emission.
	disconnected sync.Once
}

// Manager is the Transport Session Manager: it owns the radio, device
// discovery, and per-device connection sessions, and presents a
// byte-oriented contract to the device-class adapters.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	central Central
	bus     *events.Bus
	cfg     Config
	logger  Logger

	mu          sync.Mutex
	initialized bool
	sessions    map[string]*session
	scanning    bool
	scanTimer   *time.Timer

	// discovered caches the last announced advertisement per device so
	// repeat sightings are suppressed unless the name changes or the
	// signal moves beyond RSSIDelta.
	discovered map[string]Advertisement

	radioState RadioState
}

// NewManager creates a transport session manager over the given
// platform central. Events are published on bus.
func NewManager(central Central, bus *events.Bus, cfg Config) *Manager {
	return &Manager{
		central:    central,
		bus:        bus,
		cfg:        cfg,
		logger:     noopLogger{},
		sessions:   make(map[string]*session),
		discovered: make(map[string]Advertisement),
		radioState: RadioStateUnknown,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Initialize acquires platform radio permissions and subscribes to
// radio power-state changes. Idempotent: subsequent calls return nil
// without repeating the permission request.
//
// Returns:
//   - error: ErrPermissionDenied if any required grant is refused
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	perms := requiredPermissions(m.cfg.PermissionMode)
	granted, err := m.central.RequestPermissions(ctx, perms)
	if err != nil {
		return fmt.Errorf("requesting permissions: %w", err)
	}
	for _, p := range perms {
		if !granted[p] {
			return fmt.Errorf("%w: %s refused", ErrPermissionDenied, p)
		}
	}

	m.central.SetOnScanError(m.handleScanError)
	m.central.SetOnRadioStateChanged(m.handleRadioState)

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()

	m.logger.Info("ble transport initialised", "permission_mode", m.cfg.PermissionMode)
	return nil
}

// requiredPermissions returns the platform permission set for the
// configured mode. Older OS versions accept a single coarse-location
// grant; newer ones require the bundled scan/connect/location set.
func requiredPermissions(mode string) []Permission {
	if mode == "legacy" {
		return []Permission{PermissionCoarseLocation}
	}
	return []Permission{PermissionScan, PermissionConnect, PermissionLocation}
}

// StartScan begins device discovery. Idempotent no-op while a scan is
// already active. The scan is force-stopped after the configured
// timeout.
func (m *Manager) StartScan(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	if m.scanning {
		m.mu.Unlock()
		return nil
	}
	m.scanning = true
	m.discovered = make(map[string]Advertisement)
	m.mu.Unlock()

	if err := m.central.Scan(ctx, m.handleAdvertisement); err != nil {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrScanFailed, err)
	}

	m.mu.Lock()
	m.scanTimer = time.AfterFunc(m.cfg.ScanTimeout, func() {
		m.logger.Debug("scan timeout reached, stopping")
		if err := m.StopScan(); err != nil {
			m.logger.Warn("stopping timed-out scan", "error", err)
		}
	})
	m.mu.Unlock()

	m.bus.Publish(events.Event{Kind: events.KindScanStarted})
	return nil
}

// StopScan stops an active scan. No-op when idle.
func (m *Manager) StopScan() error {
	m.mu.Lock()
	if !m.scanning {
		m.mu.Unlock()
		return nil
	}
	m.scanning = false
	if m.scanTimer != nil {
		m.scanTimer.Stop()
		m.scanTimer = nil
	}
	m.mu.Unlock()

	if err := m.central.StopScan(); err != nil {
		return fmt.Errorf("%w: %w", ErrScanFailed, err)
	}

	m.bus.Publish(events.Event{Kind: events.KindScanStopped})
	return nil
}

// IsScanning reports whether a scan is active.
func (m *Manager) IsScanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

// handleAdvertisement deduplicates discovery announcements. A device is
// re-announced only when its name changes or its signal strength moves
// beyond the configured delta since the last announcement.
func (m *Manager) handleAdvertisement(adv Advertisement) {
	m.mu.Lock()
	if !m.scanning {
		m.mu.Unlock()
		return
	}
	prev, seen := m.discovered[adv.DeviceID]
	if seen && prev.Name == adv.Name && absInt(prev.RSSI-adv.RSSI) <= m.cfg.RSSIDelta {
		m.mu.Unlock()
		return
	}
	m.discovered[adv.DeviceID] = adv
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Kind:     events.KindDeviceDiscovered,
		DeviceID: adv.DeviceID,
		Payload:  adv,
	})
}

// handleScanError surfaces asynchronous scan failures and stops the
// scan. No silent retry: the caller may restart scanning explicitly.
func (m *Manager) handleScanError(err error) {
	m.logger.Error("scan failed", "error", err)
	m.bus.Publish(events.Event{
		Kind:    events.KindScanFailed,
		Payload: fmt.Errorf("%w: %w", ErrScanFailed, err),
	})
	if stopErr := m.StopScan(); stopErr != nil {
		m.logger.Warn("stopping failed scan", "error", stopErr)
	}
}

// handleRadioState records and republishes radio power transitions.
func (m *Manager) handleRadioState(state RadioState) {
	m.mu.Lock()
	m.radioState = state
	m.mu.Unlock()

	m.logger.Info("radio state changed", "state", string(state))
	m.bus.Publish(events.Event{
		Kind:    events.KindRadioStateChanged,
		Payload: state,
	})
}

// RadioState returns the last reported radio power state.
func (m *Manager) RadioState() RadioState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.radioState
}

// SessionState returns the connection state for a device.
// Unknown devices are disconnected.
func (m *Manager) SessionState(deviceID string) SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[deviceID]; ok {
		return sess.state
	}
	return StateDisconnected
}

// Connect establishes a session with a device: link-layer dial followed
// by service enumeration. The session is connected only after
// enumeration succeeds, at which point deviceConnected fires exactly
// once. Failures park the session in connection_failed and are
// returned to the caller; this layer never retries, but a new Connect
// for the same device is permitted from that state.
func (m *Manager) Connect(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	if existing, ok := m.sessions[deviceID]; ok && existing.state != StateConnectionFailed {
		state := existing.state
		m.mu.Unlock()
		return fmt.Errorf("%w: connect from %s", ErrInvalidTransition, state)
	}
	sess := &session{id: deviceID, state: StateConnecting}
	m.sessions[deviceID] = sess
	m.mu.Unlock()

	peripheral, err := m.central.Dial(ctx, deviceID)
	if err != nil {
		m.failConnect(deviceID, err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	services, err := peripheral.DiscoverServices(ctx)
	if err != nil {
		_ = peripheral.Close()
		m.failConnect(deviceID, err)
		return fmt.Errorf("%w: service enumeration: %w", ErrConnectionFailed, err)
	}

	characteristics := make(map[string]map[string]struct{}, len(services))
	for _, svc := range services {
		chars := make(map[string]struct{}, len(svc.Characteristics))
		for _, c := range svc.Characteristics {
			chars[c] = struct{}{}
		}
		characteristics[svc.UUID] = chars
	}

	peripheral.SetOnDisconnect(func(cause error) {
		m.handleRemoteDisconnect(deviceID, cause)
	})

	m.mu.Lock()
	current, ok := m.sessions[deviceID]
	if !ok || current != sess || sess.state != StateConnecting {
		// Disconnected while the handshake was in flight.
		m.mu.Unlock()
		_ = peripheral.Close()
		return fmt.Errorf("%w: cancelled during handshake", ErrConnectionFailed)
	}
	sess.state = StateConnected
	sess.peripheral = peripheral
	sess.characteristics = characteristics
	m.mu.Unlock()

	m.logger.Info("device connected", "device_id", deviceID, "services", len(services))
	m.bus.Publish(events.Event{
		Kind:     events.KindDeviceConnected,
		DeviceID: deviceID,
	})
	return nil
}

// failConnect parks a half-open session in connection_failed and
// announces the failure. A retrying Connect replaces the parked
// session with a fresh one.
func (m *Manager) failConnect(deviceID string, cause error) {
	m.mu.Lock()
	if sess, ok := m.sessions[deviceID]; ok && sess.state == StateConnecting {
		sess.state = StateConnectionFailed
		sess.peripheral = nil
	}
	m.mu.Unlock()

	m.logger.Warn("connection failed", "device_id", deviceID, "error", cause)
	m.bus.Publish(events.Event{
		Kind:     events.KindConnectionFailed,
		DeviceID: deviceID,
		Payload:  cause,
	})
}

// Disconnect tears a session down. Valid from connected or connecting;
// deviceDisconnected fires exactly once on completion. All
// characteristic subscriptions for the device are cancelled.
func (m *Manager) Disconnect(deviceID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[deviceID]
	if !ok {
		m.mu.Unlock()
		return ErrDeviceNotFound
	}
	if sess.state != StateConnected && sess.state != StateConnecting {
		state := sess.state
		m.mu.Unlock()
		return fmt.Errorf("%w: disconnect from %s", ErrInvalidTransition, state)
	}
	sess.state = StateDisconnecting
	unsubs := sess.unsubs
	sess.unsubs = nil
	peripheral := sess.peripheral
	delete(m.sessions, deviceID)
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if peripheral != nil {
		if err := peripheral.Close(); err != nil {
			m.logger.Warn("closing peripheral", "device_id", deviceID, "error", err)
		}
	}

	sess.disconnected.Do(func() {
		m.logger.Info("device disconnected", "device_id", deviceID)
		m.bus.Publish(events.Event{
			Kind:     events.KindDeviceDisconnected,
			DeviceID: deviceID,
		})
	})
	return nil
}

// handleRemoteDisconnect reacts to an unsolicited link drop: all
// subscriptions are torn down and deviceDisconnected fires once.
func (m *Manager) handleRemoteDisconnect(deviceID string, cause error) {
	m.mu.Lock()
	sess, ok := m.sessions[deviceID]
	if !ok {
		// Local disconnect already ran.
		m.mu.Unlock()
		return
	}
	unsubs := sess.unsubs
	sess.unsubs = nil
	delete(m.sessions, deviceID)
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}

	sess.disconnected.Do(func() {
		m.logger.Info("device dropped link", "device_id", deviceID, "error", cause)
		m.bus.Publish(events.Event{
			Kind:     events.KindDeviceDisconnected,
			DeviceID: deviceID,
		})
	})
}

// connectedPeripheral returns the peripheral for a connected device
// after verifying the characteristic is exposed by the remote.
func (m *Manager) connectedPeripheral(deviceID, serviceUUID, characteristicUUID string) (Peripheral, *session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[deviceID]
	if !ok || sess.state != StateConnected {
		return nil, nil, ErrNotConnected
	}
	chars, ok := sess.characteristics[serviceUUID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: service %s", ErrCharacteristicUnavailable, serviceUUID)
	}
	if _, ok := chars[characteristicUUID]; !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrCharacteristicUnavailable, serviceUUID, characteristicUUID)
	}
	return sess.peripheral, sess, nil
}

// ReadCharacteristic reads the current value of a characteristic.
//
// Returns:
//   - []byte: Raw characteristic value
//   - error: ErrNotConnected, ErrCharacteristicUnavailable, or ErrReadFailed
func (m *Manager) ReadCharacteristic(ctx context.Context, deviceID, serviceUUID, characteristicUUID string) ([]byte, error) {
	peripheral, _, err := m.connectedPeripheral(deviceID, serviceUUID, characteristicUUID)
	if err != nil {
		return nil, err
	}

	value, err := peripheral.Read(ctx, serviceUUID, characteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return value, nil
}

// WriteCharacteristic writes with acknowledgment: it returns success
// only once the remote confirms the write.
func (m *Manager) WriteCharacteristic(ctx context.Context, deviceID, serviceUUID, characteristicUUID string, value []byte) error {
	peripheral, _, err := m.connectedPeripheral(deviceID, serviceUUID, characteristicUUID)
	if err != nil {
		return err
	}

	if err := peripheral.Write(ctx, serviceUUID, characteristicUUID, value); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// SubscribeCharacteristic registers for notifications on a
// characteristic. Each notification is delivered to callback and
// published on the event bus as characteristic_data. The returned
// handle cancels the subscription; disconnection cancels implicitly.
func (m *Manager) SubscribeCharacteristic(deviceID, serviceUUID, characteristicUUID string, callback func(CharacteristicData)) (func(), error) {
	peripheral, sess, err := m.connectedPeripheral(deviceID, serviceUUID, characteristicUUID)
	if err != nil {
		return nil, err
	}

	unsub, err := peripheral.Subscribe(serviceUUID, characteristicUUID, func(value []byte) {
		data := CharacteristicData{
			DeviceID:           deviceID,
			ServiceUUID:        serviceUUID,
			CharacteristicUUID: characteristicUUID,
			Value:              value,
		}
		m.bus.Publish(events.Event{
			Kind:     events.KindCharacteristicData,
			DeviceID: deviceID,
			Payload:  data,
		})
		if callback != nil {
			callback(data)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe: %w", ErrCharacteristicUnavailable, err)
	}

	m.mu.Lock()
	sess.unsubs = append(sess.unsubs, unsub)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(unsub)
	}, nil
}

// ConnectedDevices returns the IDs of all devices in connected state.
func (m *Manager) ConnectedDevices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id, sess := range m.sessions {
		if sess.state == StateConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
