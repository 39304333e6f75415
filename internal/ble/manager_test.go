package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/verdant-home/verdant-core/internal/events"
)

// fakeCentral is an in-memory Central for state machine tests.
type fakeCentral struct {
	mu sync.Mutex

	grants      map[Permission]bool
	permErr     error
	permCalls   int
	requested   [][]Permission
	scanErr     error
	scanning    bool
	onAdv       func(Advertisement)
	onScanError func(error)
	onRadio     func(RadioState)
	dialErr     error
	peripherals map[string]*fakePeripheral
}

func newFakeCentral() *fakeCentral {
	return &fakeCentral{
		grants:      map[Permission]bool{},
		peripherals: map[string]*fakePeripheral{},
	}
}

func (c *fakeCentral) grantAll() {
	for _, p := range []Permission{PermissionCoarseLocation, PermissionScan, PermissionConnect, PermissionLocation} {
		c.grants[p] = true
	}
}

func (c *fakeCentral) RequestPermissions(_ context.Context, perms []Permission) (map[Permission]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permCalls++
	c.requested = append(c.requested, perms)
	if c.permErr != nil {
		return nil, c.permErr
	}
	result := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		result[p] = c.grants[p]
	}
	return result, nil
}

func (c *fakeCentral) Scan(_ context.Context, onAdvertisement func(Advertisement)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanErr != nil {
		return c.scanErr
	}
	c.scanning = true
	c.onAdv = onAdvertisement
	return nil
}

func (c *fakeCentral) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanning = false
	return nil
}

func (c *fakeCentral) SetOnScanError(callback func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onScanError = callback
}

func (c *fakeCentral) SetOnRadioStateChanged(callback func(RadioState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRadio = callback
}

func (c *fakeCentral) Dial(_ context.Context, deviceID string) (Peripheral, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialErr != nil {
		return nil, c.dialErr
	}
	p, ok := c.peripherals[deviceID]
	if !ok {
		return nil, errors.New("no such peripheral")
	}
	return p, nil
}

// advertise simulates a platform advertisement callback.
func (c *fakeCentral) advertise(adv Advertisement) {
	c.mu.Lock()
	onAdv := c.onAdv
	c.mu.Unlock()
	if onAdv != nil {
		onAdv(adv)
	}
}

// fakePeripheral is an in-memory Peripheral.
type fakePeripheral struct {
	mu sync.Mutex

	services     []ServiceInfo
	discoverErr  error
	readValue    []byte
	readErr      error
	writeErr     error
	writes       [][]byte
	subscribeErr error
	onValue      func([]byte)
	unsubCalls   int
	onDisconnect func(error)
	closed       bool
}

func newFakePeripheral(services ...ServiceInfo) *fakePeripheral {
	return &fakePeripheral{services: services}
}

func (p *fakePeripheral) DiscoverServices(context.Context) ([]ServiceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.discoverErr != nil {
		return nil, p.discoverErr
	}
	return p.services, nil
}

func (p *fakePeripheral) Read(context.Context, string, string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readValue, p.readErr
}

func (p *fakePeripheral) Write(_ context.Context, _, _ string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return p.writeErr
	}
	p.writes = append(p.writes, value)
	return nil
}

func (p *fakePeripheral) Subscribe(_, _ string, onValue func([]byte)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribeErr != nil {
		return nil, p.subscribeErr
	}
	p.onValue = onValue
	return func() {
		p.mu.Lock()
		p.unsubCalls++
		p.mu.Unlock()
	}, nil
}

func (p *fakePeripheral) SetOnDisconnect(callback func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDisconnect = callback
}

func (p *fakePeripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// notify simulates a characteristic notification from the remote.
func (p *fakePeripheral) notify(value []byte) {
	p.mu.Lock()
	onValue := p.onValue
	p.mu.Unlock()
	if onValue != nil {
		onValue(value)
	}
}

// dropLink simulates an unsolicited remote disconnect.
func (p *fakePeripheral) dropLink(cause error) {
	p.mu.Lock()
	onDisconnect := p.onDisconnect
	p.mu.Unlock()
	if onDisconnect != nil {
		onDisconnect(cause)
	}
}

const (
	testService = "0000aa01-0000-1000-8000-00805f9b34fb"
	testChar    = "0000aa02-0000-1000-8000-00805f9b34fb"
)

func newTestManager(t *testing.T, central *fakeCentral) (*Manager, *events.Bus) {
	t.Helper()

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	mgr := NewManager(central, bus, Config{
		ScanTimeout:    30 * time.Second,
		RSSIDelta:      10,
		PermissionMode: "bundled",
	})
	return mgr, bus
}

// initTestManager builds a manager with all permissions granted and
// Initialize already run.
func initTestManager(t *testing.T, central *fakeCentral) (*Manager, *events.Bus) {
	t.Helper()

	central.grantAll()
	mgr, bus := newTestManager(t, central)
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return mgr, bus
}

func waitEvent(t *testing.T, sub *events.Subscription, want events.Kind) events.Event {
	t.Helper()

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Kind == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", want)
		}
	}
}

func expectNoEvent(t *testing.T, sub *events.Subscription, kind events.Kind) {
	t.Helper()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Kind == kind {
				t.Fatalf("unexpected %q event for %q", kind, ev.DeviceID)
			}
		default:
			return
		}
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	central := newFakeCentral()
	central.grantAll()
	mgr, _ := newTestManager(t, central)

	ctx := context.Background()
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("first Initialize() error = %v", err)
	}
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}

	if central.permCalls != 1 {
		t.Errorf("permission requests = %d, want 1", central.permCalls)
	}
}

func TestInitialize_PermissionModes(t *testing.T) {
	tests := []struct {
		name string
		mode string
		want []Permission
	}{
		{
			name: "legacy mode requests coarse location only",
			mode: "legacy",
			want: []Permission{PermissionCoarseLocation},
		},
		{
			name: "bundled mode requests scan connect location",
			mode: "bundled",
			want: []Permission{PermissionScan, PermissionConnect, PermissionLocation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			central := newFakeCentral()
			central.grantAll()

			bus := events.NewBus()
			defer bus.Close()
			mgr := NewManager(central, bus, Config{PermissionMode: tt.mode})

			if err := mgr.Initialize(context.Background()); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}

			got := central.requested[0]
			if len(got) != len(tt.want) {
				t.Fatalf("requested %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("requested[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInitialize_PermissionDenied(t *testing.T) {
	central := newFakeCentral()
	central.grants[PermissionScan] = true
	central.grants[PermissionConnect] = true
	// fine_location refused
	mgr, _ := newTestManager(t, central)

	err := mgr.Initialize(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Initialize() error = %v, want ErrPermissionDenied", err)
	}

	// Denied initialisation must not unlock scanning
	if err := mgr.StartScan(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StartScan() error = %v, want ErrNotInitialized", err)
	}
}

func TestStartScan_RequiresInitialize(t *testing.T) {
	mgr, _ := newTestManager(t, newFakeCentral())

	if err := mgr.StartScan(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StartScan() error = %v, want ErrNotInitialized", err)
	}
}

func TestStartScan_IdempotentWhileActive(t *testing.T) {
	central := newFakeCentral()
	mgr, bus := initTestManager(t, central)

	sub := bus.Subscribe(events.KindScanStarted)
	defer sub.Close()

	ctx := context.Background()
	if err := mgr.StartScan(ctx); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	if err := mgr.StartScan(ctx); err != nil {
		t.Fatalf("repeat StartScan() error = %v", err)
	}

	waitEvent(t, sub, events.KindScanStarted)
	expectNoEvent(t, sub, events.KindScanStarted)

	if !mgr.IsScanning() {
		t.Error("IsScanning() = false after StartScan")
	}
}

func TestScan_DeduplicatesAdvertisements(t *testing.T) {
	central := newFakeCentral()
	mgr, bus := initTestManager(t, central)

	sub := bus.Subscribe(events.KindDeviceDiscovered)
	defer sub.Close()

	if err := mgr.StartScan(context.Background()); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	central.advertise(Advertisement{DeviceID: "bin-1", Name: "SmartBin", RSSI: -60})
	// Same name, RSSI within delta: suppressed
	central.advertise(Advertisement{DeviceID: "bin-1", Name: "SmartBin", RSSI: -65})
	// RSSI moved beyond delta: re-announced
	central.advertise(Advertisement{DeviceID: "bin-1", Name: "SmartBin", RSSI: -75})
	// Name changed: re-announced regardless of RSSI
	central.advertise(Advertisement{DeviceID: "bin-1", Name: "SmartBin Pro", RSSI: -75})

	wantRSSI := []int{-60, -75, -75}
	for i, want := range wantRSSI {
		ev := waitEvent(t, sub, events.KindDeviceDiscovered)
		adv, ok := ev.Payload.(Advertisement)
		if !ok {
			t.Fatalf("event %d payload type %T, want Advertisement", i, ev.Payload)
		}
		if adv.RSSI != want {
			t.Errorf("event %d RSSI = %d, want %d", i, adv.RSSI, want)
		}
	}
	expectNoEvent(t, sub, events.KindDeviceDiscovered)
}

func TestScan_TimeoutForcesStop(t *testing.T) {
	central := newFakeCentral()
	central.grantAll()

	bus := events.NewBus()
	defer bus.Close()
	mgr := NewManager(central, bus, Config{
		ScanTimeout:    20 * time.Millisecond,
		RSSIDelta:      10,
		PermissionMode: "bundled",
	})
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	sub := bus.Subscribe(events.KindScanStopped)
	defer sub.Close()

	if err := mgr.StartScan(context.Background()); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	waitEvent(t, sub, events.KindScanStopped)
	if mgr.IsScanning() {
		t.Error("IsScanning() = true after timeout")
	}
}

func TestScanError_StopsAndPublishes(t *testing.T) {
	central := newFakeCentral()
	mgr, bus := initTestManager(t, central)

	sub := bus.Subscribe(events.KindScanFailed)
	defer sub.Close()

	if err := mgr.StartScan(context.Background()); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	central.onScanError(errors.New("radio reset"))

	ev := waitEvent(t, sub, events.KindScanFailed)
	err, ok := ev.Payload.(error)
	if !ok || !errors.Is(err, ErrScanFailed) {
		t.Errorf("scan_failed payload = %v, want wrapped ErrScanFailed", ev.Payload)
	}
	if mgr.IsScanning() {
		t.Error("IsScanning() = true after scan error")
	}
}

func TestConnect_HappyPath(t *testing.T) {
	central := newFakeCentral()
	central.peripherals["bin-1"] = newFakePeripheral(ServiceInfo{
		UUID:            testService,
		Characteristics: []string{testChar},
	})
	mgr, bus := initTestManager(t, central)

	sub := bus.Subscribe(events.KindDeviceConnected)
	defer sub.Close()

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if got := mgr.SessionState("bin-1"); got != StateConnected {
		t.Errorf("SessionState() = %q, want %q", got, StateConnected)
	}

	ev := waitEvent(t, sub, events.KindDeviceConnected)
	if ev.DeviceID != "bin-1" {
		t.Errorf("event DeviceID = %q, want %q", ev.DeviceID, "bin-1")
	}
	// Exactly one deviceConnected per successful connect
	expectNoEvent(t, sub, events.KindDeviceConnected)
}

func TestConnect_DialFailure(t *testing.T) {
	central := newFakeCentral()
	central.dialErr = errors.New("link timeout")
	mgr, bus := initTestManager(t, central)

	sub := bus.Subscribe(events.KindConnectionFailed)
	defer sub.Close()

	err := mgr.Connect(context.Background(), "bin-1")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}

	waitEvent(t, sub, events.KindConnectionFailed)

	// Session parked in connection_failed: retry is legal
	if got := mgr.SessionState("bin-1"); got != StateConnectionFailed {
		t.Errorf("SessionState() = %q, want %q", got, StateConnectionFailed)
	}
	central.dialErr = nil
	central.peripherals["bin-1"] = newFakePeripheral()
	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Errorf("retry Connect() error = %v", err)
	}
	if got := mgr.SessionState("bin-1"); got != StateConnected {
		t.Errorf("SessionState() after retry = %q, want %q", got, StateConnected)
	}
}

func TestConnect_ServiceEnumerationFailure(t *testing.T) {
	central := newFakeCentral()
	p := newFakePeripheral()
	p.discoverErr = errors.New("gatt error")
	central.peripherals["bin-1"] = p
	mgr, _ := initTestManager(t, central)

	err := mgr.Connect(context.Background(), "bin-1")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if !p.closed {
		t.Error("peripheral not closed after enumeration failure")
	}
	if got := mgr.SessionState("bin-1"); got != StateConnectionFailed {
		t.Errorf("SessionState() = %q, want %q", got, StateConnectionFailed)
	}
}

func TestConnect_InvalidFromConnected(t *testing.T) {
	central := newFakeCentral()
	central.peripherals["bin-1"] = newFakePeripheral()
	mgr, _ := initTestManager(t, central)

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := mgr.Connect(context.Background(), "bin-1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Connect() error = %v, want ErrInvalidTransition", err)
	}
}

func TestDisconnect_HappyPath(t *testing.T) {
	central := newFakeCentral()
	p := newFakePeripheral(ServiceInfo{UUID: testService, Characteristics: []string{testChar}})
	central.peripherals["bin-1"] = p
	mgr, bus := initTestManager(t, central)

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if _, err := mgr.SubscribeCharacteristic("bin-1", testService, testChar, nil); err != nil {
		t.Fatalf("SubscribeCharacteristic() error = %v", err)
	}

	sub := bus.Subscribe(events.KindDeviceDisconnected)
	defer sub.Close()

	if err := mgr.Disconnect("bin-1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	ev := waitEvent(t, sub, events.KindDeviceDisconnected)
	if ev.DeviceID != "bin-1" {
		t.Errorf("event DeviceID = %q, want %q", ev.DeviceID, "bin-1")
	}
	expectNoEvent(t, sub, events.KindDeviceDisconnected)

	if !p.closed {
		t.Error("peripheral not closed")
	}
	if p.unsubCalls != 1 {
		t.Errorf("subscription cancellations = %d, want 1", p.unsubCalls)
	}
	if got := mgr.SessionState("bin-1"); got != StateDisconnected {
		t.Errorf("SessionState() = %q, want %q", got, StateDisconnected)
	}
}

func TestDisconnect_UnknownDevice(t *testing.T) {
	mgr, _ := initTestManager(t, newFakeCentral())

	if err := mgr.Disconnect("ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Disconnect() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRemoteDisconnect_SingleEventAndTeardown(t *testing.T) {
	central := newFakeCentral()
	p := newFakePeripheral(ServiceInfo{UUID: testService, Characteristics: []string{testChar}})
	central.peripherals["bin-1"] = p
	mgr, bus := initTestManager(t, central)

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if _, err := mgr.SubscribeCharacteristic("bin-1", testService, testChar, nil); err != nil {
		t.Fatalf("SubscribeCharacteristic() error = %v", err)
	}

	sub := bus.Subscribe(events.KindDeviceDisconnected)
	defer sub.Close()

	p.dropLink(errors.New("supervision timeout"))

	waitEvent(t, sub, events.KindDeviceDisconnected)
	expectNoEvent(t, sub, events.KindDeviceDisconnected)

	if p.unsubCalls != 1 {
		t.Errorf("subscription cancellations = %d, want 1", p.unsubCalls)
	}
	if got := mgr.SessionState("bin-1"); got != StateDisconnected {
		t.Errorf("SessionState() = %q, want %q", got, StateDisconnected)
	}

	// A local Disconnect after the drop must not emit a second event
	if err := mgr.Disconnect("bin-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Disconnect() after drop error = %v, want ErrDeviceNotFound", err)
	}
}

func TestReadWrite_RequireConnectedSession(t *testing.T) {
	mgr, _ := initTestManager(t, newFakeCentral())
	ctx := context.Background()

	if _, err := mgr.ReadCharacteristic(ctx, "bin-1", testService, testChar); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReadCharacteristic() error = %v, want ErrNotConnected", err)
	}
	if err := mgr.WriteCharacteristic(ctx, "bin-1", testService, testChar, []byte{0x01}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteCharacteristic() error = %v, want ErrNotConnected", err)
	}
	if _, err := mgr.SubscribeCharacteristic("bin-1", testService, testChar, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeCharacteristic() error = %v, want ErrNotConnected", err)
	}
}

func TestCharacteristicUnavailable(t *testing.T) {
	central := newFakeCentral()
	central.peripherals["bin-1"] = newFakePeripheral(ServiceInfo{
		UUID:            testService,
		Characteristics: []string{testChar},
	})
	mgr, _ := initTestManager(t, central)

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tests := []struct {
		name    string
		service string
		char    string
	}{
		{"unknown service", "0000dead-0000-1000-8000-00805f9b34fb", testChar},
		{"unknown characteristic", testService, "0000beef-0000-1000-8000-00805f9b34fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.ReadCharacteristic(context.Background(), "bin-1", tt.service, tt.char)
			if !errors.Is(err, ErrCharacteristicUnavailable) {
				t.Errorf("ReadCharacteristic() error = %v, want ErrCharacteristicUnavailable", err)
			}
		})
	}
}

func TestReadCharacteristic(t *testing.T) {
	central := newFakeCentral()
	p := newFakePeripheral(ServiceInfo{UUID: testService, Characteristics: []string{testChar}})
	p.readValue = []byte{0x0B, 0xB8}
	central.peripherals["bin-1"] = p
	mgr, _ := initTestManager(t, central)

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got, err := mgr.ReadCharacteristic(context.Background(), "bin-1", testService, testChar)
	if err != nil {
		t.Fatalf("ReadCharacteristic() error = %v", err)
	}
	if len(got) != 2 || got[0] != 0x0B || got[1] != 0xB8 {
		t.Errorf("ReadCharacteristic() = %x, want 0bb8", got)
	}
}

func TestWriteCharacteristic_Failure(t *testing.T) {
	central := newFakeCentral()
	p := newFakePeripheral(ServiceInfo{UUID: testService, Characteristics: []string{testChar}})
	p.writeErr = errors.New("no ack")
	central.peripherals["bin-1"] = p
	mgr, _ := initTestManager(t, central)

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := mgr.WriteCharacteristic(context.Background(), "bin-1", testService, testChar, []byte{0x01})
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("WriteCharacteristic() error = %v, want ErrWriteFailed", err)
	}
}

func TestSubscribeCharacteristic_DeliversAndPublishes(t *testing.T) {
	central := newFakeCentral()
	p := newFakePeripheral(ServiceInfo{UUID: testService, Characteristics: []string{testChar}})
	central.peripherals["bin-1"] = p
	mgr, bus := initTestManager(t, central)

	if err := mgr.Connect(context.Background(), "bin-1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sub := bus.Subscribe(events.KindCharacteristicData)
	defer sub.Close()

	var mu sync.Mutex
	var delivered []CharacteristicData
	unsub, err := mgr.SubscribeCharacteristic("bin-1", testService, testChar, func(data CharacteristicData) {
		mu.Lock()
		delivered = append(delivered, data)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeCharacteristic() error = %v", err)
	}

	p.notify([]byte{0x42})

	ev := waitEvent(t, sub, events.KindCharacteristicData)
	data, ok := ev.Payload.(CharacteristicData)
	if !ok {
		t.Fatalf("payload type %T, want CharacteristicData", ev.Payload)
	}
	if data.DeviceID != "bin-1" || data.ServiceUUID != testService || data.CharacteristicUUID != testChar {
		t.Errorf("payload routing = %+v", data)
	}
	if len(data.Value) != 1 || data.Value[0] != 0x42 {
		t.Errorf("payload value = %x, want 42", data.Value)
	}

	mu.Lock()
	if len(delivered) != 1 {
		t.Errorf("callback deliveries = %d, want 1", len(delivered))
	}
	mu.Unlock()

	// Unsubscribe handle is idempotent
	unsub()
	unsub()
	if p.unsubCalls != 1 {
		t.Errorf("transport cancellations = %d, want 1", p.unsubCalls)
	}
}

func TestRadioStateChanged_Published(t *testing.T) {
	central := newFakeCentral()
	mgr, bus := initTestManager(t, central)

	sub := bus.Subscribe(events.KindRadioStateChanged)
	defer sub.Close()

	central.onRadio(RadioStatePoweredOff)

	ev := waitEvent(t, sub, events.KindRadioStateChanged)
	if got, ok := ev.Payload.(RadioState); !ok || got != RadioStatePoweredOff {
		t.Errorf("payload = %v, want %q", ev.Payload, RadioStatePoweredOff)
	}
	if got := mgr.RadioState(); got != RadioStatePoweredOff {
		t.Errorf("RadioState() = %q, want %q", got, RadioStatePoweredOff)
	}
}

func TestConnectedDevices(t *testing.T) {
	central := newFakeCentral()
	for i := 0; i < 3; i++ {
		central.peripherals[fmt.Sprintf("dev-%d", i)] = newFakePeripheral()
	}
	mgr, _ := initTestManager(t, central)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := mgr.Connect(ctx, fmt.Sprintf("dev-%d", i)); err != nil {
			t.Fatalf("Connect(dev-%d) error = %v", i, err)
		}
	}
	if err := mgr.Disconnect("dev-1"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	got := mgr.ConnectedDevices()
	if len(got) != 2 {
		t.Errorf("ConnectedDevices() = %v, want 2 devices", got)
	}
}
