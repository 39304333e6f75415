package events

import (
	"sync"
	"time"
)

// Default per-subscriber queue depth. Sized to absorb notification
// bursts from a handful of chatty devices without blocking publishers.
const defaultQueueDepth = 64

// Kind identifies the type of an event.
type Kind string

// Transport events.
const (
	KindDeviceDiscovered    Kind = "device_discovered"
	KindDeviceConnected     Kind = "device_connected"
	KindDeviceDisconnected  Kind = "device_disconnected"
	KindCharacteristicData  Kind = "characteristic_data"
	KindScanStarted         Kind = "scan_started"
	KindScanStopped         Kind = "scan_stopped"
	KindScanFailed          Kind = "scan_failed"
	KindRadioStateChanged   Kind = "radio_state_changed"
	KindConnectionFailed    Kind = "connection_failed"
)

// Adapter events.
const (
	KindReadingUpdated  Kind = "reading_updated"
	KindThresholdAlert  Kind = "threshold_alert"
	KindApplianceError  Kind = "appliance_error"
	KindSettingsChanged Kind = "settings_changed"
)

// Orchestrator events.
const (
	KindAutomationFired    Kind = "automation_fired"
	KindVoiceCommand       Kind = "voice_command"
	KindNotificationQueued Kind = "notification_queued"
)

// Event is the tagged envelope delivered to subscribers.
//
// Payload carries the kind-specific body (e.g. ble.Advertisement,
// bin.Measurement, adapters.Alert). Meta holds envelope enrichment
// added by forwarders, such as the originating voice platform.
type Event struct {
	Kind      Kind
	DeviceID  string
	Timestamp time.Time
	Payload   any
	Meta      map[string]string
}

// Bus is a multi-producer, multi-consumer event fan-out.
//
// Each subscriber owns an independent bounded queue; a slow subscriber
// drops its oldest undelivered event rather than blocking publishers
// or other subscribers. Events from a single publisher goroutine are
// delivered to each subscriber in publish order.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is an owned handle to a Bus subscription.
// Close it to unregister; the events channel is closed afterwards.
type Subscription struct {
	bus   *Bus
	ch    chan Event
	kinds map[Kind]struct{} // nil means all kinds

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber.
//
// Parameters:
//   - kinds: Event kinds to receive; empty means all kinds
//
// Returns:
//   - *Subscription: Owned handle; callers must Close() it when done
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, defaultQueueDepth),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every matching subscriber.
// Never blocks: a full subscriber queue drops its oldest event first.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.deliver(ev)
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		sub.mu.Unlock()
	}
	b.subs = make(map[*Subscription]struct{})
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// deliver enqueues an event, dropping the oldest entry if the queue is full.
func (s *Subscription) deliver(ev Event) {
	if s.kinds != nil {
		if _, ok := s.kinds[ev.Kind]; !ok {
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- ev:
			return
		default:
			// Queue full: evict the oldest and retry.
			select {
			case <-s.ch:
				s.dropped++
			default:
			}
		}
	}
}

// Events returns the receive channel for this subscription.
// The channel is closed when the subscription or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns the number of events evicted due to a full queue.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription and closes its channel.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
