package adapters

import (
	"github.com/verdant-home/verdant-core/internal/ble"
	"github.com/verdant-home/verdant-core/internal/device"
)

// Predicate decides whether an advertisement belongs to a device class.
type Predicate func(adv ble.Advertisement) bool

// entry pairs a predicate with the adapter that claims matching
// devices.
type entry struct {
	kind      device.DeviceType
	predicate Predicate
	adapter   Adapter
}

// Registry classifies discovered devices by evaluating registered
// (predicate, adapter) pairs in fixed registration order. The first
// match wins, which makes priority explicit: register the most
// specific class first. Unmatched devices classify as unknown.
//
// The registry is built once at startup and read-only afterwards, so
// no locking is needed.
type Registry struct {
	entries []entry
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an adapter with its matching predicate. Order of
// registration is priority order.
func (r *Registry) Register(kind device.DeviceType, predicate Predicate, adapter Adapter) {
	r.entries = append(r.entries, entry{kind: kind, predicate: predicate, adapter: adapter})
}

// Classify returns the device type claimed for an advertisement, or
// false when no registered class matches.
func (r *Registry) Classify(adv ble.Advertisement) (device.DeviceType, bool) {
	for _, e := range r.entries {
		if e.predicate(adv) {
			return e.kind, true
		}
	}
	return "", false
}

// Resolve returns the adapter claiming an advertisement, or false when
// no registered class matches.
func (r *Registry) Resolve(adv ble.Advertisement) (Adapter, bool) {
	for _, e := range r.entries {
		if e.predicate(adv) {
			return e.adapter, true
		}
	}
	return nil, false
}

// ByKind returns the adapter registered for a device type.
func (r *Registry) ByKind(kind device.DeviceType) (Adapter, bool) {
	for _, e := range r.entries {
		if e.kind == kind {
			return e.adapter, true
		}
	}
	return nil, false
}

// All returns the registered adapters in priority order.
func (r *Registry) All() []Adapter {
	adapters := make([]Adapter, 0, len(r.entries))
	for _, e := range r.entries {
		adapters = append(adapters, e.adapter)
	}
	return adapters
}

// ServiceUUIDPredicate builds a predicate matching any advertisement
// carrying one of the given service UUIDs. This is the standard
// predicate shape; adapters supply their known model UUID sets.
func ServiceUUIDPredicate(uuids ...string) Predicate {
	set := make(map[string]struct{}, len(uuids))
	for _, u := range uuids {
		set[u] = struct{}{}
	}
	return func(adv ble.Advertisement) bool {
		for _, u := range adv.ServiceUUIDs {
			if _, ok := set[u]; ok {
				return true
			}
		}
		return false
	}
}
