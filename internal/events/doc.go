// Package events provides the in-process event fan-out for Verdant Core.
//
// The transport session manager, device-class adapters, and the
// orchestrator all publish tagged events onto a shared Bus. Consumers
// subscribe with owned Subscription handles; closing the handle
// unregisters it, so there is no shared mutable listener list to leak.
//
// Delivery guarantees:
//   - Per publisher goroutine, each subscriber sees events in publish order
//   - No ordering across publishers
//   - Slow subscribers lose their oldest queued events, never block the bus
package events
