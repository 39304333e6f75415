package adapters

import "time"

// Priority classes an alert for the notification rate limiter.
type Priority string

// Alert priorities.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Alert is a threshold-crossing or error notification produced by an
// adapter. GroupID, when set, groups related alerts for rate limiting;
// otherwise the limiter keys on (Type, Metric).
type Alert struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Type      string    `json:"type"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Priority  Priority  `json:"priority"`
	GroupID   string    `json:"group_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TriggerMode selects the threshold boundary policy.
type TriggerMode string

// Trigger modes. Edge fires once at the upward crossing and re-arms
// only after the value drops back below the threshold. Level fires on
// every at-or-above reading, leaving the rate limiter as the only
// damper.
const (
	TriggerEdge  TriggerMode = "edge"
	TriggerLevel TriggerMode = "level"
)

// ThresholdGate applies the boundary policy per (device, metric) pair.
// Not safe for concurrent use; the owning adapter serialises access.
type ThresholdGate struct {
	mode  TriggerMode
	above map[string]bool
}

// NewThresholdGate creates a gate with the given boundary policy.
func NewThresholdGate(mode TriggerMode) *ThresholdGate {
	return &ThresholdGate{
		mode:  mode,
		above: make(map[string]bool),
	}
}

// Crossed reports whether an alert should fire for this reading.
// The check is reactive to each new reading, never polled.
func (g *ThresholdGate) Crossed(deviceID, metric string, value, threshold float64) bool {
	at := value >= threshold
	if g.mode == TriggerLevel {
		return at
	}

	key := deviceID + "/" + metric
	wasAbove := g.above[key]
	g.above[key] = at
	return at && !wasAbove
}

// Forget drops tracked state for a device, re-arming all its metrics.
func (g *ThresholdGate) Forget(deviceID string) {
	for key := range g.above {
		if len(key) > len(deviceID) && key[:len(deviceID)] == deviceID && key[len(deviceID)] == '/' {
			delete(g.above, key)
		}
	}
}
