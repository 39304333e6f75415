package automation

import "time"

// Condition is a symbolic trigger predicate carried by a rule.
type Condition string

// Trigger conditions.
const (
	ConditionGreaterThan    Condition = "greater_than"
	ConditionLessThan       Condition = "less_than"
	ConditionEquals         Condition = "equals"
	ConditionNotEquals      Condition = "not_equals"
	ConditionGreaterOrEqual Condition = "greater_or_equal"
	ConditionLessOrEqual    Condition = "less_or_equal"
	ConditionContains       Condition = "contains"
)

// AllConditions returns all valid condition values.
func AllConditions() []Condition {
	return []Condition{
		ConditionGreaterThan, ConditionLessThan, ConditionEquals,
		ConditionNotEquals, ConditionGreaterOrEqual, ConditionLessOrEqual,
		ConditionContains,
	}
}

// Action is one step in a rule's ordered action list.
type Action struct {
	DeviceID   string         `json:"device_id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Rule is a user-defined automation rule. Rules are owned by the
// per-user configuration aggregate; this package only reads them.
type Rule struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`

	// Trigger: fires when the named metric of an event from
	// TriggerDeviceID satisfies Condition against TriggerValue.
	TriggerDeviceID string    `json:"trigger_device_id"`
	TriggerMetric   string    `json:"trigger_metric"`
	Condition       Condition `json:"condition"`
	TriggerValue    any       `json:"trigger_value"`

	Actions []Action `json:"actions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetricEvent is the evaluator's view of one typed device event:
// a named metric value from a specific device.
type MetricEvent struct {
	DeviceID string
	Metric   string
	Value    any
}

// ActionRequest is an action to execute, tagged with the rule that
// produced it for traceability.
type ActionRequest struct {
	RuleID string
	Action Action
}
