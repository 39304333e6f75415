package automation

import (
	"fmt"
	"strings"
)

// Evaluator matches device events against automation rules.
// It holds no state; the caller supplies the live rule set per call.
type Evaluator struct{}

// NewEvaluator creates a rule evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns one ActionRequest per action of every enabled rule
// whose trigger matches the event. Rules are independent: several may
// fire from one event, and their relative order carries no meaning.
// Rules referencing devices that no longer emit events simply never
// match; they are not pruned here.
func (e *Evaluator) Evaluate(event MetricEvent, rules []Rule) []ActionRequest {
	var requests []ActionRequest
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.TriggerDeviceID != event.DeviceID {
			continue
		}
		if rule.TriggerMetric != "" && rule.TriggerMetric != event.Metric {
			continue
		}
		if !matches(rule.Condition, event.Value, rule.TriggerValue) {
			continue
		}
		for _, action := range rule.Actions {
			requests = append(requests, ActionRequest{
				RuleID: rule.ID,
				Action: action,
			})
		}
	}
	return requests
}

// matches applies a symbolic condition to (event value, rule value).
// Numeric comparisons require both sides to be numeric; contains works
// on the string forms. Unknown conditions never match.
func matches(cond Condition, value, want any) bool {
	switch cond {
	case ConditionEquals:
		if v, w, ok := bothNumeric(value, want); ok {
			return v == w
		}
		return asString(value) == asString(want)
	case ConditionNotEquals:
		if v, w, ok := bothNumeric(value, want); ok {
			return v != w
		}
		return asString(value) != asString(want)
	case ConditionGreaterThan:
		v, w, ok := bothNumeric(value, want)
		return ok && v > w
	case ConditionLessThan:
		v, w, ok := bothNumeric(value, want)
		return ok && v < w
	case ConditionGreaterOrEqual:
		v, w, ok := bothNumeric(value, want)
		return ok && v >= w
	case ConditionLessOrEqual:
		v, w, ok := bothNumeric(value, want)
		return ok && v <= w
	case ConditionContains:
		return strings.Contains(asString(value), asString(want))
	default:
		return false
	}
}

// bothNumeric converts both values to float64, reporting whether both
// are numeric. JSON round-trips deliver numbers as float64, but values
// arriving straight from adapters keep their Go integer types.
func bothNumeric(a, b any) (float64, float64, bool) {
	av, aok := toFloat(a)
	bv, bok := toFloat(b)
	return av, bv, aok && bok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
