package compute_serv

import (
	"reflect"
	"time"
)

// Transition and level keys a trigger action block may carry.
const (
	OnBecomeActive   = "on_become_active"
	OnBecomeInactive = "on_become_inactive"
	OnIsActive       = "on_is_active"
	OnIsInactive     = "on_is_inactive"
)

// Condition compares one signal against a threshold.
type Condition struct {
	Signal   string `json:"name"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Action publishes a payload when its transition or level key applies.
// Payload nil means the default {trigger_name, timestamp}.
type Action struct {
	Type    string         `json:"type"`
	Subject string         `json:"subject"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Trigger is a conjunction of conditions driving a two-state machine.
// isActive flips only when an evaluation changes the conjunction's truth
// value; lastEvent advances on those transitions only.
type Trigger struct {
	Name       string             `json:"name"`
	Conditions []Condition        `json:"conditions"`
	Action     map[string]*Action `json:"action"`

	isActive  bool
	lastEvent *time.Time
}

// met evaluates the condition against the state map. A missing signal or an
// unknown operator makes it false.
func (c Condition) met(state map[string]any) bool {
	cur, ok := state[c.Signal]
	if !ok {
		return false
	}
	switch c.Operator {
	case ">", "<", ">=", "<=":
		a, okA := toFloat(cur)
		b, okB := toFloat(c.Value)
		if !okA || !okB {
			return false
		}
		switch c.Operator {
		case ">":
			return a > b
		case "<":
			return a < b
		case ">=":
			return a >= b
		default:
			return a <= b
		}
	case "==":
		return equalValues(cur, c.Value)
	case "!=":
		return !equalValues(cur, c.Value)
	}
	return false
}

// allMet is the conjunction over every condition.
func (t *Trigger) allMet(state map[string]any) bool {
	for _, c := range t.Conditions {
		if !c.met(state) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
