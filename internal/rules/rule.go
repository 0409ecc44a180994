package rules

import (
	"bytes"
	"encoding/json"
	"time"
)

// OverrideMode selects how a rule or set is scheduled.
type OverrideMode string

const (
	// OverrideDefault follows the global default interval.
	OverrideDefault OverrideMode = ""
	// OverrideNone records an explicit "no override" choice; scheduling
	// treats it like the default.
	OverrideNone OverrideMode = "none"
	// OverrideCustom gives the rule or set its own interval.
	OverrideCustom OverrideMode = "custom"
)

// ScheduleOverride is a rule's or set's scheduling override.
type ScheduleOverride struct {
	Mode            OverrideMode `json:"type"`
	IntervalSeconds int64        `json:"interval_seconds,omitempty"`
}

// CustomInterval returns the configured interval when the override is
// custom with a positive interval.
func (o ScheduleOverride) CustomInterval() (time.Duration, bool) {
	if o.Mode == OverrideCustom && o.IntervalSeconds > 0 {
		return time.Duration(o.IntervalSeconds) * time.Second, true
	}
	return 0, false
}

// DeepCheckFrequency controls how often a force_in rule widens its
// search to re-verify placement across every local file domain.
type DeepCheckFrequency string

const (
	DeepCheckFirstRunOnly DeepCheckFrequency = "first_run_only"
	DeepCheckAlways       DeepCheckFrequency = "always"
	DeepCheckNever        DeepCheckFrequency = "never"
	DeepCheckEveryXRuns   DeepCheckFrequency = "every_x_runs"
)

// DeepCheckPolicy is a force_in rule's deep-check cadence.
type DeepCheckPolicy struct {
	Frequency  DeepCheckFrequency
	EveryXRuns int
}

// Due reports whether the next execution should deep-check given the
// rule's current run count. ok is false when every_x_runs carries an
// invalid interval, which disables deep checks.
func (p DeepCheckPolicy) Due(runCount int) (due, ok bool) {
	switch p.Frequency {
	case DeepCheckAlways:
		return true, true
	case DeepCheckNever:
		return false, true
	case DeepCheckEveryXRuns:
		if p.EveryXRuns <= 0 {
			return false, false
		}
		// Cadence counts executions, so run k fires when the next
		// execution number (runCount+1) is a multiple of the interval.
		return (runCount+1)%p.EveryXRuns == 0, true
	default:
		return runCount == 0, true
	}
}

// Metadata is the store-owned scheduling state merged into a Rule.
type Metadata struct {
	RuleID    string
	RuleName  string
	HasRun    bool
	Created   time.Time
	Override  ScheduleOverride
	DeepCheck DeepCheckPolicy
	RunCount  int
}

// Rule is a merged rule: definition fields come from the document, the
// scheduling fields from the store.
type Rule struct {
	ID         string
	Name       string
	Importance int
	Conditions Conditions
	Action     Action

	Created   time.Time
	Override  ScheduleOverride
	DeepCheck DeepCheckPolicy
	RunCount  int
	HasRun    bool
}

// ActionKind returns the rule's action type, or "" when unset.
func (r Rule) ActionKind() ActionType {
	if r.Action == nil {
		return ""
	}
	return r.Action.Kind()
}

// ApplyMetadata copies the store-owned fields onto the rule.
func (r *Rule) ApplyMetadata(meta Metadata) {
	r.Created = meta.Created
	r.Override = meta.Override
	r.DeepCheck = meta.DeepCheck
	r.RunCount = meta.RunCount
	r.HasRun = meta.HasRun
}

// Meta returns the rule's store-owned fields as a Metadata value.
func (r Rule) Meta() Metadata {
	return Metadata{
		RuleID:    r.ID,
		RuleName:  r.Name,
		HasRun:    r.HasRun,
		Created:   r.Created,
		Override:  r.Override,
		DeepCheck: r.DeepCheck,
		RunCount:  r.RunCount,
	}
}

type ruleWire struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Importance *int               `json:"priority,omitempty"`
	Conditions Conditions         `json:"conditions"`
	Action     json.RawMessage    `json:"action,omitempty"`
	Created    *time.Time         `json:"created,omitempty"`
	Override   *ScheduleOverride  `json:"execution_override,omitempty"`
	Frequency  DeepCheckFrequency `json:"force_in_check_frequency,omitempty"`
	EveryXRuns int                `json:"force_in_check_interval_runs,omitempty"`
	RunCount   int                `json:"run_count,omitempty"`
	HasRun     bool               `json:"has_run,omitempty"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	wire := ruleWire{
		ID:         r.ID,
		Name:       r.Name,
		Importance: &r.Importance,
		Conditions: r.Conditions,
		Frequency:  r.DeepCheck.Frequency,
		EveryXRuns: r.DeepCheck.EveryXRuns,
		RunCount:   r.RunCount,
		HasRun:     r.HasRun,
	}
	if r.Action != nil {
		data, err := json.Marshal(r.Action)
		if err != nil {
			return nil, err
		}
		wire.Action = data
	}
	if !r.Created.IsZero() {
		created := r.Created
		wire.Created = &created
	}
	if r.Override.Mode != OverrideDefault {
		override := r.Override
		wire.Override = &override
	}
	return json.Marshal(wire)
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var wire ruleWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.ID = wire.ID
	r.Name = wire.Name
	r.Importance = 1
	if wire.Importance != nil {
		r.Importance = *wire.Importance
	}
	r.Conditions = wire.Conditions

	r.Action = nil
	if len(wire.Action) > 0 && !bytes.Equal(bytes.TrimSpace(wire.Action), []byte("null")) {
		action, err := DecodeAction(wire.Action)
		if err != nil {
			return err
		}
		r.Action = action
	}

	r.Created = time.Time{}
	if wire.Created != nil {
		r.Created = *wire.Created
	}
	r.Override = ScheduleOverride{}
	if wire.Override != nil {
		r.Override = *wire.Override
	}
	r.DeepCheck = DeepCheckPolicy{Frequency: wire.Frequency, EveryXRuns: wire.EveryXRuns}
	r.RunCount = wire.RunCount
	r.HasRun = wire.HasRun
	return nil
}

// RuleSet groups rules under a shared scheduling override.
type RuleSet struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Override ScheduleOverride `json:"execution_override"`
	RuleIDs  []string         `json:"rule_ids,omitempty"`
}
