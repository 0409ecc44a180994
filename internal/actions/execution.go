package actions

import (
	"slices"

	"github.com/google/uuid"

	"butler/internal/rules"
	"butler/internal/services/hydrus"
)

// Execution bundles the state of one rule execution. The orchestrator
// creates one per rule run and threads it through translation,
// filtering, and action dispatch. It is owned by a single execution and
// never shared.
type Execution struct {
	Rule        rules.Rule
	ParentRunID string
	ExecutionID string
	Order       int
	Manual      bool

	// Bypass lists rule ids whose override checks are skipped for this
	// run; DeepRun lists force_in rule ids that widen their search.
	Bypass  []string
	DeepRun []string

	// Catalog is the remote service snapshot, populated lazily by
	// Executor.EnsureServices.
	Catalog *hydrus.Catalog
}

// NewExecution builds an execution for a rule under the given parent
// run, assigning a fresh execution id.
func NewExecution(rule rules.Rule, parentRunID string) *Execution {
	return &Execution{
		Rule:        rule,
		ParentRunID: parentRunID,
		ExecutionID: uuid.NewString(),
	}
}

// BypassOverride reports whether override governance is bypassed for
// this execution's rule.
func (e *Execution) BypassOverride() bool {
	return slices.Contains(e.Bypass, e.Rule.ID)
}

// DeepCheck reports whether this execution runs a force_in rule in its
// widened deep-check mode.
func (e *Execution) DeepCheck() bool {
	return e.Rule.ActionKind() == rules.ActionForceIn && slices.Contains(e.DeepRun, e.Rule.ID)
}
