package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"butler/internal/actions"
	"butler/internal/logging"
	"butler/internal/notifications"
	"butler/internal/orchestrator"
	"butler/internal/rules"
)

// SetAll is the pseudo set id that runs every registered rule.
const SetAll = "all"

// BatchTotals aggregates the outcomes of a multi-rule manual run.
type BatchTotals struct {
	RulesProcessed       int `json:"rules_processed"`
	RulesWithErrors      int `json:"rules_with_errors"`
	FilesMatched         int `json:"files_matched_by_search"`
	FilesActionAttempted int `json:"files_action_attempted_on"`
	FilesSkippedOverride int `json:"files_skipped_due_to_override"`
}

// BatchReport is the result of a run-all or run-set request.
type BatchReport struct {
	ParentRunID string                `json:"parent_run_id"`
	Scope       string                `json:"scope"`
	Results     []orchestrator.Result `json:"results"`
	Totals      BatchTotals           `json:"totals"`
}

// RunRule executes one rule immediately under a manual parent run.
// Deep widens a force_in search; bypass skips the override check for
// this rule only.
func (d *Daemon) RunRule(ctx context.Context, ident string, deep, bypass bool) (orchestrator.Result, error) {
	rule, err := d.findRule(ctx, ident)
	if err != nil {
		return orchestrator.Result{}, err
	}

	exec := actions.NewExecution(rule, "manual_single_run_"+uuid.NewString())
	exec.Manual = true
	exec.Order = 1
	if deep {
		exec.DeepRun = []string{rule.ID}
	}
	if bypass {
		exec.Bypass = []string{rule.ID}
	}

	d.logger.Info("manual rule run requested",
		logging.String(logging.FieldRuleID, rule.ID),
		logging.String(logging.FieldRuleName, rule.Name),
		logging.Bool("deep", deep),
		logging.Bool("bypass_override", bypass),
	)

	d.runLock.Lock()
	result := d.orch.ExecuteRule(ctx, exec)
	d.runLock.Unlock()

	d.publishRuleResult(ctx, result)
	return result, nil
}

// RunAll executes every registered rule in cross-rule execution order
// under one manual parent run.
func (d *Daemon) RunAll(ctx context.Context) (BatchReport, error) {
	merged, err := d.registry.Load(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("load rules: %w", err)
	}
	parent := "manual_all_rules_run_" + uuid.NewString()
	return d.runBatch(ctx, parent, "all rules", merged), nil
}

// RunSet executes the members of one rule set (or every rule for the
// pseudo id "all") under one manual parent run.
func (d *Daemon) RunSet(ctx context.Context, setID string) (BatchReport, error) {
	merged, err := d.registry.Load(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("load rules: %w", err)
	}

	scope := "all rules"
	selected := merged
	if !strings.EqualFold(strings.TrimSpace(setID), SetAll) {
		set, err := d.findSet(ctx, setID)
		if err != nil {
			return BatchReport{}, err
		}
		scope = "set " + set.Name
		members := make(map[string]struct{}, len(set.RuleIDs))
		for _, id := range set.RuleIDs {
			members[id] = struct{}{}
		}
		selected = selected[:0:0]
		for _, rule := range merged {
			if _, ok := members[rule.ID]; ok {
				selected = append(selected, rule)
			}
		}
	}

	parent := "manual_set_run_" + uuid.NewString()
	return d.runBatch(ctx, parent, scope, selected), nil
}

// runBatch executes the rules sequentially and folds their results into
// the set-level totals. The slice is already in execution order because
// the registry sorts merged rules.
func (d *Daemon) runBatch(ctx context.Context, parentRunID, scope string, selected []rules.Rule) BatchReport {
	report := BatchReport{ParentRunID: parentRunID, Scope: scope, Results: make([]orchestrator.Result, 0, len(selected))}
	started := time.Now()

	d.logger.Info("manual batch starting",
		logging.String(logging.FieldParentRunID, parentRunID),
		logging.String("scope", scope),
		logging.Int("rules", len(selected)),
	)

	for i, rule := range selected {
		if ctx.Err() != nil {
			break
		}
		exec := actions.NewExecution(rule, parentRunID)
		exec.Manual = true
		exec.Order = i + 1

		d.runLock.Lock()
		result := d.orch.ExecuteRule(ctx, exec)
		d.runLock.Unlock()

		report.Results = append(report.Results, result)
		report.Totals.RulesProcessed++
		if !result.Success {
			report.Totals.RulesWithErrors++
		}
		report.Totals.FilesMatched += result.Matched
		report.Totals.FilesActionAttempted += result.Succeeded + result.Failed
		report.Totals.FilesSkippedOverride += result.SkippedOverride

		d.publishRuleResult(ctx, result)
	}

	d.publishBatch(ctx, scope, report.Totals, time.Since(started))
	return report
}

// Estimate simulates one rule without mutating anything.
func (d *Daemon) Estimate(ctx context.Context, ident string, deep, bypass bool) (orchestrator.Estimate, error) {
	rule, err := d.findRule(ctx, ident)
	if err != nil {
		return orchestrator.Estimate{}, err
	}
	return d.orch.EstimateImpact(ctx, rule, deep, bypass)
}

// findRule resolves a rule id or name against the merged rule list.
func (d *Daemon) findRule(ctx context.Context, ident string) (rules.Rule, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return rules.Rule{}, fmt.Errorf("rule id or name is required")
	}
	merged, err := d.registry.Load(ctx)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("load rules: %w", err)
	}
	for _, rule := range merged {
		if rule.ID == ident {
			return rule, nil
		}
	}
	for _, rule := range merged {
		if strings.EqualFold(rule.Name, ident) {
			return rule, nil
		}
	}
	return rules.Rule{}, fmt.Errorf("rule %q not found", ident)
}

// findSet resolves a set id or name.
func (d *Daemon) findSet(ctx context.Context, ident string) (rules.RuleSet, error) {
	ident = strings.TrimSpace(ident)
	sets, err := d.store.RuleSets(ctx)
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("load rule sets: %w", err)
	}
	for _, set := range sets {
		if set.ID == ident {
			return set, nil
		}
	}
	for _, set := range sets {
		if strings.EqualFold(set.Name, ident) {
			return set, nil
		}
	}
	return rules.RuleSet{}, fmt.Errorf("rule set %q not found", ident)
}

func (d *Daemon) publishRuleResult(ctx context.Context, result orchestrator.Result) {
	status := "success"
	if !result.Success {
		status = "failure"
	}
	err := d.notifier.Publish(ctx, notifications.EventRuleRunCompleted, notifications.Payload{
		"rule":    result.RuleName,
		"summary": result.Summary,
		"status":  status,
		"trigger": "manual",
	})
	if err != nil {
		d.logger.Warn("rule run notification failed",
			logging.String(logging.FieldRuleName, result.RuleName),
			logging.Error(err),
		)
	}
}

func (d *Daemon) publishBatch(ctx context.Context, scope string, totals BatchTotals, elapsed time.Duration) {
	err := d.notifier.Publish(ctx, notifications.EventBatchCompleted, notifications.Payload{
		"scope":    scope,
		"total":    fmt.Sprintf("%d", totals.RulesProcessed),
		"failed":   fmt.Sprintf("%d", totals.RulesWithErrors),
		"duration": elapsed.Round(time.Second).String(),
	})
	if err != nil {
		d.logger.Warn("batch notification failed", logging.Error(err))
	}
}
