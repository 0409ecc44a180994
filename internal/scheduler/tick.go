package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"butler/internal/actions"
	"butler/internal/logging"
	"butler/internal/notifications"
	"butler/internal/orchestrator"
	"butler/internal/rules"
)

const (
	scheduledTickPrefix = "scheduled_tick_"
	setLastRunKeyPrefix = "last_run_ts_set_"
)

// SetLastRunKey returns the app-state key holding a set's last
// scheduled run timestamp.
func SetLastRunKey(setID string) string {
	return setLastRunKeyPrefix + setID
}

// tickOnce evaluates due rules at the given instant and executes them.
// It returns an error only when loading rules or scheduling state
// fails; per-rule failures are contained by the runner.
func (s *Scheduler) tickOnce(ctx context.Context, now time.Time) error {
	merged, err := s.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if len(merged) == 0 {
		return nil
	}

	sets, err := s.store.RuleSets(ctx)
	if err != nil {
		return fmt.Errorf("load rule sets: %w", err)
	}

	selected, triggered, err := s.selectDue(ctx, merged, sets, now)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		s.logger.Debug("no rules due this tick")
		return nil
	}

	parentRunID := scheduledTickPrefix + uuid.NewString()
	s.logger.Info("scheduled tick starting",
		logging.String(logging.FieldParentRunID, parentRunID),
		logging.Int("due_rules", len(selected)),
		logging.Int("due_sets", len(triggered)),
	)

	s.executeBatch(ctx, parentRunID, selected)

	if err := ctx.Err(); err != nil {
		return err
	}
	s.stampSets(ctx, triggered, now)
	return nil
}

// selectDue computes the union of the three due sources and projects it
// back through the merged list, preserving execution order. It also
// returns the ids of custom-interval sets that fired this tick.
func (s *Scheduler) selectDue(ctx context.Context, merged []rules.Rule, sets []rules.RuleSet, now time.Time) ([]rules.Rule, []string, error) {
	due := mapset.NewSet[string]()
	customSetMembers := mapset.NewSet[string]()
	var triggered []string

	for _, set := range sets {
		interval, ok := set.Override.CustomInterval()
		if !ok {
			continue
		}
		customSetMembers.Append(set.RuleIDs...)

		last, err := s.lastSetRun(ctx, set.ID)
		if err != nil {
			return nil, nil, err
		}
		if !dueAt(last, interval, now) {
			continue
		}
		triggered = append(triggered, set.ID)
		due.Append(set.RuleIDs...)
		s.logger.Info("custom-interval set due",
			logging.String("set_id", set.ID),
			logging.String("set_name", set.Name),
			logging.Int("members", len(set.RuleIDs)),
		)
	}

	globalInterval := time.Duration(s.cfg.Scheduler.RuleIntervalSeconds) * time.Second
	for _, rule := range merged {
		if interval, ok := rule.Override.CustomInterval(); ok {
			last, err := s.store.LastRunStart(ctx, rule.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("last run for rule %s: %w", rule.ID, err)
			}
			if dueAt(last, interval, now) {
				due.Add(rule.ID)
			}
			continue
		}
		// Members of a custom-interval set run on the set's cadence
		// only, even on ticks where the set is not due.
		if globalInterval <= 0 || customSetMembers.Contains(rule.ID) {
			continue
		}
		last, err := s.store.LastRunStart(ctx, rule.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("last run for rule %s: %w", rule.ID, err)
		}
		if dueAt(last, globalInterval, now) {
			due.Add(rule.ID)
		}
	}

	selected := make([]rules.Rule, 0, due.Cardinality())
	for _, rule := range merged {
		if due.Contains(rule.ID) {
			selected = append(selected, rule)
		}
	}
	return selected, triggered, nil
}

// dueAt reports whether a schedule point has arrived. A never-run
// schedule is immediately due; a non-positive interval never fires.
func dueAt(last *time.Time, interval time.Duration, now time.Time) bool {
	if last == nil {
		return true
	}
	if interval <= 0 {
		return false
	}
	return !now.Before(last.Add(interval))
}

// lastSetRun reads a set's last-run stamp from app state. An
// unparseable stamp counts as never run so a corrupt value cannot stall
// the set forever.
func (s *Scheduler) lastSetRun(ctx context.Context, setID string) (*time.Time, error) {
	raw, ok, err := s.store.AppState(ctx, SetLastRunKey(setID))
	if err != nil {
		return nil, fmt.Errorf("load last run for set %s: %w", setID, err)
	}
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, nil
	}
	stamp, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.Warn("unreadable set last-run timestamp, treating set as never run",
			logging.String("set_id", setID),
			logging.String("value", raw),
		)
		return nil, nil
	}
	return &stamp, nil
}

// executeBatch runs the due rules sequentially under one parent run.
// Each execution takes the shared run lock so manual runs interleave
// between rules, never inside one.
func (s *Scheduler) executeBatch(ctx context.Context, parentRunID string, selected []rules.Rule) {
	for i, rule := range selected {
		if ctx.Err() != nil {
			s.logger.Info("tick interrupted, skipping remaining rules",
				logging.String(logging.FieldParentRunID, parentRunID),
				logging.Int("remaining", len(selected)-i),
			)
			return
		}

		exec := actions.NewExecution(rule, parentRunID)
		exec.Order = i + 1
		if s.deepCheckDue(rule) {
			exec.DeepRun = []string{rule.ID}
		}

		s.runLock.Lock()
		result := s.runner.ExecuteRule(ctx, exec)
		s.runLock.Unlock()

		s.publishRuleResult(ctx, result)
	}
}

// deepCheckDue decides whether a force_in rule widens its next search.
func (s *Scheduler) deepCheckDue(rule rules.Rule) bool {
	if rule.ActionKind() != rules.ActionForceIn {
		return false
	}
	due, ok := rule.DeepCheck.Due(rule.RunCount)
	if !ok {
		s.logger.Warn("invalid deep-check interval, deep checks disabled for this rule",
			logging.String(logging.FieldRuleID, rule.ID),
			logging.Int("every_x_runs", rule.DeepCheck.EveryXRuns),
		)
		return false
	}
	return due
}

// stampSets records the tick start time for every set that fired, after
// the whole batch has run.
func (s *Scheduler) stampSets(ctx context.Context, setIDs []string, start time.Time) {
	for _, setID := range setIDs {
		if err := s.store.SetAppState(ctx, SetLastRunKey(setID), start.Format(time.RFC3339Nano)); err != nil {
			s.logger.Error("failed to record set run timestamp",
				logging.String("set_id", setID),
				logging.Error(err),
			)
		}
	}
}

func (s *Scheduler) publishRuleResult(ctx context.Context, result orchestrator.Result) {
	status := "success"
	if !result.Success {
		status = "failure"
	}
	err := s.notifier.Publish(ctx, notifications.EventRuleRunCompleted, notifications.Payload{
		"rule":    result.RuleName,
		"summary": result.Summary,
		"status":  status,
		"trigger": "scheduled",
	})
	if err != nil {
		s.logger.Warn("rule run notification failed",
			logging.String(logging.FieldRuleName, result.RuleName),
			logging.Error(err),
		)
	}
}
