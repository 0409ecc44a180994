package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"butler/internal/actions"
	"butler/internal/config"
	"butler/internal/logging"
	"butler/internal/overrides"
	"butler/internal/rules"
	"butler/internal/services/hydrus"
	"butler/internal/store"
)

// Orchestrator executes rules against the client API and records every
// run in the store.
type Orchestrator struct {
	client   *hydrus.Client
	executor *actions.Executor
	resolver *overrides.Resolver
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
}

// New builds an Orchestrator sharing one client and one store across
// all executions.
func New(client *hydrus.Client, st *store.Store, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		client:   client,
		executor: actions.NewExecutor(client, cfg, logger),
		resolver: overrides.NewResolver(st, logger),
		store:    st,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// Result summarizes one rule execution for callers.
type Result struct {
	RunID             string           `json:"run_id"`
	RuleID            string           `json:"rule_id"`
	RuleName          string           `json:"rule_name"`
	Action            rules.ActionType `json:"action"`
	Success           bool             `json:"success"`
	Summary           string           `json:"summary"`
	Matched           int              `json:"files_matched"`
	Eligible          int              `json:"files_eligible"`
	Succeeded         int              `json:"files_succeeded"`
	Failed            int              `json:"files_failed"`
	SkippedOverride   int              `json:"files_skipped_override"`
	SkippedRecentView int              `json:"files_skipped_recent_view"`
}

// ExecuteRule runs one rule from translation through action dispatch
// and finalizes its run log. It never returns an error: every failure,
// panics included, lands in the result and the persisted run log.
func (o *Orchestrator) ExecuteRule(ctx context.Context, exec *actions.Execution) Result {
	if exec == nil {
		return Result{Summary: "execution context is nil"}
	}

	logger := o.ruleLogger(exec)
	details := newRunDetails()
	result := Result{
		RunID:    exec.ExecutionID,
		RuleID:   exec.Rule.ID,
		RuleName: exec.Rule.Name,
		Action:   exec.Rule.ActionKind(),
	}

	run := &store.RunLog{
		ID:             exec.ExecutionID,
		ParentRunID:    exec.ParentRunID,
		RuleID:         exec.Rule.ID,
		RuleName:       exec.Rule.Name,
		ExecutionOrder: exec.Order,
	}
	if err := o.store.BeginRun(ctx, run); err != nil {
		logger.Error("failed to open run log", logging.Error(err))
		result.Summary = fmt.Sprintf("could not open run log: %v", err)
		return result
	}

	logger.Info("rule execution started",
		logging.String("action", string(result.Action)),
		logging.Bool("manual", exec.Manual),
		logging.Bool("deep_check", exec.DeepCheck()),
	)

	if err := o.runGuarded(ctx, exec, logger, details, &result); err != nil {
		result.Success = false
		result.Summary = err.Error()
		details.CriticalError = err.Error()
		logger.Error("rule execution failed", logging.Error(err))
	}

	o.finalize(ctx, exec, logger, details, &result)
	return result
}

// runGuarded converts a panic anywhere in the pipeline into a critical
// error with a truncated stack so one broken rule cannot take down a
// batch.
func (o *Orchestrator) runGuarded(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			details.CriticalErrorStack = stackSummary(debug.Stack())
			err = fmt.Errorf("panic during rule execution: %v", r)
		}
	}()
	return o.runPipeline(ctx, exec, logger, details, result)
}

// finalize persists the run outcome. Scheduled runs bump the rule's
// run counter regardless of outcome; every run marks the rule as run.
func (o *Orchestrator) finalize(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result) {
	if !exec.Manual {
		if err := o.store.IncrementRunCount(ctx, exec.Rule.ID); err != nil {
			logger.Error("failed to increment run count", logging.Error(err))
		}
	}
	if err := o.store.MarkRuleRun(ctx, exec.Rule.ID); err != nil {
		logger.Error("failed to mark rule as run", logging.Error(err))
	}

	status := store.RunSucceeded
	if !result.Success {
		status = store.RunFailedCritical
	}
	counts := store.RunCounts{
		Matched:   result.Matched,
		Eligible:  result.Eligible,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	}
	if err := o.store.FinishRun(ctx, result.RunID, status, counts, result.Summary, details.encode(logger)); err != nil {
		logger.Error("failed to finalize run log", logging.Error(err))
	}

	logger.Info("rule execution finished",
		logging.String("status", string(status)),
		logging.Int("matched", counts.Matched),
		logging.Int("eligible", counts.Eligible),
		logging.Int("succeeded", counts.Succeeded),
		logging.Int("failed", counts.Failed),
		logging.String("summary", result.Summary),
	)
}

func (o *Orchestrator) ruleLogger(exec *actions.Execution) *slog.Logger {
	if exec == nil {
		return o.logger
	}
	return o.logger.With(
		logging.String(logging.FieldRuleName, exec.Rule.Name),
		logging.String(logging.FieldRunID, exec.ExecutionID),
	)
}

const stackSummaryLines = 12

// stackSummary keeps the head of a panic stack so run details stay
// readable.
func stackSummary(stack []byte) string {
	lines := strings.SplitN(strings.TrimSpace(string(stack)), "\n", stackSummaryLines+1)
	if len(lines) > stackSummaryLines {
		lines = lines[:stackSummaryLines]
	}
	return strings.Join(lines, "\n")
}
