package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"butler/internal/actions"
	"butler/internal/rules"
	"butler/internal/translate"
)

// Estimate reports how many files a rule would act on right now.
type Estimate struct {
	Message           string              `json:"message"`
	RawMatches        int                 `json:"raw_search_matches"`
	SkippedRecentView int                 `json:"skipped_recent_view"`
	SkippedOverride   int                 `json:"skipped_override"`
	Actionable        int                 `json:"estimated_actionable_files"`
	Warnings          []translate.Warning `json:"translation_warnings"`
	Predicates        []any               `json:"search_predicates"`
}

// EstimateImpact simulates translation, search, and both eligibility
// filters without mutating anything and without writing run logs.
// Critical warnings and search failures return an error; the estimate
// still carries the warnings and predicates gathered up to the failure.
func (o *Orchestrator) EstimateImpact(ctx context.Context, rule rules.Rule, deepRun, bypassOverride bool) (Estimate, error) {
	est := Estimate{Warnings: []translate.Warning{}, Predicates: []any{}}

	exec := actions.NewExecution(rule, "estimate")
	exec.Manual = true
	if deepRun {
		exec.DeepRun = []string{rule.ID}
	}
	if bypassOverride {
		exec.Bypass = []string{rule.ID}
	}
	logger := o.ruleLogger(exec)

	catalog, err := o.executor.EnsureServices(ctx, exec)
	if err != nil {
		return est, fmt.Errorf("could not load Hydrus services for estimation: %w", err)
	}

	preds, warnings := translate.Translate(rule, catalog, exec.DeepCheck())
	est.Warnings = append(est.Warnings, warnings...)
	est.Predicates = rules.FlattenPredicates(preds)
	if translate.HasCritical(warnings) {
		return est, fmt.Errorf("rule has critical translation warnings, cannot estimate: %s",
			strings.Join(translate.CriticalMessages(warnings), ", "))
	}

	matched, err := o.searchUnion(ctx, logger, preds, true)
	if err != nil {
		return est, err
	}
	est.RawMatches = len(matched)

	eligible := matched
	if o.cfg.Scheduler.LastViewedThresholdSeconds > 0 && len(eligible) > 0 {
		kept, dropped := o.partitionRecentlyViewed(ctx, logger, eligible)
		est.SkippedRecentView = len(dropped)
		eligible = kept
	}

	for _, hash := range eligible {
		decision, err := o.resolver.Check(ctx, rule, exec.BypassOverride(), hash)
		if err != nil {
			return est, fmt.Errorf("override check failed: %w", err)
		}
		if decision.Allow {
			est.Actionable++
			continue
		}
		est.SkippedOverride++
	}

	est.Message = "Estimation successful."
	return est, nil
}
