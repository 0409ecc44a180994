package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"butler/internal/actions"
	"butler/internal/logging"
	"butler/internal/rules"
	"butler/internal/store"
	"butler/internal/translate"
)

// File event statuses recorded during a run.
const (
	eventSuccess           = "success"
	eventFailure           = "failure"
	eventSkippedOverride   = "skipped_override"
	eventSkippedRecentView = "skipped_recent_view"
)

const lastViewedTimeLayout = "2006-01-02 15:04:05"

func (o *Orchestrator) runPipeline(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result) error {
	catalog, err := o.executor.EnsureServices(ctx, exec)
	if err != nil {
		return fmt.Errorf("could not load Hydrus services: %w", err)
	}

	preds, warnings := translate.Translate(exec.Rule, catalog, exec.DeepCheck())
	details.TranslationWarnings = append(details.TranslationWarnings, warnings...)
	if translate.HasCritical(warnings) {
		return fmt.Errorf("rule aborted for safety due to critical configuration issues:\n - %s",
			strings.Join(translate.CriticalMessages(warnings), "\n - "))
	}

	matched, err := o.searchUnion(ctx, logger, preds, false)
	if err != nil {
		return err
	}
	result.Matched = len(matched)
	logger.Info("search complete", logging.Int("matched", result.Matched))
	if len(matched) == 0 {
		result.Success = true
		result.Summary = "Completed. No files matched the search criteria."
		return nil
	}

	candidates := o.filterRecentlyViewed(ctx, exec, logger, details, matched)
	candidates, err = o.filterOverridden(ctx, exec, logger, details, candidates)
	if err != nil {
		return err
	}
	result.SkippedRecentView = details.SkippedRecentView
	result.SkippedOverride = details.SkippedOverride
	result.Eligible = len(candidates)

	logger.Info("filters applied",
		logging.Int("skipped_recent_view", details.SkippedRecentView),
		logging.Int("skipped_override", details.SkippedOverride),
		logging.Int("candidates", len(candidates)),
	)

	if len(candidates) == 0 {
		result.Success = true
		result.Summary = fmt.Sprintf("Completed. All %d matched files were filtered out.", result.Matched)
		return nil
	}

	flawless, err := o.dispatch(ctx, exec, logger, details, result, candidates)
	if err != nil {
		return err
	}
	if flawless {
		result.Success = true
		result.Summary = fmt.Sprintf("Completed successfully. Action %q applied to %d of %d candidates.",
			result.Action, result.Succeeded, result.Eligible)
		return nil
	}
	result.Summary = fmt.Sprintf("Completed with errors. Succeeded for %d, failed for %d of %d candidates.",
		result.Succeeded, result.Failed, result.Eligible)
	return nil
}

// searchUnion issues one search per predicate set and unions the
// matched hashes. With several sets an individual failed sub-search is
// skipped; with a single set, or in strict mode, any failure aborts.
func (o *Orchestrator) searchUnion(ctx context.Context, logger *slog.Logger, preds []rules.Predicate, strict bool) ([]string, error) {
	sets := translate.PrepareSequentialSearches(preds, 0)
	matched := mapset.NewSet[string]()
	for i, set := range sets {
		hashes, err := o.searchFiles(ctx, rules.FlattenPredicates(set))
		if err != nil {
			if strict {
				return nil, fmt.Errorf("hydrus file search failed during estimation: %w", err)
			}
			if len(sets) > 1 {
				logger.Warn("sub-search failed, skipping predicate set",
					logging.Int("set", i+1),
					logging.Int("sets_total", len(sets)),
					logging.Error(err),
				)
				continue
			}
			return nil, fmt.Errorf("hydrus file search failed: %w", err)
		}
		matched.Append(hashes...)
	}
	union := matched.ToSlice()
	sort.Strings(union)
	return union, nil
}

func (o *Orchestrator) searchFiles(ctx context.Context, tags []any) ([]string, error) {
	timeout := time.Duration(o.cfg.Hydrus.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return o.client.SearchFiles(callCtx, tags)
}

// filterRecentlyViewed drops candidates the user looked at within the
// configured threshold and records one skip event per drop.
func (o *Orchestrator) filterRecentlyViewed(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, matched []string) []string {
	if o.cfg.Scheduler.LastViewedThresholdSeconds <= 0 || len(matched) == 0 {
		return matched
	}
	kept, dropped := o.partitionRecentlyViewed(ctx, logger, matched)
	for _, hash := range dropped {
		details.SkippedRecentView++
		o.appendFileEvent(ctx, logger, exec, hash, eventSkippedRecentView,
			map[string]any{"reason": "file was viewed recently"}, "")
	}
	return kept
}

// partitionRecentlyViewed splits hashes into kept and recently viewed.
// A failed lookup keeps everything.
func (o *Orchestrator) partitionRecentlyViewed(ctx context.Context, logger *slog.Logger, hashes []string) (kept, dropped []string) {
	cutoff := time.Now().Add(-time.Duration(o.cfg.Scheduler.LastViewedThresholdSeconds) * time.Second)
	predicate := "system:last viewed time > " + cutoff.Format(lastViewedTimeLayout)
	recent, err := o.searchFiles(ctx, []any{predicate})
	if err != nil {
		logger.Warn("recently viewed lookup failed, keeping all candidates", logging.Error(err))
		return hashes, nil
	}

	recentSet := mapset.NewSet[string](recent...)
	kept = make([]string, 0, len(hashes))
	for _, hash := range hashes {
		if recentSet.Contains(hash) {
			dropped = append(dropped, hash)
			continue
		}
		kept = append(kept, hash)
	}
	return kept, dropped
}

// filterOverridden asks the governance resolver whether each candidate
// may be acted on. A store failure aborts the run.
func (o *Orchestrator) filterOverridden(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, candidates []string) ([]string, error) {
	kept := make([]string, 0, len(candidates))
	for _, hash := range candidates {
		decision, err := o.resolver.Check(ctx, exec.Rule, exec.BypassOverride(), hash)
		if err != nil {
			return nil, fmt.Errorf("override check failed: %w", err)
		}
		if decision.Allow {
			kept = append(kept, hash)
			continue
		}
		details.SkippedOverride++
		if o.cfg.Overrides.LogOverriddenActions {
			o.appendFileEvent(ctx, logger, exec, hash, eventSkippedOverride,
				map[string]any{"reason": decision.Reason}, "")
		}
	}
	return kept, nil
}

// appendFileEvent records one per-file outcome row. Write failures are
// logged and do not abort the run.
func (o *Orchestrator) appendFileEvent(ctx context.Context, logger *slog.Logger, exec *actions.Execution, hash, status string, fields map[string]any, message string) {
	payload := "{}"
	if len(fields) > 0 {
		data, err := json.Marshal(fields)
		if err != nil {
			logger.Warn("could not encode file event details", logging.Error(err))
		} else {
			payload = string(data)
		}
	}
	event := &store.FileEvent{
		RunLogID: exec.ExecutionID,
		FileHash: hash,
		Status:   status,
		Details:  payload,
		Message:  message,
	}
	if err := o.store.AppendFileEvent(ctx, event); err != nil {
		logger.Warn("could not append file event",
			logging.String("event_status", status),
			logging.Error(err),
		)
	}
}
