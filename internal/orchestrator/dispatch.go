package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"butler/internal/actions"
	"butler/internal/logging"
	"butler/internal/rules"
)

// Outcome wrappers tag each action report with its type before the
// report lands in the run details document.
type addToOutcome struct {
	actions.AddToReport
	ActionType rules.ActionType `json:"action_type"`
}

type forceInOutcome struct {
	actions.ForceInReport
	ActionType rules.ActionType `json:"action_type"`
}

type tagOutcome struct {
	actions.TagReport
	ActionType rules.ActionType `json:"action_type"`
}

type ratingOutcome struct {
	actions.RatingReport
	Hash       string           `json:"hash"`
	ActionType rules.ActionType `json:"action_type"`
}

// dispatch applies the rule's action to the candidates, appending file
// events and per-action reports and updating the result counters. The
// returned flag is false when any part of the action failed.
func (o *Orchestrator) dispatch(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result, candidates []string) (bool, error) {
	logger.Info("dispatching action",
		logging.String("action", string(exec.Rule.ActionKind())),
		logging.Int("candidates", len(candidates)),
	)

	switch action := exec.Rule.Action.(type) {
	case rules.AddToAction:
		return o.dispatchAddTo(ctx, exec, logger, details, result, candidates, action)
	case rules.ForceInAction:
		return o.dispatchForceIn(ctx, exec, logger, details, result, candidates, action)
	case rules.AddTagsAction:
		return o.dispatchTags(ctx, exec, logger, details, result, candidates, rules.ActionAddTags, action.TagServiceKey, action.Tags)
	case rules.RemoveTagsAction:
		return o.dispatchTags(ctx, exec, logger, details, result, candidates, rules.ActionRemoveTags, action.TagServiceKey, action.Tags)
	case rules.ModifyRatingAction:
		return o.dispatchRating(ctx, exec, logger, details, result, candidates, action)
	default:
		return false, fmt.Errorf("unsupported action type %q", exec.Rule.ActionKind())
	}
}

func (o *Orchestrator) dispatchAddTo(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result, candidates []string, action rules.AddToAction) (bool, error) {
	destinations := []string(action.DestinationServiceKeys)
	report := o.executor.AddToServices(ctx, exec, candidates, destinations)
	details.ActionResults = append(details.ActionResults, addToOutcome{AddToReport: report, ActionType: rules.ActionAddTo})

	for _, hash := range candidates {
		failures, failed := report.FileErrors[hash]
		if failed {
			result.Failed++
			o.appendFileEvent(ctx, logger, exec, hash, eventFailure,
				map[string]any{"action": rules.ActionAddTo, "errors": failures},
				destinationFailureMessage(failures))
			continue
		}
		result.Succeeded++
		o.appendFileEvent(ctx, logger, exec, hash, eventSuccess,
			map[string]any{"action": rules.ActionAddTo, "destinations": destinations}, "")
		if err := o.recordSuccess(ctx, exec, hash); err != nil {
			return false, err
		}
	}
	return report.Success, nil
}

func (o *Orchestrator) dispatchForceIn(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result, candidates []string, action rules.ForceInAction) (bool, error) {
	destinations := []string(action.DestinationServiceKeys)
	metadata, metadataErrors := o.executor.FetchMetadata(ctx, exec, candidates)
	details.MetadataErrors = append(details.MetadataErrors, metadataErrors...)

	report := o.executor.ForceInServices(ctx, exec, metadata, destinations)
	details.ActionResults = append(details.ActionResults, forceInOutcome{ForceInReport: report, ActionType: rules.ActionForceIn})

	result.Succeeded += len(report.FullySucceeded)
	result.Failed += len(report.FileErrors)

	for _, hash := range report.FullySucceeded {
		o.appendFileEvent(ctx, logger, exec, hash, eventSuccess,
			map[string]any{"action": rules.ActionForceIn, "destinations": destinations}, "")
		if err := o.recordSuccess(ctx, exec, hash); err != nil {
			return false, err
		}
	}
	for _, hash := range sortedFailureKeys(report.FileErrors) {
		phaseErrors := report.FileErrors[hash]
		o.appendFileEvent(ctx, logger, exec, hash, eventFailure,
			map[string]any{"action": rules.ActionForceIn, "failure_details": phaseErrors},
			phaseFailureMessage(phaseErrors))
	}
	return report.Success, nil
}

// dispatchTags reports one shared outcome per file: the batched tag
// call either covered every candidate or failed as a whole.
func (o *Orchestrator) dispatchTags(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result, candidates []string, kind rules.ActionType, serviceKey string, tags []string) (bool, error) {
	var report actions.TagReport
	if kind == rules.ActionAddTags {
		report = o.executor.AddTags(ctx, exec, candidates, serviceKey, tags)
	} else {
		report = o.executor.RemoveTags(ctx, exec, candidates, serviceKey, tags)
	}
	details.ActionResults = append(details.ActionResults, tagOutcome{TagReport: report, ActionType: kind})

	status := eventSuccess
	if report.Success {
		result.Succeeded += len(candidates)
	} else {
		status = eventFailure
		result.Failed += len(candidates)
	}
	for _, hash := range candidates {
		o.appendFileEvent(ctx, logger, exec, hash, status,
			map[string]any{"action": kind, "tag_service_key": serviceKey, "tags_to_process": tags},
			report.Message)
	}
	return report.Success, nil
}

func (o *Orchestrator) dispatchRating(ctx context.Context, exec *actions.Execution, logger *slog.Logger, details *runDetails, result *Result, candidates []string, action rules.ModifyRatingAction) (bool, error) {
	value := action.Value.Raw()
	flawless := true
	for _, hash := range candidates {
		report := o.executor.ModifyRating(ctx, exec, hash, action.RatingServiceKey, value)
		details.ActionResults = append(details.ActionResults, ratingOutcome{RatingReport: report, Hash: hash, ActionType: rules.ActionModifyRating})

		fields := map[string]any{
			"action":             rules.ActionModifyRating,
			"rating_service_key": action.RatingServiceKey,
			"rating_value":       value,
		}
		if report.Success {
			result.Succeeded++
			o.appendFileEvent(ctx, logger, exec, hash, eventSuccess, fields, "")
			if err := o.recordSuccess(ctx, exec, hash); err != nil {
				return false, err
			}
			continue
		}
		flawless = false
		result.Failed++
		o.appendFileEvent(ctx, logger, exec, hash, eventFailure, fields, report.Message)
	}
	return flawless, nil
}

// recordSuccess persists governance state after a successful governed
// action. A store failure is a critical abort.
func (o *Orchestrator) recordSuccess(ctx context.Context, exec *actions.Execution, hash string) error {
	if err := o.resolver.RecordSuccess(ctx, exec.Rule, hash); err != nil {
		return fmt.Errorf("record governance state: %w", err)
	}
	return nil
}

func destinationFailureMessage(failures []actions.DestinationFailure) string {
	parts := make([]string, 0, len(failures))
	for _, failure := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", failure.ServiceKey, failure.Message))
	}
	return strings.Join(parts, "; ")
}

func phaseFailureMessage(errs *actions.FilePhaseErrors) string {
	if errs == nil {
		return ""
	}
	parts := make([]string, 0, len(errs.Errors))
	for _, failure := range errs.Errors {
		parts = append(parts, failure.Message)
	}
	return fmt.Sprintf("%s: %s", errs.Phase, strings.Join(parts, "; "))
}

func sortedFailureKeys(m map[string]*actions.FilePhaseErrors) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
