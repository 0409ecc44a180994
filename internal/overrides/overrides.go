// Package overrides arbitrates between rules that act on the same
// files. Placement and rating actions record the priority that won a
// file, and later runs only proceed when they outrank that record.
package overrides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"butler/internal/logging"
	"butler/internal/rules"
	"butler/internal/store"
)

// Store is the slice of the database the resolver needs.
type Store interface {
	FileGovernance(ctx context.Context, fileHash string) (*store.GovernanceRecord, error)
	UpsertFileGovernance(ctx context.Context, record *store.GovernanceRecord) error
}

// Decision reports whether a rule may act on a file and why.
type Decision struct {
	Allow  bool
	Reason string
}

func allow(reason string) Decision { return Decision{Allow: true, Reason: reason} }

func skip(reason string) Decision { return Decision{Reason: reason} }

// Resolver checks governed actions against recorded file state.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(st Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: st, logger: logging.NewComponentLogger(logger, "overrides")}
}

// Check reports whether a rule may act on a file. Bypass skips the
// governance lookup entirely for manual runs.
func (r *Resolver) Check(ctx context.Context, rule rules.Rule, bypass bool, fileHash string) (Decision, error) {
	if bypass {
		return allow("override bypassed for manual run"), nil
	}
	if !rule.ActionKind().Governed() {
		return allow("action type does not use the override system"), nil
	}

	record, err := r.store.FileGovernance(ctx, fileHash)
	switch {
	case errors.Is(err, store.ErrCorruptGovernance):
		logging.WarnWithContext(r.logger, "file governance state did not parse, allowing the run", "governance_state_corrupt",
			logging.String("file_hash", shortHash(fileHash)),
			logging.String(logging.FieldRuleID, rule.ID),
			logging.String(logging.FieldErrorHint, "the record will be rebuilt on the next successful action"),
			logging.String(logging.FieldImpact, "override protection is suspended for this file"))
		return allow("stored governance state is corrupted"), nil
	case err != nil:
		return Decision{}, fmt.Errorf("load file governance: %w", err)
	case record == nil:
		return allow("file is not tracked by the override system yet"), nil
	}

	decision := arbitrate(rule, record)
	if !decision.Allow {
		attrs := []logging.Attr{
			logging.String(logging.FieldRuleID, rule.ID),
			logging.String("file_hash", shortHash(fileHash)),
		}
		attrs = append(attrs, logging.DecisionAttrs("override", "skipped", decision.Reason)...)
		r.logger.Debug("file skipped by override governance", logging.Args(attrs...)...)
	}
	return decision, nil
}

// arbitrate applies the priority rules for one governed action.
// add_to runs at equal priority, force_in and modify_rating must win
// strictly.
func arbitrate(rule rules.Rule, record *store.GovernanceRecord) Decision {
	switch action := rule.Action.(type) {
	case rules.ModifyRatingAction:
		key := strings.TrimSpace(action.RatingServiceKey)
		if key == "" {
			return allow("modify_rating action has no rating service key")
		}
		winning := record.RatingPriorityFor(key)
		if rule.Importance > winning {
			return allow("")
		}
		return skip(fmt.Sprintf("a rule with priority %d or higher already won this rating service", winning))
	case rules.AddToAction:
		if rule.Importance >= record.ForceInPriority {
			return allow("")
		}
		return skip(fmt.Sprintf("a force_in rule with priority %d governs this file's placement", record.ForceInPriority))
	case rules.ForceInAction:
		if rule.Importance > record.ForceInPriority {
			return allow("")
		}
		return skip(fmt.Sprintf("another force_in rule with priority %d or higher already won", record.ForceInPriority))
	}
	return allow("action type does not use the override system")
}

// RecordSuccess folds a successful governed action into the file's
// governance record. Non-governed actions leave no trace.
func (r *Resolver) RecordSuccess(ctx context.Context, rule rules.Rule, fileHash string) error {
	if !rule.ActionKind().Governed() {
		return nil
	}

	record, err := r.store.FileGovernance(ctx, fileHash)
	switch {
	case errors.Is(err, store.ErrCorruptGovernance):
		record = store.NewGovernanceRecord(fileHash)
	case err != nil:
		return fmt.Errorf("load file governance: %w", err)
	case record == nil:
		record = store.NewGovernanceRecord(fileHash)
	}

	record.MarkRuleApplied(rule.ID)

	switch action := rule.Action.(type) {
	case rules.ModifyRatingAction:
		if key := strings.TrimSpace(action.RatingServiceKey); key != "" {
			record.TouchRatingService(key, rule.Importance)
		}
	case rules.AddToAction:
		record.AddPlacement(action.DestinationServiceKeys.Keys()...)
	case rules.ForceInAction:
		record.ReplacePlacement(action.DestinationServiceKeys.Keys(), rule.Importance)
	}

	if err := r.store.UpsertFileGovernance(ctx, record); err != nil {
		return fmt.Errorf("persist file governance: %w", err)
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
