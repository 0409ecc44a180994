package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"butler/internal/logging"
)

// MetadataStore supplies and maintains the store-owned rule state the
// registry merges with the document.
type MetadataStore interface {
	RuleMetadata(ctx context.Context) (map[string]Metadata, error)
	UpsertRuleMetadata(ctx context.Context, meta Metadata) error
	DeleteRuleMetadata(ctx context.Context, ruleID string) error
	ClearRuleFileState(ctx context.Context, ruleID string, action ActionType, destination string) (int, error)
}

// Registry merges the user-edited rules document with stored scheduling
// metadata. The document is authoritative for definitions and user
// order; the store is authoritative for scheduling and run state.
type Registry struct {
	path   string
	store  MetadataStore
	logger *slog.Logger
}

// NewRegistry builds a registry over a document path and the store.
func NewRegistry(path string, store MetadataStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		path:   path,
		store:  store,
		logger: logging.NewComponentLogger(logger, "rules"),
	}
}

// DocumentPath returns the path of the rules document.
func (r *Registry) DocumentPath() string { return r.path }

// Definitions reads the document in user order, skipping entries with
// no id.
func (r *Registry) Definitions() ([]Rule, error) {
	list, err := LoadDocument(r.path)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(list))
	for _, rule := range list {
		if strings.TrimSpace(rule.ID) == "" {
			r.logger.Warn("skipping rule with no id in document", logging.String("rule_name", rule.Name))
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// LoadUserOrder returns merged rules in document order. Document rules
// with no stored metadata are excluded with a warning; they cannot be
// scheduled or ordered until registered.
func (r *Registry) LoadUserOrder(ctx context.Context) ([]Rule, error) {
	definitions, err := r.Definitions()
	if err != nil {
		return nil, err
	}
	if len(definitions) == 0 {
		return nil, nil
	}

	metadata, err := r.store.RuleMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rule metadata: %w", err)
	}

	merged := make([]Rule, 0, len(definitions))
	for _, rule := range definitions {
		meta, ok := metadata[rule.ID]
		if !ok {
			r.logger.Warn("rule present in document but not registered, ignoring",
				logging.String(logging.FieldRuleID, rule.ID),
				logging.String("rule_name", rule.Name))
			continue
		}
		rule.ApplyMetadata(meta)
		merged = append(merged, rule)
	}
	return merged, nil
}

// Load returns the merged rule list in cross-rule execution order.
func (r *Registry) Load(ctx context.Context) ([]Rule, error) {
	merged, err := r.LoadUserOrder(ctx)
	if err != nil {
		return nil, err
	}
	SortForExecution(merged)
	return merged, nil
}

// Sync registers document rules that have no stored metadata yet, so
// hand-added rules become schedulable. Returns the number registered.
func (r *Registry) Sync(ctx context.Context) (int, error) {
	definitions, err := r.Definitions()
	if err != nil {
		return 0, err
	}
	if len(definitions) == 0 {
		return 0, nil
	}

	metadata, err := r.store.RuleMetadata(ctx)
	if err != nil {
		return 0, fmt.Errorf("load rule metadata: %w", err)
	}

	registered := 0
	for _, rule := range definitions {
		if _, ok := metadata[rule.ID]; ok {
			continue
		}
		meta := Metadata{
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Created:   time.Now().UTC(),
			DeepCheck: DeepCheckPolicy{Frequency: DeepCheckFirstRunOnly},
		}
		if err := r.store.UpsertRuleMetadata(ctx, meta); err != nil {
			return registered, fmt.Errorf("register rule %s: %w", rule.ID, err)
		}
		r.logger.Info("registered rule from document",
			logging.String(logging.FieldRuleID, rule.ID),
			logging.String("rule_name", rule.Name))
		registered++
	}
	return registered, nil
}

// UpsertRule adds or updates one rule: the store metadata first, then
// the document. Updating clears the previous action's file-state
// contribution so stale placement and rating governance cannot linger.
func (r *Registry) UpsertRule(ctx context.Context, rule Rule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("rule id required")
	}

	definitions, err := r.Definitions()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range definitions {
		if existing.ID != rule.ID {
			continue
		}
		if err := r.clearActionState(ctx, existing); err != nil {
			return err
		}
		definitions[i] = rule
		replaced = true
		break
	}
	if !replaced {
		definitions = append(definitions, rule)
	}

	meta := rule.Meta()
	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}
	if meta.DeepCheck.Frequency == "" {
		meta.DeepCheck.Frequency = DeepCheckFirstRunOnly
	}
	if err := r.store.UpsertRuleMetadata(ctx, meta); err != nil {
		return fmt.Errorf("upsert rule metadata: %w", err)
	}
	return SaveDocument(r.path, definitions)
}

// DeleteRule removes one rule from the document and the store, clearing
// its file-state contribution.
func (r *Registry) DeleteRule(ctx context.Context, ruleID string) error {
	definitions, err := r.Definitions()
	if err != nil {
		return err
	}

	kept := make([]Rule, 0, len(definitions))
	var removed *Rule
	for _, rule := range definitions {
		if rule.ID == ruleID {
			deleted := rule
			removed = &deleted
			continue
		}
		kept = append(kept, rule)
	}
	if removed == nil {
		return fmt.Errorf("rule %s not found", ruleID)
	}

	if err := r.clearActionState(ctx, *removed); err != nil {
		return err
	}
	if err := r.store.DeleteRuleMetadata(ctx, ruleID); err != nil {
		return fmt.Errorf("delete rule metadata: %w", err)
	}
	return SaveDocument(r.path, kept)
}

// clearActionState reverses a rule's governance contribution for each
// destination its action touched.
func (r *Registry) clearActionState(ctx context.Context, rule Rule) error {
	if rule.Action == nil {
		return nil
	}

	var destinations []string
	switch action := rule.Action.(type) {
	case AddToAction:
		destinations = action.DestinationServiceKeys.Keys()
	case ForceInAction:
		destinations = action.DestinationServiceKeys.Keys()
	case ModifyRatingAction:
		if strings.TrimSpace(action.RatingServiceKey) != "" {
			destinations = []string{action.RatingServiceKey}
		}
	case AddTagsAction, RemoveTagsAction:
		return nil
	}

	for _, destination := range destinations {
		cleaned, err := r.store.ClearRuleFileState(ctx, rule.ID, rule.ActionKind(), destination)
		if err != nil {
			return fmt.Errorf("clear rule state for %s: %w", destination, err)
		}
		if cleaned > 0 {
			r.logger.Info("cleared rule file state",
				logging.String(logging.FieldRuleID, rule.ID),
				logging.String("destination", destination),
				logging.Int("files", cleaned))
		}
	}
	return nil
}
