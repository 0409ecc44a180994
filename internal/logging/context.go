package logging

import (
	"context"
	"log/slog"

	"butler/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRuleID is the standardized structured logging key for rule identifiers.
	FieldRuleID = "rule_id"
	// FieldRuleName is the standardized structured logging key for human-readable rule names.
	FieldRuleName = "rule_name"
	// FieldRunID is the standardized structured logging key for rule execution identifiers.
	FieldRunID = "run_id"
	// FieldParentRunID is the standardized structured logging key for the batch a run belongs to.
	FieldParentRunID = "parent_run_id"
	// FieldAction is the standardized structured logging key for rule action types.
	FieldAction = "action"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator next steps.
	FieldErrorHint = "error_hint"
	// FieldDecisionType is the standardized structured logging key for decision log entries.
	FieldDecisionType = "decision_type"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RuleIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRuleID, id))
	}
	if name, ok := services.RuleNameFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRuleName, name))
	}
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
