package services

import "context"

type contextKey string

const (
	ruleIDKey    contextKey = "rule_id"
	ruleNameKey  contextKey = "rule_name"
	runIDKey     contextKey = "run_id"
	requestIDKey contextKey = "request_id"
)

// WithRuleID annotates context with the rule identifier.
func WithRuleID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ruleIDKey, id)
}

// RuleIDFromContext extracts the rule identifier if present.
func RuleIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(ruleIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRuleName annotates context with the human-readable rule name.
func WithRuleName(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, ruleNameKey, name)
}

// RuleNameFromContext returns the rule name if present.
func RuleNameFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(ruleNameKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the rule execution identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the execution identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
