package rules

import (
	"fmt"
	"strings"
)

// Predicate is one search term handed to the client API: a single
// literal, or an OR group of mutually alternative literals.
type Predicate struct {
	literal string
	anyOf   []string
}

// Literal wraps one predicate string.
func Literal(value string) Predicate {
	return Predicate{literal: value}
}

// AnyOf wraps a group of alternatives.
func AnyOf(values ...string) Predicate {
	return Predicate{anyOf: append([]string(nil), values...)}
}

// IsGroup reports whether the predicate is an OR group.
func (p Predicate) IsGroup() bool { return p.anyOf != nil }

// Value returns the literal payload; empty for groups.
func (p Predicate) Value() string { return p.literal }

// Alternatives returns the group members; nil for literals.
func (p Predicate) Alternatives() []string {
	if p.anyOf == nil {
		return nil
	}
	return append([]string(nil), p.anyOf...)
}

// String renders the predicate for warnings and logs.
func (p Predicate) String() string {
	if p.IsGroup() {
		return "[" + strings.Join(p.anyOf, " OR ") + "]"
	}
	return p.literal
}

// FlattenPredicates converts predicates into the wire shape the search
// endpoint expects: a JSON array whose elements are strings or arrays
// of strings.
func FlattenPredicates(preds []Predicate) []any {
	out := make([]any, 0, len(preds))
	for _, p := range preds {
		if p.IsGroup() {
			out = append(out, p.Alternatives())
			continue
		}
		out = append(out, p.Value())
	}
	return out
}

// RenderPredicates renders a predicate list for human-readable notes.
func RenderPredicates(preds []Predicate) string {
	return fmt.Sprintf("%v", FlattenPredicates(preds))
}
