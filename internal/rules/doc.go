// Package rules defines the rule model: the condition and action sums,
// the rules.json document codec, the registry that merges document
// definitions with stored scheduling metadata, and the cross-rule
// execution ordering.
package rules
