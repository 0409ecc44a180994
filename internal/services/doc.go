// Package services defines shared utilities consumed by the rule engine and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp rule IDs, run IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (configuration vs network vs transient) at the orchestrator boundary.
//
// Use these helpers when wiring new engine logic so operational behaviour
// (error handling, observability) stays uniform across components.
package services
