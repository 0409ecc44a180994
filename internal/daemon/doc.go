// Package daemon assembles the rule engine into the long-running
// butlerd process: it owns the single-instance file lock, drives the
// tick scheduler, and exposes manual runs, impact estimation, and
// history queries to the IPC layer.
//
// Manual runs and scheduled ticks share one run lock so governance
// writes stay serialized per rule execution. Stopping the daemon only
// pauses the scheduler; the process itself exits through
// RequestShutdown or a signal.
package daemon
