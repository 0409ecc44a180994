// Package scheduler drives automatic rule execution. A short fixed tick
// computes the due-rule set as the union of three sources: rules with
// their own custom interval, rule sets with a set-level interval (which
// pull in every member), and the remaining rules under the global
// default cadence. Due rules run sequentially in cross-rule execution
// order under one shared parent run id, so one slow or failing rule
// cannot starve the rest of the tick.
//
// The scheduler also owns the daily duplicate-event sweep, armed as a
// cron job only while the scheduler is running and log pruning is
// enabled in config.
package scheduler
