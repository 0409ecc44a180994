package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"

	"butler/internal/preflight"
	"butler/internal/rules"
	"butler/internal/scheduler"
	"butler/internal/services/hydrus"
	"butler/internal/store"
)

// Status is the daemon's runtime snapshot for the status surface.
type Status struct {
	Running      bool
	PID          int
	Scheduler    scheduler.StatusSummary
	Counts       store.Counts
	DatabasePath string
	RulesPath    string
	LockPath     string
	LogPath      string
	HydrusOK     bool
	HydrusDetail string
}

// Status reports the current daemon state, including a live Hydrus
// connectivity probe.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Scheduler:    d.sched.Status(),
		DatabasePath: d.store.Path(),
		RulesPath:    d.registry.DocumentPath(),
		LockPath:     d.lockPath,
		LogPath:      d.logPath,
	}
	if counts, err := d.store.ContentCounts(ctx); err == nil {
		status.Counts = counts
	}
	hydrusCheck := preflight.CheckHydrusFromConfig(d.cfg)
	status.HydrusOK = hydrusCheck.Passed
	status.HydrusDetail = hydrusCheck.Detail
	return status
}

// Rules returns the merged rule list in document order.
func (d *Daemon) Rules(ctx context.Context) ([]rules.Rule, error) {
	return d.registry.LoadUserOrder(ctx)
}

// Sets returns every rule set with its membership.
func (d *Daemon) Sets(ctx context.Context) ([]rules.RuleSet, error) {
	return d.store.RuleSets(ctx)
}

// Services fetches the current remote service catalog.
func (d *Daemon) Services(ctx context.Context) (*hydrus.Catalog, error) {
	return d.client.GetServices(ctx)
}

// SearchRuns pages the run-log history.
func (d *Daemon) SearchRuns(ctx context.Context, search store.RunSearch) ([]store.RunLog, int, error) {
	return d.store.SearchRuns(ctx, search)
}

// RunDetails returns one run with its file events.
func (d *Daemon) RunDetails(ctx context.Context, runID string) (*store.RunLog, []store.FileEvent, error) {
	run, err := d.store.RunByID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, fmt.Errorf("run %q not found", runID)
	}
	events, err := d.store.FileEventsForRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, events, nil
}

// FileLookup returns a file's governance record (nil when untracked)
// and its event history.
func (d *Daemon) FileLookup(ctx context.Context, fileHash string) (*store.GovernanceRecord, []store.FileHistoryEntry, error) {
	record, err := d.store.FileGovernance(ctx, fileHash)
	if err != nil && !errors.Is(err, store.ErrCorruptGovernance) {
		return nil, nil, err
	}
	history, err := d.store.FileHistory(ctx, fileHash)
	if err != nil {
		return nil, nil, err
	}
	return record, history, nil
}

// RuleStats summarizes one rule's run history.
func (d *Daemon) RuleStats(ctx context.Context, ident string) (rules.Rule, store.RuleStats, error) {
	rule, err := d.findRule(ctx, ident)
	if err != nil {
		return rules.Rule{}, store.RuleStats{}, err
	}
	stats, err := d.store.RuleStats(ctx, rule.ID)
	if err != nil {
		return rules.Rule{}, store.RuleStats{}, err
	}
	return rule, stats, nil
}

// PruneLogs runs the duplicate file-event sweep once.
func (d *Daemon) PruneLogs(ctx context.Context) (int64, error) {
	return d.store.PruneDuplicateEvents(ctx, d.cfg.Pruning.KeepOldest, d.cfg.Pruning.KeepNewest)
}
