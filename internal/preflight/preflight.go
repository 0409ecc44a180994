package preflight

import (
	"context"

	"butler/internal/config"
)

// Result reports the outcome of a single preflight check. Optional checks
// may fail without blocking daemon startup.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every startup check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Log directory (always checked)
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Logging.Dir))

	// Free space where logs and the database live
	results = append(results, CheckDiskSpace("Disk space", cfg.Logging.Dir))

	// Rules document (missing is fine, unparseable is not)
	results = append(results, CheckRulesDocument("Rules document", cfg.Rules.Path))

	// Database open and schema
	results = append(results, CheckDatabase(cfg))

	// Hydrus API. The daemon still starts when Hydrus is down so rules
	// can be inspected and edited; runs against a dead client fail on
	// their own.
	results = append(results, CheckHydrus(ctx, cfg.Hydrus.APIURL, cfg.Hydrus.APIKey))

	return results
}
