package ipc

import (
	"time"

	"butler/internal/daemon"
	"butler/internal/orchestrator"
	"butler/internal/rules"
	"butler/internal/scheduler"
	"butler/internal/services/hydrus"
	"butler/internal/store"
)

// StartRequest resumes scheduled rule execution.
type StartRequest struct{}

// StartResponse indicates whether the scheduler was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest pauses scheduled rule execution. The daemon process stays
// up and keeps answering IPC.
type StopRequest struct{}

// StopResponse indicates pause result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse reports whether shutdown was initiated.
type ShutdownResponse struct {
	Initiated bool `json:"initiated"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// ContentCounts is a coarse snapshot of stored content for status output.
type ContentCounts struct {
	Rules        int `json:"rules"`
	Sets         int `json:"sets"`
	Runs         int `json:"runs"`
	FileEvents   int `json:"file_events"`
	TrackedFiles int `json:"tracked_files"`
}

// StatusResponse represents combined daemon/scheduler status information.
type StatusResponse struct {
	Running      bool                    `json:"running"`
	PID          int                     `json:"pid"`
	Scheduler    scheduler.StatusSummary `json:"scheduler"`
	Counts       ContentCounts           `json:"counts"`
	DatabasePath string                  `json:"database_path"`
	RulesPath    string                  `json:"rules_path"`
	LockPath     string                  `json:"lock_path"`
	LogPath      string                  `json:"log_path"`
	HydrusOK     bool                    `json:"hydrus_ok"`
	HydrusDetail string                  `json:"hydrus_detail"`
}

// RuleResult mirrors one rule execution outcome for IPC callers.
type RuleResult = orchestrator.Result

// BatchTotals aggregates counters across a multi-rule run.
type BatchTotals = daemon.BatchTotals

// RunRuleRequest executes a single rule by id or name.
type RunRuleRequest struct {
	Rule           string `json:"rule"`
	Deep           bool   `json:"deep"`
	BypassOverride bool   `json:"bypass_override"`
}

// RunRuleResponse carries the execution result.
type RunRuleResponse struct {
	Result RuleResult `json:"result"`
}

// RunAllRequest executes every rule in execution order.
type RunAllRequest struct{}

// RunSetRequest executes the members of one rule set, or every rule
// when Set is the reserved id "all".
type RunSetRequest struct {
	Set string `json:"set"`
}

// BatchResponse carries the results of a multi-rule run.
type BatchResponse struct {
	ParentRunID string       `json:"parent_run_id"`
	Scope       string       `json:"scope"`
	Results     []RuleResult `json:"results"`
	Totals      BatchTotals  `json:"totals"`
}

// EstimateRequest previews a rule's impact without acting.
type EstimateRequest struct {
	Rule           string `json:"rule"`
	Deep           bool   `json:"deep"`
	BypassOverride bool   `json:"bypass_override"`
}

// EstimateResponse carries the dry-run estimate.
type EstimateResponse struct {
	Estimate orchestrator.Estimate `json:"estimate"`
}

// RulesRequest lists rules in document order.
type RulesRequest struct{}

// RulesResponse contains the loaded rules with their run metadata.
type RulesResponse struct {
	Rules []rules.Rule `json:"rules"`
}

// SetsRequest lists rule sets.
type SetsRequest struct{}

// SetsResponse contains the defined rule sets.
type SetsResponse struct {
	Sets []rules.RuleSet `json:"sets"`
}

// ServicesRequest fetches the client API service catalog.
type ServicesRequest struct{}

// ServicesResponse contains the catalog services.
type ServicesResponse struct {
	Services []hydrus.Service `json:"services"`
}

// RunSummary is one run-log row for history output.
type RunSummary struct {
	ID             string     `json:"id"`
	ParentRunID    string     `json:"parent_run_id"`
	RuleID         string     `json:"rule_id"`
	RuleName       string     `json:"rule_name"`
	ExecutionOrder int        `json:"execution_order"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Status         string     `json:"status"`
	Matched        int        `json:"files_matched"`
	Eligible       int        `json:"files_eligible"`
	Succeeded      int        `json:"files_succeeded"`
	Failed         int        `json:"files_failed"`
	Summary        string     `json:"summary"`
}

// RunSearchRequest filters and pages the run history.
type RunSearchRequest struct {
	Rule   string `json:"rule"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Frame  string `json:"frame"`
	SortBy string `json:"sort_by"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// RunSearchResponse contains matching runs and the unpaged total.
type RunSearchResponse struct {
	Runs  []RunSummary `json:"runs"`
	Total int          `json:"total"`
}

// RunDetailsRequest fetches one run and its file events.
type RunDetailsRequest struct {
	RunID string `json:"run_id"`
}

// FileEventSummary is one file-level action record within a run.
type FileEventSummary struct {
	FileHash string `json:"file_hash"`
	Status   string `json:"status"`
	Details  string `json:"details"`
	Message  string `json:"message"`
}

// RunDetailsResponse contains the run row and its per-file events.
type RunDetailsResponse struct {
	Run    RunSummary         `json:"run"`
	Events []FileEventSummary `json:"events"`
}

// FileLookupRequest fetches governance state and history for a file hash.
type FileLookupRequest struct {
	Hash string `json:"hash"`
}

// FileHistoryEvent is a file event joined with its run's metadata.
type FileHistoryEvent struct {
	RunLogID  string    `json:"run_log_id"`
	RuleID    string    `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"`
	Details   string    `json:"details"`
	Message   string    `json:"message"`
}

// FileLookupResponse contains the file's governance record, when
// tracked, and its full event history.
type FileLookupResponse struct {
	Tracked    bool                    `json:"tracked"`
	Governance *store.GovernanceRecord `json:"governance,omitempty"`
	History    []FileHistoryEvent      `json:"history"`
}

// RuleStatsRequest fetches run statistics for one rule.
type RuleStatsRequest struct {
	Rule string `json:"rule"`
}

// RuleStatsResponse contains the rule definition and its aggregates.
type RuleStatsResponse struct {
	Rule           rules.Rule `json:"rule"`
	TotalRuns      int        `json:"total_runs"`
	CompletedRuns  int        `json:"completed_runs"`
	FilesProcessed int        `json:"files_processed"`
	LastRun        *time.Time `json:"last_run,omitempty"`
}

// PruneLogsRequest compacts duplicate no-op file events.
type PruneLogsRequest struct{}

// PruneLogsResponse reports number of removed event rows.
type PruneLogsResponse struct {
	Removed int64 `json:"removed"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
