package store

import "time"

// RunStatus tracks a run summary row through its lifecycle.
type RunStatus string

const (
	RunStarted        RunStatus = "started"
	RunSucceeded      RunStatus = "success_completed"
	RunFailedCritical RunStatus = "failure_critical"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailedCritical
}

// RunLog is one rule execution's summary row.
type RunLog struct {
	ID             string
	ParentRunID    string
	RuleID         string
	RuleName       string
	ExecutionOrder int
	StartTime      time.Time
	EndTime        *time.Time
	Status         RunStatus
	Matched        int
	Eligible       int
	Succeeded      int
	Failed         int
	Summary        string
	DetailsJSON    string
}

// RunCounts carries the summary counters recorded when a run finishes.
type RunCounts struct {
	Matched   int
	Eligible  int
	Succeeded int
	Failed    int
}

// FileEvent is one file-level action record within a run.
type FileEvent struct {
	ID       int64
	RunLogID string
	FileHash string
	Status   string
	Details  string
	Message  string
}

// FileHistoryEntry is a file event joined with its run's metadata.
type FileHistoryEntry struct {
	EventID   int64
	RunLogID  string
	RuleID    string
	RuleName  string
	StartTime time.Time
	Status    string
	Details   string
	Message   string
}

// RuleStats summarizes the run history of one rule.
type RuleStats struct {
	TotalRuns      int
	CompletedRuns  int
	FilesProcessed int
	LastRun        *time.Time
}

// ActionTotal is the number of successful file actions credited to a
// rule name over a time frame.
type ActionTotal struct {
	RuleName  string
	Succeeded int
}

// Counts is a coarse content snapshot for status output.
type Counts struct {
	Rules        int
	Sets         int
	Runs         int
	FileEvents   int
	TrackedFiles int
}

// TimeFrame bounds history queries. A zero Start means unbounded.
type TimeFrame struct {
	Label string
	Start time.Time
	End   time.Time
}

// TimeFrameLabels lists the named frames ParseTimeFrame accepts.
var TimeFrameLabels = []string{"24h", "3d", "1w", "1m", "6m", "1y", "all"}

// ParseTimeFrame resolves a named time frame relative to now. An empty
// or unrecognized label falls back to one week.
func ParseTimeFrame(label string, now time.Time) TimeFrame {
	now = now.UTC()
	frame := TimeFrame{Label: label, End: now}
	switch label {
	case "24h":
		frame.Start = now.Add(-24 * time.Hour)
	case "3d":
		frame.Start = now.AddDate(0, 0, -3)
	case "1w":
		frame.Start = now.AddDate(0, 0, -7)
	case "1m":
		frame.Start = now.AddDate(0, 0, -30)
	case "6m":
		frame.Start = now.AddDate(0, 0, -180)
	case "1y":
		frame.Start = now.AddDate(0, 0, -365)
	case "all":
	default:
		frame.Label = "1w"
		frame.Start = now.AddDate(0, 0, -7)
	}
	return frame
}

// RunSearch filters and pages the run-log history.
type RunSearch struct {
	RuleID   string
	RuleName string
	Status   RunStatus
	Text     string
	Frame    TimeFrame
	SortBy   string
	Limit    int
	Offset   int
}
