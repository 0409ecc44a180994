package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runLogColumns = "run_log_id, parent_run_id, rule_id, rule_name, execution_order, start_time, end_time, status, matched_search_count, eligible_for_action_count, actions_succeeded_count, actions_failed_count, summary_message, details_json"

var runSortColumns = map[string]string{
	"timestamp_desc": "start_time DESC",
	"timestamp_asc":  "start_time ASC",
	"rule_name_asc":  "rule_name ASC",
	"rule_name_desc": "rule_name DESC",
	"status_asc":     "status ASC",
	"status_desc":    "status DESC",
}

// BeginRun inserts a run summary row in the started state. The run's
// start time is stamped here so scheduling reads one consistent clock.
func (s *Store) BeginRun(ctx context.Context, run *RunLog) error {
	if run == nil {
		return errors.New("run is nil")
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id required")
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}
	run.Status = RunStarted

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO run_logs (
            run_log_id, parent_run_id, rule_id, rule_name,
            execution_order, start_time, status
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.ParentRunID,
		run.RuleID,
		run.RuleName,
		run.ExecutionOrder,
		formatTime(run.StartTime),
		string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal status, counters, and summary.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, counts RunCounts, summary, detailsJSON string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE run_logs
         SET end_time = ?, status = ?, matched_search_count = ?,
             eligible_for_action_count = ?, actions_succeeded_count = ?,
             actions_failed_count = ?, summary_message = ?, details_json = ?
         WHERE run_log_id = ?`,
		formatTime(time.Now().UTC()),
		string(status),
		counts.Matched,
		counts.Eligible,
		counts.Succeeded,
		counts.Failed,
		nullableString(summary),
		nullableString(detailsJSON),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run log: %w", err)
	}
	return nil
}

// RunByID fetches one run summary, nil when absent.
func (s *Store) RunByID(ctx context.Context, runID string) (*RunLog, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runLogColumns+` FROM run_logs WHERE run_log_id = ?`, runID)
	run, err := scanRunLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run log: %w", err)
	}
	return run, nil
}

// AppendFileEvent records one file-level action outcome within a run.
func (s *Store) AppendFileEvent(ctx context.Context, event *FileEvent) error {
	if event == nil {
		return errors.New("file event is nil")
	}
	details := event.Details
	if details == "" {
		details = "{}"
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO file_events (run_log_id, file_hash, status, details_json, message)
         VALUES (?, ?, ?, ?, ?)`,
		event.RunLogID,
		event.FileHash,
		event.Status,
		details,
		nullableString(event.Message),
	)
	if err != nil {
		return fmt.Errorf("insert file event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// FileEventsForRun returns a run's file events in insertion order.
func (s *Store) FileEventsForRun(ctx context.Context, runID string) ([]FileEvent, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT event_id, run_log_id, file_hash, status, details_json, message
         FROM file_events WHERE run_log_id = ? ORDER BY event_id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query file events: %w", err)
	}
	defer rows.Close()

	var events []FileEvent
	for rows.Next() {
		event, err := scanFileEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SearchRuns returns run summaries matching the search, plus the total
// match count before paging. The limit is clamped to 1..500.
func (s *Store) SearchRuns(ctx context.Context, search RunSearch) ([]RunLog, int, error) {
	ctx = ensureContext(ctx)

	limit := search.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := search.Offset
	if offset < 0 {
		offset = 0
	}

	end := search.Frame.End
	if end.IsZero() {
		end = time.Now().UTC()
	}

	where := []string{"start_time <= ?"}
	args := []any{formatTime(end)}
	if !search.Frame.Start.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(search.Frame.Start))
	}
	if search.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, search.RuleID)
	}
	if search.RuleName != "" {
		where = append(where, "rule_name LIKE ?")
		args = append(args, "%"+search.RuleName+"%")
	}
	if search.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(search.Status))
	}
	if search.Text != "" {
		where = append(where, "(rule_name LIKE ? OR summary_message LIKE ?)")
		pattern := "%" + search.Text + "%"
		args = append(args, pattern, pattern)
	}

	orderBy, ok := runSortColumns[search.SortBy]
	if !ok {
		orderBy = runSortColumns["timestamp_desc"]
	}
	whereSQL := "WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(run_log_id) FROM run_logs `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count run logs: %w", err)
	}

	query := `SELECT ` + runLogColumns + ` FROM run_logs ` + whereSQL + ` ORDER BY ` + orderBy + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search run logs: %w", err)
	}
	defer rows.Close()

	var runs []RunLog
	for rows.Next() {
		run, err := scanRunLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run log: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

// RuleStats aggregates a rule's run history.
func (s *Store) RuleStats(ctx context.Context, ruleID string) (RuleStats, error) {
	var (
		total     int
		completed sql.NullInt64
		files     sql.NullInt64
		lastRaw   sql.NullString
	)
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(run_log_id),
                SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END),
                SUM(actions_succeeded_count),
                MAX(start_time)
         FROM run_logs WHERE rule_id = ?`,
		string(RunSucceeded),
		string(RunFailedCritical),
		ruleID,
	).Scan(&total, &completed, &files, &lastRaw)
	if err != nil {
		return RuleStats{}, fmt.Errorf("query rule stats: %w", err)
	}

	stats := RuleStats{
		TotalRuns:      total,
		CompletedRuns:  int(completed.Int64),
		FilesProcessed: int(files.Int64),
	}
	if lastRaw.Valid && lastRaw.String != "" {
		if last, err := parseTimeString(lastRaw.String); err == nil {
			stats.LastRun = &last
		}
	}
	return stats, nil
}

// ActionTotals sums successful file actions per rule name over a time
// frame, busiest rules first. Only completed runs count.
func (s *Store) ActionTotals(ctx context.Context, frame TimeFrame) ([]ActionTotal, error) {
	query := `SELECT rule_name, SUM(actions_succeeded_count) AS total
              FROM run_logs
              WHERE status IN (?, ?) AND actions_succeeded_count > 0`
	args := []any{string(RunSucceeded), string(RunFailedCritical)}
	if !frame.Start.IsZero() {
		end := frame.End
		if end.IsZero() {
			end = time.Now().UTC()
		}
		query += ` AND start_time >= ? AND start_time <= ?`
		args = append(args, formatTime(frame.Start), formatTime(end))
	}
	query += ` GROUP BY rule_name ORDER BY total DESC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query action totals: %w", err)
	}
	defer rows.Close()

	var totals []ActionTotal
	for rows.Next() {
		var entry ActionTotal
		if err := rows.Scan(&entry.RuleName, &entry.Succeeded); err != nil {
			return nil, fmt.Errorf("scan action total: %w", err)
		}
		totals = append(totals, entry)
	}
	return totals, rows.Err()
}

// FileHistory returns every recorded event for a file joined with its
// run metadata, newest run first.
func (s *Store) FileHistory(ctx context.Context, fileHash string) ([]FileHistoryEntry, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT e.event_id, e.run_log_id, r.rule_id, r.rule_name, r.start_time,
                e.status, e.details_json, e.message
         FROM file_events e
         JOIN run_logs r ON e.run_log_id = r.run_log_id
         WHERE e.file_hash = ?
         ORDER BY r.start_time DESC, e.event_id DESC`,
		fileHash,
	)
	if err != nil {
		return nil, fmt.Errorf("query file history: %w", err)
	}
	defer rows.Close()

	var history []FileHistoryEntry
	for rows.Next() {
		var (
			entry    FileHistoryEntry
			startRaw string
			message  sql.NullString
		)
		if err := rows.Scan(
			&entry.EventID,
			&entry.RunLogID,
			&entry.RuleID,
			&entry.RuleName,
			&startRaw,
			&entry.Status,
			&entry.Details,
			&message,
		); err != nil {
			return nil, fmt.Errorf("scan file history: %w", err)
		}
		entry.Message = message.String
		if started, err := parseTimeString(startRaw); err == nil {
			entry.StartTime = started
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// PruneDuplicateEvents removes redundant file events. Within each
// (file, run, status, message) group it keeps the oldest keepOldest and
// newest keepNewest rows and deletes the middle. Negative arguments take
// the defaults (2 and 3).
func (s *Store) PruneDuplicateEvents(ctx context.Context, keepOldest, keepNewest int) (int64, error) {
	if keepOldest < 0 {
		keepOldest = 2
	}
	if keepNewest < 0 {
		keepNewest = 3
	}
	totalToKeep := keepOldest + keepNewest

	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	type eventGroup struct {
		fileHash string
		runLogID string
		status   string
		message  string
	}

	rows, err := tx.QueryContext(
		ctx,
		`SELECT file_hash, run_log_id, status, COALESCE(message, ''), COUNT(*)
         FROM file_events
         GROUP BY file_hash, run_log_id, status, COALESCE(message, '')
         HAVING COUNT(*) > ?`,
		totalToKeep,
	)
	if err != nil {
		return 0, fmt.Errorf("query duplicate groups: %w", err)
	}

	var groups []eventGroup
	for rows.Next() {
		var group eventGroup
		var count int
		if err := rows.Scan(&group.fileHash, &group.runLogID, &group.status, &group.message, &count); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan duplicate group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var deleted int64
	for _, group := range groups {
		idRows, err := tx.QueryContext(
			ctx,
			`SELECT event_id FROM file_events
             WHERE file_hash = ? AND run_log_id = ? AND status = ? AND COALESCE(message, '') = ?
             ORDER BY event_id ASC`,
			group.fileHash,
			group.runLogID,
			group.status,
			group.message,
		)
		if err != nil {
			return 0, fmt.Errorf("query group events: %w", err)
		}
		var ids []int64
		for idRows.Next() {
			var id int64
			if err := idRows.Scan(&id); err != nil {
				idRows.Close()
				return 0, fmt.Errorf("scan group event id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := idRows.Err(); err != nil {
			idRows.Close()
			return 0, err
		}
		idRows.Close()

		if len(ids) <= totalToKeep {
			continue
		}
		doomed := ids[keepOldest : len(ids)-keepNewest]
		if len(doomed) == 0 {
			continue
		}

		args := make([]any, len(doomed))
		for i, id := range doomed {
			args[i] = id
		}
		res, err := tx.ExecContext(
			ctx,
			`DELETE FROM file_events WHERE event_id IN (`+makePlaceholders(len(doomed))+`)`,
			args...,
		)
		if err != nil {
			return 0, fmt.Errorf("delete duplicate events: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			deleted += affected
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return deleted, nil
}

// ContentCounts reports coarse row counts for status output.
func (s *Store) ContentCounts(ctx context.Context) (Counts, error) {
	ctx = ensureContext(ctx)
	counts := Counts{}
	targets := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(rule_id) FROM rules`, &counts.Rules},
		{`SELECT COUNT(id) FROM rule_sets`, &counts.Sets},
		{`SELECT COUNT(run_log_id) FROM run_logs`, &counts.Runs},
		{`SELECT COUNT(event_id) FROM file_events`, &counts.FileEvents},
		{`SELECT COUNT(file_hash) FROM files`, &counts.TrackedFiles},
	}
	for _, target := range targets {
		if err := s.db.QueryRowContext(ctx, target.query).Scan(target.dest); err != nil {
			return Counts{}, fmt.Errorf("count rows: %w", err)
		}
	}
	return counts, nil
}

func scanRunLog(scanner interface{ Scan(dest ...any) error }) (*RunLog, error) {
	var (
		id        string
		parent    string
		ruleID    string
		ruleName  string
		order     int
		startRaw  string
		endRaw    sql.NullString
		status    string
		matched   sql.NullInt64
		eligible  sql.NullInt64
		succeeded sql.NullInt64
		failed    sql.NullInt64
		summary   sql.NullString
		details   sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&parent,
		&ruleID,
		&ruleName,
		&order,
		&startRaw,
		&endRaw,
		&status,
		&matched,
		&eligible,
		&succeeded,
		&failed,
		&summary,
		&details,
	); err != nil {
		return nil, err
	}

	run := &RunLog{
		ID:             id,
		ParentRunID:    parent,
		RuleID:         ruleID,
		RuleName:       ruleName,
		ExecutionOrder: order,
		Status:         RunStatus(status),
		Matched:        int(matched.Int64),
		Eligible:       int(eligible.Int64),
		Succeeded:      int(succeeded.Int64),
		Failed:         int(failed.Int64),
		Summary:        summary.String,
		DetailsJSON:    details.String,
	}
	if started, err := parseTimeString(startRaw); err == nil {
		run.StartTime = started
	}
	if endRaw.Valid {
		if ended, err := parseTimeString(endRaw.String); err == nil {
			run.EndTime = &ended
		}
	}
	return run, nil
}

func scanFileEvent(scanner interface{ Scan(dest ...any) error }) (FileEvent, error) {
	var (
		event   FileEvent
		message sql.NullString
	)
	if err := scanner.Scan(
		&event.ID,
		&event.RunLogID,
		&event.FileHash,
		&event.Status,
		&event.Details,
		&message,
	); err != nil {
		return FileEvent{}, err
	}
	event.Message = message.String
	return event, nil
}
