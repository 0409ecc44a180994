package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"butler/internal/rules"
)

const ruleColumns = "rule_id, rule_name, has_been_run, creation_timestamp, execution_override, interval_seconds, force_in_check_frequency, force_in_check_interval_runs, run_count"

// RuleMetadata returns the stored scheduling state for every registered
// rule, keyed by rule id.
func (s *Store) RuleMetadata(ctx context.Context) (map[string]rules.Metadata, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+ruleColumns+` FROM rules`)
	if err != nil {
		return nil, fmt.Errorf("query rule metadata: %w", err)
	}
	defer rows.Close()

	metadata := make(map[string]rules.Metadata)
	for rows.Next() {
		meta, err := scanRuleMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule metadata: %w", err)
		}
		metadata[meta.RuleID] = meta
	}
	return metadata, rows.Err()
}

// UpsertRuleMetadata registers a rule or updates its scheduling fields.
// Run state (has_been_run, run_count) and the creation timestamp are
// written on insert only; updates never reset them.
func (s *Store) UpsertRuleMetadata(ctx context.Context, meta rules.Metadata) error {
	if meta.RuleID == "" {
		return errors.New("rule id required")
	}
	created := meta.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	frequency := meta.DeepCheck.Frequency
	if frequency == "" {
		frequency = rules.DeepCheckFirstRunOnly
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO rules (
            rule_id, rule_name, has_been_run, creation_timestamp,
            execution_override, interval_seconds,
            force_in_check_frequency, force_in_check_interval_runs, run_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(rule_id) DO UPDATE SET
            rule_name = excluded.rule_name,
            execution_override = excluded.execution_override,
            interval_seconds = excluded.interval_seconds,
            force_in_check_frequency = excluded.force_in_check_frequency,
            force_in_check_interval_runs = excluded.force_in_check_interval_runs`,
		meta.RuleID,
		meta.RuleName,
		boolToInt(meta.HasRun),
		formatTime(created),
		nullableString(string(meta.Override.Mode)),
		nullableInt64(meta.Override.IntervalSeconds),
		string(frequency),
		nullableInt(meta.DeepCheck.EveryXRuns),
		meta.RunCount,
	)
	if err != nil {
		return fmt.Errorf("upsert rule metadata: %w", err)
	}
	return nil
}

// DeleteRuleMetadata removes a rule's stored state. Set associations
// cascade with it.
func (s *Store) DeleteRuleMetadata(ctx context.Context, ruleID string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM rules WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("delete rule metadata: %w", err)
	}
	return nil
}

// MarkRuleRun flags a rule as having completed at least one run.
func (s *Store) MarkRuleRun(ctx context.Context, ruleID string) error {
	if _, err := s.execWithRetry(ctx, `UPDATE rules SET has_been_run = 1 WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("mark rule run: %w", err)
	}
	return nil
}

// IncrementRunCount bumps a rule's run counter by one.
func (s *Store) IncrementRunCount(ctx context.Context, ruleID string) error {
	if _, err := s.execWithRetry(ctx, `UPDATE rules SET run_count = run_count + 1 WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("increment run count: %w", err)
	}
	return nil
}

// FirstRunStatuses reports which of the given rules still need their
// first run. Unregistered ids count as needing one.
func (s *Store) FirstRunStatuses(ctx context.Context, ruleIDs []string) (map[string]bool, error) {
	statuses := make(map[string]bool, len(ruleIDs))
	if len(ruleIDs) == 0 {
		return statuses, nil
	}

	placeholders := makePlaceholders(len(ruleIDs))
	args := make([]any, len(ruleIDs))
	for i, id := range ruleIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT rule_id, has_been_run FROM rules WHERE rule_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query first run statuses: %w", err)
	}
	defer rows.Close()

	hasRun := make(map[string]bool, len(ruleIDs))
	for rows.Next() {
		var id string
		var ran int
		if err := rows.Scan(&id, &ran); err != nil {
			return nil, fmt.Errorf("scan first run status: %w", err)
		}
		hasRun[id] = ran != 0
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ruleIDs {
		statuses[id] = !hasRun[id]
	}
	return statuses, nil
}

// LastRunStart returns the newest run start time recorded for a rule,
// nil when the rule has never run.
func (s *Store) LastRunStart(ctx context.Context, ruleID string) (*time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT MAX(start_time) FROM run_logs WHERE rule_id = ?`,
		ruleID,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("query last run start: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	started, err := parseTimeString(raw.String)
	if err != nil {
		return nil, fmt.Errorf("parse last run start: %w", err)
	}
	return &started, nil
}

func scanRuleMetadata(scanner interface{ Scan(dest ...any) error }) (rules.Metadata, error) {
	var (
		ruleID          string
		ruleName        string
		hasRun          int
		createdRaw      string
		overrideMode    sql.NullString
		intervalSeconds sql.NullInt64
		frequency       string
		everyXRuns      sql.NullInt64
		runCount        int
	)
	if err := scanner.Scan(
		&ruleID,
		&ruleName,
		&hasRun,
		&createdRaw,
		&overrideMode,
		&intervalSeconds,
		&frequency,
		&everyXRuns,
		&runCount,
	); err != nil {
		return rules.Metadata{}, err
	}

	meta := rules.Metadata{
		RuleID:   ruleID,
		RuleName: ruleName,
		HasRun:   hasRun != 0,
		Override: rules.ScheduleOverride{
			Mode:            rules.OverrideMode(overrideMode.String),
			IntervalSeconds: intervalSeconds.Int64,
		},
		DeepCheck: rules.DeepCheckPolicy{
			Frequency:  rules.DeepCheckFrequency(frequency),
			EveryXRuns: int(everyXRuns.Int64),
		},
		RunCount: runCount,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		meta.Created = created
	}
	return meta, nil
}
