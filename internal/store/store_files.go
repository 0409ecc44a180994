package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"butler/internal/rules"
)

const governanceColumns = "file_hash, rules_in_application, force_in_priority_governance, correct_placement, affected_rating_services, rating_priority_governance, last_updated"

// FileGovernance fetches the governance record for a file, nil when the
// file has never been touched by a governed action. A row whose JSON
// columns no longer parse is reported as ErrCorruptGovernance.
func (s *Store) FileGovernance(ctx context.Context, fileHash string) (*GovernanceRecord, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+governanceColumns+` FROM files WHERE file_hash = ?`,
		fileHash,
	)
	record, err := scanGovernance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// UpsertFileGovernance writes a file's governance record, stamping its
// last-updated time.
func (s *Store) UpsertFileGovernance(ctx context.Context, record *GovernanceRecord) error {
	if record == nil {
		return errors.New("governance record is nil")
	}
	if record.FileHash == "" {
		return errors.New("governance record missing file hash")
	}
	record.LastUpdated = time.Now().UTC()

	rulesJSON, err := json.Marshal(record.RulesApplied)
	if err != nil {
		return fmt.Errorf("encode rules in application: %w", err)
	}
	placementJSON, err := json.Marshal(record.Placement)
	if err != nil {
		return fmt.Errorf("encode placement: %w", err)
	}
	touchedJSON, err := json.Marshal(record.RatingServicesTouched)
	if err != nil {
		return fmt.Errorf("encode rating services: %w", err)
	}
	priorityJSON, err := json.Marshal(record.RatingPriority)
	if err != nil {
		return fmt.Errorf("encode rating priorities: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT OR REPLACE INTO files (`+governanceColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.FileHash,
		string(rulesJSON),
		record.ForceInPriority,
		string(placementJSON),
		string(touchedJSON),
		string(priorityJSON),
		formatTime(record.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("upsert file governance: %w", err)
	}
	return nil
}

// ClearRuleFileState unwinds a deleted rule's marks from every file it
// governed. The rule is removed from each record's applied list and the
// given destination is released according to the action that claimed
// it. Returns the number of records touched.
func (s *Store) ClearRuleFileState(ctx context.Context, ruleID string, action rules.ActionType, destination string) (int, error) {
	if ruleID == "" {
		return 0, errors.New("rule id required")
	}

	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT `+governanceColumns+` FROM files WHERE rules_in_application LIKE ?`,
		`%"`+ruleID+`"%`,
	)
	if err != nil {
		return 0, fmt.Errorf("query governed files: %w", err)
	}

	var records []*GovernanceRecord
	for rows.Next() {
		record, err := scanGovernance(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	now := time.Now().UTC()
	for _, record := range records {
		record.RulesApplied = removeValue(record.RulesApplied, ruleID)
		switch action {
		case rules.ActionModifyRating:
			record.RatingServicesTouched = removeValue(record.RatingServicesTouched, destination)
			delete(record.RatingPriority, destination)
		case rules.ActionForceIn:
			record.Placement = removeValue(record.Placement, destination)
			record.ForceInPriority = -1
		case rules.ActionAddTo:
			record.Placement = removeValue(record.Placement, destination)
		}
		record.LastUpdated = now

		rulesJSON, err := json.Marshal(record.RulesApplied)
		if err != nil {
			return 0, fmt.Errorf("encode rules in application: %w", err)
		}
		placementJSON, err := json.Marshal(record.Placement)
		if err != nil {
			return 0, fmt.Errorf("encode placement: %w", err)
		}
		touchedJSON, err := json.Marshal(record.RatingServicesTouched)
		if err != nil {
			return 0, fmt.Errorf("encode rating services: %w", err)
		}
		priorityJSON, err := json.Marshal(record.RatingPriority)
		if err != nil {
			return 0, fmt.Errorf("encode rating priorities: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE files
             SET rules_in_application = ?, force_in_priority_governance = ?,
                 correct_placement = ?, affected_rating_services = ?,
                 rating_priority_governance = ?, last_updated = ?
             WHERE file_hash = ?`,
			string(rulesJSON),
			record.ForceInPriority,
			string(placementJSON),
			string(touchedJSON),
			string(priorityJSON),
			formatTime(now),
			record.FileHash,
		); err != nil {
			return 0, fmt.Errorf("update file governance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit clear: %w", err)
	}
	return len(records), nil
}

func scanGovernance(scanner interface{ Scan(dest ...any) error }) (*GovernanceRecord, error) {
	var (
		hash       string
		rulesRaw   string
		priority   int
		placeRaw   string
		touchedRaw string
		ratingRaw  string
		updatedRaw string
	)
	if err := scanner.Scan(&hash, &rulesRaw, &priority, &placeRaw, &touchedRaw, &ratingRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &GovernanceRecord{FileHash: hash, ForceInPriority: priority}
	if err := json.Unmarshal([]byte(rulesRaw), &record.RulesApplied); err != nil {
		return nil, fmt.Errorf("%w: rules_in_application for %s", ErrCorruptGovernance, hash)
	}
	if err := json.Unmarshal([]byte(placeRaw), &record.Placement); err != nil {
		return nil, fmt.Errorf("%w: correct_placement for %s", ErrCorruptGovernance, hash)
	}
	if err := json.Unmarshal([]byte(touchedRaw), &record.RatingServicesTouched); err != nil {
		return nil, fmt.Errorf("%w: affected_rating_services for %s", ErrCorruptGovernance, hash)
	}
	if err := json.Unmarshal([]byte(ratingRaw), &record.RatingPriority); err != nil {
		return nil, fmt.Errorf("%w: rating_priority_governance for %s", ErrCorruptGovernance, hash)
	}

	if record.RulesApplied == nil {
		record.RulesApplied = []string{}
	}
	if record.Placement == nil {
		record.Placement = []string{}
	}
	if record.RatingServicesTouched == nil {
		record.RatingServicesTouched = []string{}
	}
	if record.RatingPriority == nil {
		record.RatingPriority = map[string]int{}
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.LastUpdated = updated
	}
	return record, nil
}
