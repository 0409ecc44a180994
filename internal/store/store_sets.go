package store

import (
	"context"
	"database/sql"
	"fmt"

	"butler/internal/rules"
)

// RuleSets returns every rule set with its member rule ids.
func (s *Store) RuleSets(ctx context.Context) ([]rules.RuleSet, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, execution_override, interval_seconds FROM rule_sets ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query rule sets: %w", err)
	}
	defer rows.Close()

	var sets []rules.RuleSet
	index := make(map[string]int)
	for rows.Next() {
		set, err := scanRuleSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule set: %w", err)
		}
		index[set.ID] = len(sets)
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, nil
	}

	assocRows, err := s.db.QueryContext(ctx, `SELECT rule_id, set_id FROM rule_set_associations ORDER BY set_id, rule_id`)
	if err != nil {
		return nil, fmt.Errorf("query set associations: %w", err)
	}
	defer assocRows.Close()

	for assocRows.Next() {
		var ruleID, setID string
		if err := assocRows.Scan(&ruleID, &setID); err != nil {
			return nil, fmt.Errorf("scan set association: %w", err)
		}
		if i, ok := index[setID]; ok {
			sets[i].RuleIDs = append(sets[i].RuleIDs, ruleID)
		}
	}
	return sets, assocRows.Err()
}

// SetsForRule returns the sets a rule belongs to.
func (s *Store) SetsForRule(ctx context.Context, ruleID string) ([]rules.RuleSet, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT s.id, s.name, s.execution_override, s.interval_seconds
         FROM rule_sets s
         JOIN rule_set_associations a ON s.id = a.set_id
         WHERE a.rule_id = ?
         ORDER BY s.name, s.id`,
		ruleID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sets for rule: %w", err)
	}
	defer rows.Close()

	var sets []rules.RuleSet
	for rows.Next() {
		set, err := scanRuleSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule set: %w", err)
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

// ReplaceSetConfiguration wipes and rewrites every set and association
// in one transaction. Memberships naming unregistered rules are dropped
// so the foreign keys hold.
func (s *Store) ReplaceSetConfiguration(ctx context.Context, sets []rules.RuleSet) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_set_associations`); err != nil {
		return fmt.Errorf("clear set associations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_sets`); err != nil {
		return fmt.Errorf("clear rule sets: %w", err)
	}

	known := make(map[string]bool)
	rows, err := tx.QueryContext(ctx, `SELECT rule_id FROM rules`)
	if err != nil {
		return fmt.Errorf("query registered rules: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan registered rule: %w", err)
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, set := range sets {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO rule_sets (id, name, execution_override, interval_seconds) VALUES (?, ?, ?, ?)`,
			set.ID,
			set.Name,
			nullableString(string(set.Override.Mode)),
			nullableInt64(set.Override.IntervalSeconds),
		); err != nil {
			return fmt.Errorf("insert rule set %s: %w", set.ID, err)
		}
		for _, ruleID := range set.RuleIDs {
			if !known[ruleID] {
				continue
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO rule_set_associations (rule_id, set_id) VALUES (?, ?)`,
				ruleID,
				set.ID,
			); err != nil {
				return fmt.Errorf("insert set association %s/%s: %w", ruleID, set.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set configuration: %w", err)
	}
	return nil
}

func scanRuleSet(scanner interface{ Scan(dest ...any) error }) (rules.RuleSet, error) {
	var (
		id              string
		name            string
		overrideMode    sql.NullString
		intervalSeconds sql.NullInt64
	)
	if err := scanner.Scan(&id, &name, &overrideMode, &intervalSeconds); err != nil {
		return rules.RuleSet{}, err
	}
	return rules.RuleSet{
		ID:   id,
		Name: name,
		Override: rules.ScheduleOverride{
			Mode:            rules.OverrideMode(overrideMode.String),
			IntervalSeconds: intervalSeconds.Int64,
		},
	}, nil
}
