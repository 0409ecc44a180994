package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AppState reads one daemon state value. The second return reports
// whether the key exists.
func (s *Store) AppState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get app state: %w", err)
	}
	return value, true, nil
}

// SetAppState writes one daemon state value.
func (s *Store) SetAppState(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("app state key required")
	}
	if _, err := s.execWithRetry(ctx, `INSERT OR REPLACE INTO app_state (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set app state: %w", err)
	}
	return nil
}
