package testsupport

import (
	"context"
	"testing"

	"butler/internal/config"
	"butler/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// StartRun inserts a started run log row for tests using the provided store.
func StartRun(t testing.TB, st *store.Store, runID, ruleID, ruleName string) *store.RunLog {
	t.Helper()

	run := &store.RunLog{
		ID:       runID,
		RuleID:   ruleID,
		RuleName: ruleName,
	}
	if err := st.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("store.BeginRun: %v", err)
	}
	return run
}
