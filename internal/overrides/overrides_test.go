package overrides

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"butler/internal/rules"
	"butler/internal/store"
)

type stubStore struct {
	records map[string]*store.GovernanceRecord
	corrupt map[string]bool
	loadErr error
	upserts int
}

func newStubStore() *stubStore {
	return &stubStore{
		records: map[string]*store.GovernanceRecord{},
		corrupt: map[string]bool{},
	}
}

func (s *stubStore) FileGovernance(_ context.Context, fileHash string) (*store.GovernanceRecord, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.corrupt[fileHash] {
		return nil, store.ErrCorruptGovernance
	}
	return s.records[fileHash], nil
}

func (s *stubStore) UpsertFileGovernance(_ context.Context, record *store.GovernanceRecord) error {
	s.records[record.FileHash] = record
	s.upserts++
	return nil
}

func forceInRule(id string, importance int, destinations ...string) rules.Rule {
	return rules.Rule{
		ID:         id,
		Name:       "force rule",
		Importance: importance,
		Action:     rules.ForceInAction{DestinationServiceKeys: rules.ServiceKeyList(destinations)},
	}
}

func addToRule(id string, importance int, destinations ...string) rules.Rule {
	return rules.Rule{
		ID:         id,
		Name:       "add rule",
		Importance: importance,
		Action:     rules.AddToAction{DestinationServiceKeys: rules.ServiceKeyList(destinations)},
	}
}

func ratingRule(id string, importance int, serviceKey string) rules.Rule {
	return rules.Rule{
		ID:         id,
		Name:       "rating rule",
		Importance: importance,
		Action:     rules.ModifyRatingAction{RatingServiceKey: serviceKey, Value: rules.NumberScalar(4)},
	}
}

func governedFile(hash string, forceInPriority int) *store.GovernanceRecord {
	record := store.NewGovernanceRecord(hash)
	record.ForceInPriority = forceInPriority
	return record
}

func TestCheckForceInRequiresStrictlyHigherPriority(t *testing.T) {
	st := newStubStore()
	st.records["abc"] = governedFile("abc", 5)
	resolver := NewResolver(st, nil)

	equal, err := resolver.Check(context.Background(), forceInRule("r1", 5, "archive"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if equal.Allow {
		t.Fatalf("force_in at equal priority should be skipped, got allow (%q)", equal.Reason)
	}
	if !strings.Contains(equal.Reason, "priority 5") {
		t.Fatalf("skip reason should name the winning priority, got %q", equal.Reason)
	}

	higher, err := resolver.Check(context.Background(), forceInRule("r2", 6, "archive"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !higher.Allow {
		t.Fatalf("force_in at higher priority should run, got skip (%q)", higher.Reason)
	}
}

func TestCheckAddToRunsAtEqualPriority(t *testing.T) {
	st := newStubStore()
	st.records["abc"] = governedFile("abc", 5)
	resolver := NewResolver(st, nil)

	equal, err := resolver.Check(context.Background(), addToRule("r1", 5, "archive"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !equal.Allow {
		t.Fatalf("add_to at equal priority should run, got skip (%q)", equal.Reason)
	}

	lower, err := resolver.Check(context.Background(), addToRule("r2", 4, "archive"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if lower.Allow {
		t.Fatal("add_to below the force_in priority should be skipped")
	}
	if !strings.Contains(lower.Reason, "force_in") {
		t.Fatalf("skip reason should name the force_in governance, got %q", lower.Reason)
	}
}

func TestCheckRatingPriorityIsPerService(t *testing.T) {
	record := store.NewGovernanceRecord("abc")
	record.TouchRatingService("stars", 3)
	st := newStubStore()
	st.records["abc"] = record
	resolver := NewResolver(st, nil)

	equal, err := resolver.Check(context.Background(), ratingRule("r1", 3, "stars"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if equal.Allow {
		t.Fatal("modify_rating at equal priority should be skipped")
	}

	higher, err := resolver.Check(context.Background(), ratingRule("r2", 4, "stars"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !higher.Allow {
		t.Fatalf("modify_rating at higher priority should run, got skip (%q)", higher.Reason)
	}

	// An unclaimed service starts at -1, so even priority 0 wins it.
	other, err := resolver.Check(context.Background(), ratingRule("r3", 0, "score"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !other.Allow {
		t.Fatalf("untouched rating service should allow any priority, got skip (%q)", other.Reason)
	}
}

func TestCheckBypassSkipsGovernanceLookup(t *testing.T) {
	st := newStubStore()
	st.loadErr = errors.New("db offline")
	resolver := NewResolver(st, nil)

	decision, err := resolver.Check(context.Background(), forceInRule("r1", 1, "archive"), true, "abc")
	if err != nil {
		t.Fatalf("bypass should not touch the store, got error: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("bypass should allow the run, got skip (%q)", decision.Reason)
	}
}

func TestCheckUngovernedActionsAlwaysRun(t *testing.T) {
	st := newStubStore()
	st.loadErr = errors.New("db offline")
	resolver := NewResolver(st, nil)

	rule := rules.Rule{
		ID:         "r1",
		Importance: 1,
		Action:     rules.AddTagsAction{TagServiceKey: "tags", Tags: []string{"processed"}},
	}
	decision, err := resolver.Check(context.Background(), rule, false, "abc")
	if err != nil {
		t.Fatalf("ungoverned action should not touch the store, got error: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("ungoverned action should run, got skip (%q)", decision.Reason)
	}
}

func TestCheckUntrackedFileRuns(t *testing.T) {
	resolver := NewResolver(newStubStore(), nil)

	decision, err := resolver.Check(context.Background(), forceInRule("r1", 0, "archive"), false, "abc")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("untracked file should allow the run, got skip (%q)", decision.Reason)
	}
	if !strings.Contains(decision.Reason, "not tracked") {
		t.Fatalf("reason should mention the file is untracked, got %q", decision.Reason)
	}
}

func TestCheckCorruptStateAllowsRun(t *testing.T) {
	st := newStubStore()
	st.corrupt["abc"] = true
	resolver := NewResolver(st, nil)

	decision, err := resolver.Check(context.Background(), forceInRule("r1", 0, "archive"), false, "abc")
	if err != nil {
		t.Fatalf("corrupt state should not be an error: %v", err)
	}
	if !decision.Allow {
		t.Fatalf("corrupt state should allow the run, got skip (%q)", decision.Reason)
	}
	if !strings.Contains(decision.Reason, "corrupted") {
		t.Fatalf("reason should mention corruption, got %q", decision.Reason)
	}
}

func TestCheckPropagatesStoreErrors(t *testing.T) {
	st := newStubStore()
	st.loadErr = errors.New("db offline")
	resolver := NewResolver(st, nil)

	if _, err := resolver.Check(context.Background(), forceInRule("r1", 0, "archive"), false, "abc"); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestRecordSuccessForceInReplacesPlacement(t *testing.T) {
	st := newStubStore()
	existing := store.NewGovernanceRecord("abc")
	existing.AddPlacement("inbox", "working")
	existing.ForceInPriority = 2
	st.records["abc"] = existing
	resolver := NewResolver(st, nil)

	if err := resolver.RecordSuccess(context.Background(), forceInRule("r1", 7, "archive"), "abc"); err != nil {
		t.Fatalf("RecordSuccess returned error: %v", err)
	}

	record := st.records["abc"]
	if !reflect.DeepEqual(record.Placement, []string{"archive"}) {
		t.Fatalf("force_in should replace placement, got %v", record.Placement)
	}
	if record.ForceInPriority != 7 {
		t.Fatalf("force_in priority = %d, want 7", record.ForceInPriority)
	}
	if !reflect.DeepEqual(record.RulesApplied, []string{"r1"}) {
		t.Fatalf("rules applied = %v, want [r1]", record.RulesApplied)
	}
}

func TestRecordSuccessAddToUnionsPlacement(t *testing.T) {
	st := newStubStore()
	existing := store.NewGovernanceRecord("abc")
	existing.AddPlacement("inbox")
	existing.ForceInPriority = 2
	st.records["abc"] = existing
	resolver := NewResolver(st, nil)

	if err := resolver.RecordSuccess(context.Background(), addToRule("r1", 9, "inbox", "archive"), "abc"); err != nil {
		t.Fatalf("RecordSuccess returned error: %v", err)
	}

	record := st.records["abc"]
	if !reflect.DeepEqual(record.Placement, []string{"inbox", "archive"}) {
		t.Fatalf("add_to should union placement, got %v", record.Placement)
	}
	if record.ForceInPriority != 2 {
		t.Fatalf("add_to must not change the force_in priority, got %d", record.ForceInPriority)
	}
}

func TestRecordSuccessModifyRatingTracksService(t *testing.T) {
	st := newStubStore()
	resolver := NewResolver(st, nil)

	if err := resolver.RecordSuccess(context.Background(), ratingRule("r1", 4, "stars"), "abc"); err != nil {
		t.Fatalf("RecordSuccess returned error: %v", err)
	}
	if err := resolver.RecordSuccess(context.Background(), ratingRule("r2", 6, "stars"), "abc"); err != nil {
		t.Fatalf("RecordSuccess returned error: %v", err)
	}

	record := st.records["abc"]
	if !reflect.DeepEqual(record.RatingServicesTouched, []string{"stars"}) {
		t.Fatalf("touched services = %v, want [stars]", record.RatingServicesTouched)
	}
	if got := record.RatingPriorityFor("stars"); got != 6 {
		t.Fatalf("rating priority = %d, want 6", got)
	}
	if !reflect.DeepEqual(record.RulesApplied, []string{"r1", "r2"}) {
		t.Fatalf("rules applied = %v, want [r1 r2]", record.RulesApplied)
	}
}

func TestRecordSuccessAppendsRuleOnce(t *testing.T) {
	st := newStubStore()
	resolver := NewResolver(st, nil)
	rule := addToRule("r1", 1, "archive")

	for i := 0; i < 3; i++ {
		if err := resolver.RecordSuccess(context.Background(), rule, "abc"); err != nil {
			t.Fatalf("RecordSuccess returned error: %v", err)
		}
	}

	record := st.records["abc"]
	if !reflect.DeepEqual(record.RulesApplied, []string{"r1"}) {
		t.Fatalf("rules applied = %v, want a single r1", record.RulesApplied)
	}
}

func TestRecordSuccessIgnoresUngovernedActions(t *testing.T) {
	st := newStubStore()
	resolver := NewResolver(st, nil)

	rule := rules.Rule{
		ID:         "r1",
		Importance: 1,
		Action:     rules.RemoveTagsAction{TagServiceKey: "tags", Tags: []string{"stale"}},
	}
	if err := resolver.RecordSuccess(context.Background(), rule, "abc"); err != nil {
		t.Fatalf("RecordSuccess returned error: %v", err)
	}
	if st.upserts != 0 {
		t.Fatalf("ungoverned action should not write state, got %d upserts", st.upserts)
	}
}

func TestRecordSuccessRebuildsCorruptState(t *testing.T) {
	st := newStubStore()
	st.corrupt["abc"] = true
	resolver := NewResolver(st, nil)

	if err := resolver.RecordSuccess(context.Background(), forceInRule("r1", 3, "archive"), "abc"); err != nil {
		t.Fatalf("RecordSuccess returned error: %v", err)
	}

	record := st.records["abc"]
	if record == nil {
		t.Fatal("expected a rebuilt governance record")
	}
	if !reflect.DeepEqual(record.Placement, []string{"archive"}) || record.ForceInPriority != 3 {
		t.Fatalf("rebuilt record = %+v, want fresh state with this rule's action", record)
	}
}
