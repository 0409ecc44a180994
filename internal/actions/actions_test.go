package actions_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"butler/internal/actions"
	"butler/internal/config"
	"butler/internal/logging"
	"butler/internal/rules"
	"butler/internal/services/hydrus"
)

func newExecutor(srv *httptest.Server, mutate func(*config.Config)) *actions.Executor {
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	return actions.NewExecutor(hydrus.New(srv.URL, "key", srv.Client()), &cfg, logging.NewNop())
}

func testExecution() *actions.Execution {
	exec := actions.NewExecution(rules.Rule{ID: "rule-1", Name: "archive sweep"}, "parent-1")
	exec.Catalog = hydrus.NewCatalog([]hydrus.Service{
		{ServiceKey: "dest1", Name: "archive", Type: hydrus.ServiceTypeLocalFileDomain},
		{ServiceKey: "extra1", Name: "inbox", Type: hydrus.ServiceTypeLocalFileDomain},
		{ServiceKey: "rate1", Name: "stars", Type: hydrus.ServiceTypeRatingNumerical},
	})
	return exec
}

func candidates(hashes ...string) []hydrus.FileMetadata {
	out := make([]hydrus.FileMetadata, 0, len(hashes))
	for _, hash := range hashes {
		out = append(out, hydrus.FileMetadata{Hash: hash})
	}
	return out
}

type migratePayload struct {
	Hash       string   `json:"hash"`
	Hashes     []string `json:"hashes"`
	ServiceKey string   `json:"file_service_key"`
}

func (p migratePayload) allHashes() []string {
	if p.Hash != "" {
		return []string{p.Hash}
	}
	return p.Hashes
}

func TestAddToServicesRetriesPoisonedBatch(t *testing.T) {
	var bulkCalls, singleCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/add_files/migrate_files" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body migratePayload
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		if body.Hash != "" {
			singleCalls++
		} else {
			bulkCalls++
		}
		for _, hash := range body.allHashes() {
			if hash == "bad" {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, `{"error":"migrate refused"}`)
				return
			}
		}
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.AddToServices(context.Background(), testExecution(), []string{"aaa", "bbb", "bad"}, []string{"dest1"})

	if report.Success {
		t.Fatal("report should not be successful")
	}
	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d", report.Succeeded, report.Failed)
	}
	failures := report.FileErrors["bad"]
	if len(failures) != 1 || failures[0].ServiceKey != "dest1" || failures[0].Status != http.StatusInternalServerError {
		t.Fatalf("failures = %+v", failures)
	}
	if !strings.Contains(failures[0].Message, "migrate refused") {
		t.Fatalf("message = %q", failures[0].Message)
	}
	if bulkCalls != 1 || singleCalls != 3 {
		t.Fatalf("bulk=%d single=%d, want one bulk call then per-item retries", bulkCalls, singleCalls)
	}
}

func TestAddToServicesTracksPerDestinationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body migratePayload
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		for _, hash := range body.allHashes() {
			if hash == "bbb" && body.ServiceKey == "dest2" {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":"no space"}`)
				return
			}
		}
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.AddToServices(context.Background(), testExecution(), []string{"aaa", "bbb"}, []string{"dest1", "dest2"})

	if report.Success {
		t.Fatal("report should not be successful")
	}
	if report.Succeeded != 3 || report.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d", report.Succeeded, report.Failed)
	}
	if len(report.FileErrors) != 1 {
		t.Fatalf("FileErrors = %+v", report.FileErrors)
	}
	failure := report.FileErrors["bbb"][0]
	if failure.ServiceKey != "dest2" || failure.Status != http.StatusBadRequest {
		t.Fatalf("failure = %+v", failure)
	}
}

func TestAddToServicesEmptyInput(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	if report := executor.AddToServices(context.Background(), testExecution(), nil, []string{"dest1"}); !report.Success || report.Succeeded != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report := executor.AddToServices(context.Background(), testExecution(), []string{"aaa"}, nil); !report.Success {
		t.Fatalf("report = %+v", report)
	}
	if called {
		t.Fatal("no requests expected")
	}
}

func TestAddTagsBuildsAddPayload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/add_tags/add_tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.AddTags(context.Background(), testExecution(), []string{"aaa", "bbb"}, "tagsvc", []string{"processed", "archived"})

	if !report.Success || report.Processed != 2 {
		t.Fatalf("report = %+v", report)
	}
	if body["override_previously_deleted_mappings"] != true {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["create_new_deleted_mappings"]; ok {
		t.Fatal("create_new_deleted_mappings should be omitted for adds")
	}
	perService := body["service_keys_to_actions_to_tags"].(map[string]any)["tagsvc"].(map[string]any)
	tags, ok := perService[hydrus.TagActionAdd].([]any)
	if !ok || len(tags) != 2 || tags[0] != "processed" {
		t.Fatalf("per-service mapping = %v", perService)
	}
}

func TestRemoveTagsBuildsDeletePayload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.RemoveTags(context.Background(), testExecution(), []string{"aaa"}, "tagsvc", []string{"stale"})

	if !report.Success || report.Processed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if body["create_new_deleted_mappings"] != true {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["override_previously_deleted_mappings"]; ok {
		t.Fatal("override_previously_deleted_mappings should be omitted for removals")
	}
	perService := body["service_keys_to_actions_to_tags"].(map[string]any)["tagsvc"].(map[string]any)
	if _, ok := perService[hydrus.TagActionDelete]; !ok {
		t.Fatalf("per-service mapping = %v", perService)
	}
}

func TestTagBatchSplitting(t *testing.T) {
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Hashes []string `json:"hashes"`
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		sizes = append(sizes, len(body.Hashes))
	}))
	defer srv.Close()

	executor := newExecutor(srv, func(cfg *config.Config) { cfg.Actions.TagBatchSize = 2 })
	report := executor.AddTags(context.Background(), testExecution(), []string{"a1", "a2", "a3", "a4", "a5"}, "tagsvc", []string{"x"})

	if !report.Success || report.Processed != 5 {
		t.Fatalf("report = %+v", report)
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("batch sizes = %v", sizes)
	}
}

func TestTagActionShortCircuits(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	exec := testExecution()

	if report := executor.AddTags(context.Background(), exec, nil, "tagsvc", []string{"x"}); !report.Success || report.Processed != 0 {
		t.Fatalf("empty hashes report = %+v", report)
	}
	if report := executor.AddTags(context.Background(), exec, []string{"aaa"}, "  ", []string{"x"}); report.Success || !strings.Contains(report.Message, "service key") {
		t.Fatalf("blank service report = %+v", report)
	}
	report := executor.RemoveTags(context.Background(), exec, []string{"aaa", "bbb"}, "tagsvc", nil)
	if !report.Success || report.Processed != 2 || len(report.Succeeded) != 2 {
		t.Fatalf("empty tags report = %+v", report)
	}
	if called {
		t.Fatal("no requests expected")
	}
}

func TestModifyRatingSendsValue(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edit_ratings/set_rating" {
			t.Errorf("path = %q", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		raw = string(data)
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	if report := executor.ModifyRating(context.Background(), testExecution(), "aaa", "rate1", 4); !report.Success {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(raw, `"rating":4`) || !strings.Contains(raw, `"rating_service_key":"rate1"`) {
		t.Fatalf("body = %q", raw)
	}

	if report := executor.ModifyRating(context.Background(), testExecution(), "aaa", "rate1", nil); !report.Success {
		t.Fatalf("null report = %+v", report)
	}
	if !strings.Contains(raw, `"rating":null`) {
		t.Fatalf("body = %q", raw)
	}
}

func TestModifyRatingFailures(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"rating out of range"}`)
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.ModifyRating(context.Background(), testExecution(), "aaa", "rate1", 99)
	if report.Success || report.Status != http.StatusBadRequest || !strings.Contains(report.Message, "rating out of range") {
		t.Fatalf("report = %+v", report)
	}

	called = false
	if report := executor.ModifyRating(context.Background(), testExecution(), "", "rate1", 1); report.Success {
		t.Fatalf("missing hash report = %+v", report)
	}
	if report := executor.ModifyRating(context.Background(), testExecution(), "aaa", " ", 1); report.Success {
		t.Fatalf("missing service report = %+v", report)
	}
	if called {
		t.Fatal("validation failures should not reach the API")
	}
}

func TestEnsureServicesCachesCatalog(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"services":{"aaa":{"name":"my files","type":2}}}`)
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	exec := actions.NewExecution(rules.Rule{ID: "rule-1", Name: "archive sweep"}, "parent-1")

	catalog, err := executor.EnsureServices(context.Background(), exec)
	if err != nil {
		t.Fatalf("EnsureServices: %v", err)
	}
	if catalog.Len() != 1 || exec.Catalog != catalog {
		t.Fatalf("catalog = %+v", catalog)
	}
	if _, err := executor.EnsureServices(context.Background(), exec); err != nil {
		t.Fatalf("EnsureServices cached: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestEnsureServicesRejectsEmptyCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"services":{}}`)
	}))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	if _, err := executor.EnsureServices(context.Background(), actions.NewExecution(rules.Rule{ID: "r"}, "p")); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestFetchMetadataCollectsBatchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var hashes []string
		json.Unmarshal([]byte(r.URL.Query().Get("hashes")), &hashes)
		for _, hash := range hashes {
			if hash == "bad" {
				w.WriteHeader(http.StatusBadGateway)
				io.WriteString(w, `{"error":"database locked"}`)
				return
			}
		}
		entries := make([]map[string]any, 0, len(hashes))
		for _, hash := range hashes {
			entries = append(entries, map[string]any{
				"hash":          hash,
				"file_services": map[string]any{"current": map[string]any{"dest1": map[string]any{}}, "deleted": map[string]any{}},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"metadata": entries})
	}))
	defer srv.Close()

	executor := newExecutor(srv, func(cfg *config.Config) { cfg.Actions.MetadataBatchSize = 2 })
	metadata, failures := executor.FetchMetadata(context.Background(), testExecution(), []string{"aaa", "bbb", "bad", "ccc"})

	if len(metadata) != 2 {
		t.Fatalf("metadata = %+v", metadata)
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %+v", failures)
	}
	failure := failures[0]
	if failure.Status != http.StatusBadGateway || len(failure.Hashes) != 2 || failure.Hashes[0] != "bad" {
		t.Fatalf("failure = %+v", failure)
	}
	if !strings.Contains(failure.Message, "database locked") {
		t.Fatalf("message = %q", failure.Message)
	}
}

// fakeLibrary backs the force_in tests with a mutable membership map
// behind the migrate, metadata, and delete endpoints.
type fakeLibrary struct {
	membership map[string]map[string]bool
	failCopy   map[string]bool
	quietCopy  map[string]bool
	failDelete map[string]bool
	deletions  []string
	requests   int
}

func newFakeLibrary(membership map[string][]string) *fakeLibrary {
	lib := &fakeLibrary{
		membership: map[string]map[string]bool{},
		failCopy:   map[string]bool{},
		quietCopy:  map[string]bool{},
		failDelete: map[string]bool{},
	}
	for hash, keys := range membership {
		lib.membership[hash] = map[string]bool{}
		for _, key := range keys {
			lib.membership[hash][key] = true
		}
	}
	return lib
}

func (f *fakeLibrary) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		switch r.URL.Path {
		case "/add_files/migrate_files":
			var body migratePayload
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &body)
			for _, hash := range body.allHashes() {
				if f.failCopy[hash] {
					w.WriteHeader(http.StatusInternalServerError)
					io.WriteString(w, `{"error":"migrate refused"}`)
					return
				}
			}
			for _, hash := range body.allHashes() {
				if f.quietCopy[hash] {
					continue
				}
				if f.membership[hash] == nil {
					f.membership[hash] = map[string]bool{}
				}
				f.membership[hash][body.ServiceKey] = true
			}
		case "/add_files/delete_files":
			var body migratePayload
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &body)
			for _, hash := range body.allHashes() {
				if f.failDelete[hash] {
					w.WriteHeader(http.StatusInternalServerError)
					io.WriteString(w, `{"error":"delete refused"}`)
					return
				}
			}
			for _, hash := range body.allHashes() {
				delete(f.membership[hash], body.ServiceKey)
				f.deletions = append(f.deletions, hash+"@"+body.ServiceKey)
			}
		case "/get_files/file_metadata":
			var hashes []string
			json.Unmarshal([]byte(r.URL.Query().Get("hashes")), &hashes)
			entries := make([]map[string]any, 0, len(hashes))
			for _, hash := range hashes {
				current := map[string]any{}
				for key := range f.membership[hash] {
					current[key] = map[string]any{}
				}
				entries = append(entries, map[string]any{
					"hash":          hash,
					"file_services": map[string]any{"current": current, "deleted": map[string]any{}},
				})
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"metadata": entries})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
}

func TestForceInMovesFilesIntoDestinations(t *testing.T) {
	lib := newFakeLibrary(map[string][]string{
		"aaa": {"extra1"},
		"bbb": {"extra1", "dest1"},
	})
	srv := httptest.NewServer(lib.handler(t))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.ForceInServices(context.Background(), testExecution(), candidates("aaa", "bbb"), []string{"dest1"})

	if !report.Success {
		t.Fatalf("report = %+v", report)
	}
	if got := report.FullySucceeded; len(got) != 2 || got[0] != "aaa" || got[1] != "bbb" {
		t.Fatalf("FullySucceeded = %v", got)
	}
	counts := report.Counts
	if counts.Initial != 2 || counts.Copied != 2 || counts.Verified != 2 || counts.Deleted != 2 {
		t.Fatalf("counts = %+v", counts)
	}
	if len(report.FileErrors) != 0 {
		t.Fatalf("FileErrors = %+v", report.FileErrors)
	}
	for _, deletion := range lib.deletions {
		if strings.HasSuffix(deletion, "@dest1") {
			t.Fatalf("deleted from a destination: %v", lib.deletions)
		}
	}
	if len(lib.deletions) != 2 {
		t.Fatalf("deletions = %v", lib.deletions)
	}
	if lib.membership["aaa"]["extra1"] || !lib.membership["aaa"]["dest1"] {
		t.Fatalf("membership = %v", lib.membership)
	}
}

func TestForceInAbortsOnBlankDestinations(t *testing.T) {
	lib := newFakeLibrary(map[string][]string{"aaa": {"extra1"}})
	srv := httptest.NewServer(lib.handler(t))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	for _, keys := range [][]string{nil, {}, {"dest1", "  "}} {
		report := executor.ForceInServices(context.Background(), testExecution(), candidates("aaa"), keys)
		if report.Success || len(report.OverallErrors) != 1 {
			t.Fatalf("keys %v: report = %+v", keys, report)
		}
		if report.Counts.Initial != 1 || report.Counts.Copied != 0 {
			t.Fatalf("keys %v: counts = %+v", keys, report.Counts)
		}
	}
	if lib.requests != 0 {
		t.Fatalf("requests = %d, want none", lib.requests)
	}
}

func TestForceInEmptyCandidates(t *testing.T) {
	lib := newFakeLibrary(nil)
	srv := httptest.NewServer(lib.handler(t))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.ForceInServices(context.Background(), testExecution(), nil, []string{"dest1"})
	if !report.Success || report.Counts.Initial != 0 || lib.requests != 0 {
		t.Fatalf("report = %+v requests = %d", report, lib.requests)
	}
}

func TestForceInCopyFailureDropsFile(t *testing.T) {
	lib := newFakeLibrary(map[string][]string{
		"aaa": {"extra1"},
		"bbb": {"extra1"},
	})
	lib.failCopy["aaa"] = true
	srv := httptest.NewServer(lib.handler(t))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.ForceInServices(context.Background(), testExecution(), candidates("aaa", "bbb"), []string{"dest1"})

	if report.Success {
		t.Fatal("report should not be successful")
	}
	entry := report.FileErrors["aaa"]
	if entry == nil || entry.Phase != "copy" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Errors[0].ServiceKey != "dest1" || entry.Errors[0].Status != http.StatusInternalServerError {
		t.Fatalf("errors = %+v", entry.Errors)
	}
	if len(report.FullySucceeded) != 1 || report.FullySucceeded[0] != "bbb" {
		t.Fatalf("FullySucceeded = %v", report.FullySucceeded)
	}
	counts := report.Counts
	if counts.Initial != 2 || counts.Copied != 1 || counts.Verified != 1 || counts.Deleted != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	for _, deletion := range lib.deletions {
		if strings.HasPrefix(deletion, "aaa@") {
			t.Fatalf("failed copy must never reach deletion: %v", lib.deletions)
		}
	}
}

func TestForceInVerifyFailureBlocksDeletion(t *testing.T) {
	lib := newFakeLibrary(map[string][]string{
		"aaa": {"extra1"},
		"bbb": {"extra1"},
	})
	lib.quietCopy["aaa"] = true
	srv := httptest.NewServer(lib.handler(t))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.ForceInServices(context.Background(), testExecution(), candidates("aaa", "bbb"), []string{"dest1"})

	if report.Success {
		t.Fatal("report should not be successful")
	}
	entry := report.FileErrors["aaa"]
	if entry == nil || entry.Phase != "verify" {
		t.Fatalf("entry = %+v", entry)
	}
	if !strings.Contains(entry.Errors[0].Message, "dest1") {
		t.Fatalf("message = %q", entry.Errors[0].Message)
	}
	counts := report.Counts
	if counts.Copied != 2 || counts.Verified != 1 || counts.Deleted != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	for _, deletion := range lib.deletions {
		if strings.HasPrefix(deletion, "aaa@") {
			t.Fatalf("unverified file must never reach deletion: %v", lib.deletions)
		}
	}
	if !lib.membership["aaa"]["extra1"] {
		t.Fatal("unverified file should keep its original placement")
	}
}

func TestForceInDeleteFailureKeepsErrorPhase(t *testing.T) {
	lib := newFakeLibrary(map[string][]string{"aaa": {"extra1"}})
	lib.failDelete["aaa"] = true
	srv := httptest.NewServer(lib.handler(t))
	defer srv.Close()

	executor := newExecutor(srv, nil)
	report := executor.ForceInServices(context.Background(), testExecution(), candidates("aaa"), []string{"dest1"})

	if report.Success {
		t.Fatal("report should not be successful")
	}
	entry := report.FileErrors["aaa"]
	if entry == nil || entry.Phase != "delete" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Errors[0].ServiceKey != "extra1" || !strings.Contains(entry.Errors[0].Message, "delete refused") {
		t.Fatalf("errors = %+v", entry.Errors)
	}
	if len(report.FullySucceeded) != 0 {
		t.Fatalf("FullySucceeded = %v", report.FullySucceeded)
	}
	counts := report.Counts
	if counts.Initial != 1 || counts.Copied != 1 || counts.Verified != 1 || counts.Deleted != 0 {
		t.Fatalf("counts = %+v", counts)
	}
}
