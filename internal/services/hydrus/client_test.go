package hydrus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"butler/internal/services"
)

func TestClientSetsAccessKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Hydrus-Client-API-Access-Key")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"services":{}}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "secret-key", srv.Client())
	if _, err := client.GetServices(context.Background()); err != nil {
		t.Fatalf("GetServices: %v", err)
	}
	if gotKey != "secret-key" {
		t.Fatalf("access key header = %q, want %q", gotKey, "secret-key")
	}
}

func TestGetServicesBuildsCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_services" {
			t.Errorf("path = %q, want /get_services", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"services":{
			"aaa":{"name":"my files","type":2,"type_pretty":"local file domain"},
			"bbb":{"name":"favorites","type":7,"type_pretty":"local like/dislike rating service"},
			"ccc":{"name":"stars","type":6,"type_pretty":"local numerical rating service","min_stars":0,"max_stars":5},
			"ddd":{"name":"","type":2,"type_pretty":"local file domain"}
		}}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	catalog, err := client.GetServices(context.Background())
	if err != nil {
		t.Fatalf("GetServices: %v", err)
	}
	if catalog.Len() != 4 {
		t.Fatalf("Len = %d, want 4", catalog.Len())
	}

	stars, ok := catalog.Lookup("ccc")
	if !ok {
		t.Fatal("Lookup(ccc) missing")
	}
	if stars.MaxStars != 5 || !stars.IsRating() {
		t.Fatalf("stars service = %+v", stars)
	}
	if svc, ok := catalog.Lookup("aaa"); !ok || svc.IsRating() {
		t.Fatalf("aaa service = %+v ok=%v", svc, ok)
	}

	local := catalog.LocalFileServices()
	if len(local) != 1 || local[0].ServiceKey != "aaa" {
		t.Fatalf("LocalFileServices = %+v, want only aaa (unnamed domains excluded)", local)
	}
}

func TestSearchFilesEncodesQuery(t *testing.T) {
	var gotTags, gotReturnHashes, gotReturnIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotTags = q.Get("tags")
		gotReturnHashes = q.Get("return_hashes")
		gotReturnIDs = q.Get("return_file_ids")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"hashes":["abc","def"]}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	hashes, err := client.SearchFiles(context.Background(), []any{"system:inbox", []any{"a", "b"}})
	if err != nil {
		t.Fatalf("SearchFiles: %v", err)
	}
	if len(hashes) != 2 || hashes[0] != "abc" {
		t.Fatalf("hashes = %v", hashes)
	}
	if gotTags != `["system:inbox",["a","b"]]` {
		t.Fatalf("tags param = %q", gotTags)
	}
	if gotReturnHashes != "true" || gotReturnIDs != "false" {
		t.Fatalf("return_hashes=%q return_file_ids=%q", gotReturnHashes, gotReturnIDs)
	}
}

func TestFileMetadataParsesServiceMembership(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("include_services_object"); got != "true" {
			t.Errorf("include_services_object = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"metadata":[
			{"hash":"abc","file_services":{"current":{"svc2":{},"svc1":{}},"deleted":{}}}
		]}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	metadata, err := client.FileMetadataByHashes(context.Background(), []string{"abc"})
	if err != nil {
		t.Fatalf("FileMetadataByHashes: %v", err)
	}
	if len(metadata) != 1 {
		t.Fatalf("metadata length = %d", len(metadata))
	}
	keys := metadata[0].CurrentServiceKeys()
	if len(keys) != 2 || keys[0] != "svc1" || keys[1] != "svc2" {
		t.Fatalf("CurrentServiceKeys = %v, want sorted [svc1 svc2]", keys)
	}
}

func TestFileMetadataEmptyHashesSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	metadata, err := client.FileMetadataByHashes(context.Background(), nil)
	if err != nil || metadata != nil {
		t.Fatalf("metadata=%v err=%v", metadata, err)
	}
	if called {
		t.Fatal("request issued for empty hash list")
	}
}

func TestAddTagsPostsMappingPayload(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/add_tags/add_tags" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	err := client.AddTags(context.Background(), AddTagsRequest{
		Hashes: []string{"abc"},
		ServiceKeysToActionsToTags: map[string]map[string][]string{
			"tagsvc": {TagActionAdd: {"processed"}},
		},
		OverridePreviouslyDeletedMappings: true,
	})
	if err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	if body["override_previously_deleted_mappings"] != true {
		t.Fatalf("body = %v", body)
	}
	mapping := body["service_keys_to_actions_to_tags"].(map[string]any)
	if _, ok := mapping["tagsvc"]; !ok {
		t.Fatalf("mapping = %v", mapping)
	}
}

func TestSetRatingSerializesNilAsNull(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		raw = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	if err := client.SetRating(context.Background(), "abc", "ratesvc", nil); err != nil {
		t.Fatalf("SetRating: %v", err)
	}
	if !strings.Contains(raw, `"rating":null`) {
		t.Fatalf("body = %q, want explicit null rating", raw)
	}
}

func TestErrorResponseSurfacesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"could not parse search tags"}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	_, err := client.SearchFiles(context.Background(), []any{"system:inbox"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "could not parse search tags") {
		t.Fatalf("message = %q", apiErr.Message)
	}
	if !errors.Is(err, services.ErrAPI) {
		t.Fatal("error should match services.ErrAPI")
	}
}

func TestConnectionFailureMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(srv.URL, "key", nil)
	_, err := client.GetServices(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", apiErr.StatusCode)
	}
	if !errors.Is(err, services.ErrConnection) {
		t.Fatal("error should match services.ErrConnection")
	}
}

func TestUnconfiguredClientRefusesCalls(t *testing.T) {
	client := New("", "", nil)
	if client.Configured() {
		t.Fatal("empty client reported configured")
	}
	_, err := client.GetServices(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestBaseURLDefaultsScheme(t *testing.T) {
	client := New("localhost:45869/", "key", nil)
	if got := client.BaseURL(); got != "http://localhost:45869" {
		t.Fatalf("BaseURL = %q", got)
	}
}

func TestEmptyBodySuccessTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, "key", srv.Client())
	if err := client.MigrateFiles(context.Background(), []string{"abc"}, "dest"); err != nil {
		t.Fatalf("MigrateFiles: %v", err)
	}
}
