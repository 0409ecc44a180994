package ipc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"butler/internal/daemon"
	"butler/internal/ipc"
	"butler/internal/logging"
	"butler/internal/orchestrator"
	"butler/internal/rules"
	"butler/internal/scheduler"
	"butler/internal/services/hydrus"
	"butler/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	hydrusSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/get_services":
			json.NewEncoder(w).Encode(map[string]any{"services": map[string]any{
				"dest1": map[string]any{"name": "archive", "type": 2, "type_pretty": "local file domain"},
			}})
		case "/get_files/search_files":
			json.NewEncoder(w).Encode(map[string]any{"hashes": []string{}})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	}))
	t.Cleanup(hydrusSrv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithHydrusURL(hydrusSrv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	rule := rules.Rule{
		ID:         "rule-1",
		Name:       "archive inbox",
		Importance: 1,
		Conditions: rules.Conditions{rules.BooleanCondition{Flag: "inbox", Value: true}},
		Action:     rules.AddToAction{DestinationServiceKeys: rules.ServiceKeyList{"dest1"}},
	}
	if err := rules.SaveDocument(cfg.Rules.Path, []rules.Rule{rule}); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	registry := rules.NewRegistry(cfg.Rules.Path, st, logger)
	if _, err := registry.Sync(context.Background()); err != nil {
		t.Fatalf("registry.Sync: %v", err)
	}

	client := hydrus.NewClient(cfg)
	orch := orchestrator.New(client, st, cfg, logger)
	runLock := &sync.Mutex{}
	sched := scheduler.New(cfg, registry, orch, st, logger, scheduler.WithRunLock(runLock))

	logPath := filepath.Join(cfg.Logging.Dir, "ipc-test.log")
	d, err := daemon.New(cfg, st, registry, client, orch, sched, runLock, logger, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Logging.Dir, "butler.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	rpcClient, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		rpcClient.Close()
	})

	startResp, err := rpcClient.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := rpcClient.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected scheduler to be running")
	}
	if status.Counts.Rules != 1 {
		t.Fatalf("expected 1 rule, got %d", status.Counts.Rules)
	}
	if status.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), status.PID)
	}

	rulesResp, err := rpcClient.Rules()
	if err != nil {
		t.Fatalf("Rules RPC failed: %v", err)
	}
	if len(rulesResp.Rules) != 1 || rulesResp.Rules[0].ID != "rule-1" {
		t.Fatalf("unexpected rules response: %#v", rulesResp.Rules)
	}
	if rulesResp.Rules[0].ActionKind() != rules.ActionAddTo {
		t.Fatalf("action did not survive the wire: %#v", rulesResp.Rules[0].Action)
	}

	servicesResp, err := rpcClient.Services()
	if err != nil {
		t.Fatalf("Services RPC failed: %v", err)
	}
	if len(servicesResp.Services) != 1 || servicesResp.Services[0].Name != "archive" {
		t.Fatalf("unexpected services response: %#v", servicesResp.Services)
	}

	runResp, err := rpcClient.RunRule(ipc.RunRuleRequest{Rule: "archive inbox"})
	if err != nil {
		t.Fatalf("RunRule RPC failed: %v", err)
	}
	if !runResp.Result.Success {
		t.Fatalf("expected run to succeed, got summary %q", runResp.Result.Summary)
	}

	searchResp, err := rpcClient.SearchRuns(ipc.RunSearchRequest{Rule: "rule-1", Frame: "all"})
	if err != nil {
		t.Fatalf("SearchRuns RPC failed: %v", err)
	}
	if searchResp.Total != 1 || len(searchResp.Runs) != 1 {
		t.Fatalf("expected 1 run in history, got total=%d len=%d", searchResp.Total, len(searchResp.Runs))
	}

	detailsResp, err := rpcClient.RunDetails(runResp.Result.RunID)
	if err != nil {
		t.Fatalf("RunDetails RPC failed: %v", err)
	}
	if detailsResp.Run.ID != runResp.Result.RunID {
		t.Fatalf("unexpected run details: %#v", detailsResp.Run)
	}

	estimateResp, err := rpcClient.Estimate(ipc.EstimateRequest{Rule: "rule-1"})
	if err != nil {
		t.Fatalf("Estimate RPC failed: %v", err)
	}
	if estimateResp.Estimate.RawMatches != 0 {
		t.Fatalf("expected zero raw matches, got %d", estimateResp.Estimate.RawMatches)
	}

	batchResp, err := rpcClient.RunAll()
	if err != nil {
		t.Fatalf("RunAll RPC failed: %v", err)
	}
	if batchResp.Totals.RulesProcessed != 1 {
		t.Fatalf("expected 1 rule processed, got %d", batchResp.Totals.RulesProcessed)
	}
	if !strings.HasPrefix(batchResp.ParentRunID, "manual_all_rules_run_") {
		t.Fatalf("unexpected parent run id %q", batchResp.ParentRunID)
	}

	if _, err := rpcClient.RunSet("no-such-set"); err == nil {
		t.Fatal("expected RunSet with unknown set to fail")
	}

	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	logResp, err := rpcClient.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		resp, err := rpcClient.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 500})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
		close(followDone)
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		_, _ = f.WriteString("fourth\n")
		_ = f.Close()
	} else {
		t.Fatalf("append log: %v", err)
	}

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}

	pruneResp, err := rpcClient.PruneLogs()
	if err != nil {
		t.Fatalf("PruneLogs RPC failed: %v", err)
	}
	if pruneResp.Removed != 0 {
		t.Fatalf("expected 0 pruned events, got %d", pruneResp.Removed)
	}

	notifyResp, err := rpcClient.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message == "" {
		t.Fatalf("expected unsent notification with message, got %#v", notifyResp)
	}

	stopResp, err := rpcClient.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := rpcClient.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected scheduler to be stopped")
	}
}
