package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"butler/internal/config"
	"butler/internal/daemon"
	"butler/internal/ipc"
	"butler/internal/logging"
	"butler/internal/orchestrator"
	"butler/internal/rules"
	"butler/internal/scheduler"
	"butler/internal/services/hydrus"
	"butler/internal/store"
	"butler/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	logPath    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

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

	logPath := filepath.Join(cfg.Logging.Dir, "butler-test.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "butler", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

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

	d, err := daemon.New(cfg, st, registry, client, orch, sched, runLock, logger, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Logging.Dir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[hydrus]\napi_url = %q\napi_key = %q\n\n[rules]\npath = %q\n\n[storage]\ndatabase_path = %q\n\n[logging]\nlog_dir = %q\n",
		cfg.Hydrus.APIURL,
		cfg.Hydrus.APIKey,
		cfg.Rules.Path,
		cfg.Storage.DatabasePath,
		cfg.Logging.Dir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
