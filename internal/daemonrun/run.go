// Package daemonrun assembles and runs the butler daemon process. It is
// shared by the butlerd binary and the hidden "butler daemon" command.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"butler/internal/config"
	"butler/internal/daemon"
	"butler/internal/daemonctl"
	"butler/internal/ipc"
	"butler/internal/logging"
	"butler/internal/notifications"
	"butler/internal/orchestrator"
	"butler/internal/preflight"
	"butler/internal/rules"
	"butler/internal/scheduler"
	"butler/internal/services/hydrus"
	"butler/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	SocketPath  string
	LogLevel    string
	Development bool
}

// Run starts the butler daemon runtime loop and blocks until the
// process receives SIGINT/SIGTERM or a Shutdown RPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Logging.Dir, fmt.Sprintf("butler-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Logging.Dir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update butler.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Logging.Dir, Pattern: "butler-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Logging.Dir, daemonctl.PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflightSnapshot(signalCtx, logger, cfg)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	registry := rules.NewRegistry(cfg.Rules.Path, st, logger)
	if _, err := registry.Sync(signalCtx); err != nil {
		logger.Warn("initial rule sync failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "rule_sync_failed"),
			logging.String(logging.FieldErrorHint, "check the rules file for syntax errors"))
	}

	client := hydrus.NewClient(cfg)
	orch := orchestrator.New(client, st, cfg, logger)
	notifier := notifications.NewService(cfg)
	runLock := &sync.Mutex{}
	sched := scheduler.New(cfg, registry, orch, st, logger,
		scheduler.WithNotifier(notifier),
		scheduler.WithRunLock(runLock))

	d, err := daemon.New(cfg, st, registry, client, orch, sched, runLock, logger, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	d.SetShutdownFunc(cancel)

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Logging.Dir, "butler.sock")
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("scheduler start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scheduler_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and database access"))
	}

	<-signalCtx.Done()
	logger.Info("butler daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "butler.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logPreflightSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, result := range preflight.RunAll(checkCtx, cfg) {
		attrs := []any{
			logging.String(logging.FieldEventType, "preflight_check"),
			logging.String("check", result.Name),
			logging.Bool("passed", result.Passed),
			logging.String("detail", result.Detail),
		}
		switch {
		case result.Passed:
			logger.Info("preflight check passed", attrs...)
		case result.Optional:
			logger.Warn("optional preflight check failed", attrs...)
		default:
			logger.Error("preflight check failed", attrs...)
		}
	}
}
