package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"butler/internal/config"
	"butler/internal/logging"
	"butler/internal/notifications"
	"butler/internal/orchestrator"
	"butler/internal/rules"
	"butler/internal/scheduler"
	"butler/internal/services/hydrus"
	"butler/internal/store"
)

// Daemon assembles the rule engine behind the IPC surface and enforces
// single-instance execution through a file lock. Start and Stop drive
// the scheduler loop; manual runs go through the shared run lock so
// they serialize with scheduled executions on the governance store.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *rules.Registry
	client   *hydrus.Client
	orch     *orchestrator.Orchestrator
	sched    *scheduler.Scheduler
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock
	runLock  sync.Locker

	running  atomic.Bool
	shutdown func()
}

// New constructs a daemon over initialized dependencies. The run lock
// must be the same locker handed to the scheduler so manual and
// scheduled executions serialize per rule.
func New(cfg *config.Config, st *store.Store, registry *rules.Registry, client *hydrus.Client, orch *orchestrator.Orchestrator, sched *scheduler.Scheduler, runLock sync.Locker, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || st == nil || registry == nil || client == nil || orch == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, registry, client, orchestrator, and scheduler")
	}
	if runLock == nil {
		runLock = &sync.Mutex{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Logging.Dir, "butlerd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		registry: registry,
		client:   client,
		orch:     orch,
		sched:    sched,
		notifier: notifications.NewService(cfg),
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		runLock:  runLock,
	}, nil
}

// Start acquires the instance lock and launches the scheduler loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("scheduler already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another butler daemon instance is already running")
	}

	if err := d.sched.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("butler daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop pauses the scheduler loop and releases the instance lock. Manual
// runs over IPC still work while stopped.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.sched.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("butler daemon stopped")
}

// Close stops the scheduler and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the scheduler loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// SetShutdownFunc registers the callback invoked when an IPC client
// asks the whole process to exit.
func (d *Daemon) SetShutdownFunc(fn func()) {
	d.shutdown = fn
}

// RequestShutdown asks the daemon process to exit. The runtime wires
// this to its signal context so shutdown follows the same path as
// SIGTERM.
func (d *Daemon) RequestShutdown() {
	d.logger.Info("shutdown requested via IPC")
	if d.shutdown != nil {
		d.shutdown()
	}
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// TestNotification sends a test event through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	err := d.notifier.Publish(ctx, notifications.EventTest, nil)
	if err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
