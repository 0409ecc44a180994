package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"butler/internal/actions"
	"butler/internal/config"
	"butler/internal/logging"
	"butler/internal/notifications"
	"butler/internal/orchestrator"
	"butler/internal/rules"
	"butler/internal/store"
)

// RuleRunner executes one prepared rule run. *orchestrator.Orchestrator
// satisfies it.
type RuleRunner interface {
	ExecuteRule(ctx context.Context, exec *actions.Execution) orchestrator.Result
}

// Scheduler owns the automation tick loop and the daily pruning job.
type Scheduler struct {
	cfg      *config.Config
	registry *rules.Registry
	runner   RuleRunner
	store    *store.Store
	notifier notifications.Service
	runLock  sync.Locker
	logger   *slog.Logger

	tick         time.Duration
	initialDelay time.Duration

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	cron     *cron.Cron
	lastTick time.Time
	lastErr  error
}

// Option configures optional scheduler behavior.
type Option func(*options)

type options struct {
	notifier notifications.Service
	runLock  sync.Locker
}

// WithNotifier replaces the config-derived notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// WithRunLock shares the daemon-wide run mutex so scheduled and manual
// executions serialize on the governance store.
func WithRunLock(lock sync.Locker) Option {
	return func(o *options) {
		o.runLock = lock
	}
}

// New constructs a scheduler over the registry, the runner, and the
// store. It does not start ticking until Start.
func New(cfg *config.Config, registry *rules.Registry, runner RuleRunner, st *store.Store, logger *slog.Logger, opts ...Option) *Scheduler {
	settings := &options{}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.notifier == nil {
		settings.notifier = notifications.NewService(cfg)
	}
	if settings.runLock == nil {
		settings.runLock = &sync.Mutex{}
	}

	return &Scheduler{
		cfg:          cfg,
		registry:     registry,
		runner:       runner,
		store:        st,
		notifier:     settings.notifier,
		runLock:      settings.runLock,
		logger:       logging.NewComponentLogger(logger, "scheduler"),
		tick:         time.Duration(cfg.Scheduler.TickSeconds) * time.Second,
		initialDelay: time.Duration(cfg.Scheduler.InitialDelaySeconds) * time.Second,
	}
}

// Start begins the tick loop and arms the pruning job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.startPruneJob()
	go s.run(runCtx)
	return nil
}

// Stop cancels the tick loop, waits for an in-flight tick to unwind,
// and disarms the pruning job. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.stopPruneJob()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.logger.Info("scheduler started",
		logging.Duration("tick", s.tick),
		logging.Duration("initial_delay", s.initialDelay),
	)

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		s.runTick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	start := time.Now().UTC()
	err := s.tickOnce(ctx, start)

	s.mu.Lock()
	s.lastTick = start
	if err != nil && !errors.Is(err, context.Canceled) {
		s.lastErr = err
	}
	s.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduled tick failed", logging.Error(err))
	}
}

// StatusSummary reports scheduler liveness for the status surface.
type StatusSummary struct {
	Running     bool      `json:"running"`
	LastTick    time.Time `json:"last_tick"`
	LastError   string    `json:"last_error,omitempty"`
	PruningJob  bool      `json:"pruning_job"`
	NextPruning time.Time `json:"next_pruning"`
}

// Status returns the latest scheduler information.
func (s *Scheduler) Status() StatusSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := StatusSummary{Running: s.running, LastTick: s.lastTick}
	if s.lastErr != nil {
		summary.LastError = s.lastErr.Error()
	}
	if s.cron != nil {
		summary.PruningJob = true
		if entries := s.cron.Entries(); len(entries) > 0 {
			summary.NextPruning = entries[0].Next
		}
	}
	return summary
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
