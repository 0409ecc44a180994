package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"butler/internal/logging"
)

// startPruneJob arms the daily duplicate-event sweep when log pruning
// is enabled in config.
func (s *Scheduler) startPruneJob() {
	if !s.cfg.Pruning.EnableLogPruning {
		return
	}

	spec := fmt.Sprintf("0 %d * * *", s.cfg.Pruning.Hour)
	runner := cron.New()
	if _, err := runner.AddFunc(spec, s.runPrune); err != nil {
		s.logger.Error("failed to arm log pruning job",
			logging.String("spec", spec),
			logging.Error(err),
		)
		return
	}
	runner.Start()

	s.mu.Lock()
	s.cron = runner
	s.mu.Unlock()

	s.logger.Info("log pruning armed",
		logging.String("spec", spec),
		logging.Int("keep_oldest", s.cfg.Pruning.KeepOldest),
		logging.Int("keep_newest", s.cfg.Pruning.KeepNewest),
	)
}

// stopPruneJob disarms the sweep and waits for a running invocation to
// finish.
func (s *Scheduler) stopPruneJob() {
	s.mu.Lock()
	runner := s.cron
	s.cron = nil
	s.mu.Unlock()
	if runner == nil {
		return
	}
	done := runner.Stop()
	<-done.Done()
}

// runPrune executes one duplicate-event sweep.
func (s *Scheduler) runPrune() {
	deleted, err := s.store.PruneDuplicateEvents(context.Background(), s.cfg.Pruning.KeepOldest, s.cfg.Pruning.KeepNewest)
	if err != nil {
		s.setLastError(err)
		s.logger.Error("log pruning failed", logging.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("log pruning removed duplicate file events", logging.Int64("deleted", deleted))
		return
	}
	s.logger.Info("log pruning found no duplicate file events")
}
