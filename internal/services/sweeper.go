package services

import (
	"github.com/huangang/tokengate/internal/config"
	"github.com/huangang/tokengate/pkg/logger"
	"github.com/robfig/cron/v3"
)

// SweepScheduler periodically enqueues a global expired-token sweep. The
// schedule is advisory housekeeping: verification and issuance filter expired
// records on every read, so a missed or late sweep never extends a token's
// life.
type SweepScheduler struct {
	cron  *cron.Cron
	queue TaskQueue
}

// StartSweepScheduler starts the cron-driven sweep if enabled. Returns nil
// when sweeping is disabled (lazy-only cleanup).
func StartSweepScheduler(cfg *config.SweepConfig, queue TaskQueue) *SweepScheduler {
	if !cfg.Enabled {
		logger.Info().Msg("expired-token sweep scheduler disabled, relying on lazy cleanup")
		return nil
	}

	s := &SweepScheduler{cron: cron.New(), queue: queue}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.enqueueSweep); err != nil {
		logger.Error().Err(err).Str("schedule", cfg.Schedule).Msg("invalid sweep schedule, scheduler not started")
		return nil
	}
	s.cron.Start()
	logger.Info().Str("schedule", cfg.Schedule).Msg("expired-token sweep scheduler started")
	return s
}

func (s *SweepScheduler) enqueueSweep() {
	task := NewSweepTask()
	if err := s.queue.Enqueue(task); err != nil {
		logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to enqueue sweep task")
	}
}

// Stop halts the scheduler. Already-enqueued sweeps still run.
func (s *SweepScheduler) Stop() {
	if s == nil {
		return
	}
	s.cron.Stop()
}
