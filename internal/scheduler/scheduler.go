// Package scheduler runs persisted cron jobs and the built-in maintenance
// jobs. Scheduled prompts execute through a headless agent session: no
// user is present, so confirm-tier tool calls are blocked outright.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"hearth/internal/store"
)

const (
	cleanupSpec = "0 3 * * *" // daily at 03:00
	decaySpec   = "0 4 1 * *" // monthly on the 1st at 04:00

	jobTimeout = 10 * time.Minute
)

// Runner executes one scheduled prompt headlessly.
type Runner func(ctx context.Context, jobID, prompt string) error

// Maintenance is the store surface the built-in jobs need.
type Maintenance interface {
	CleanupOldData(now time.Time) (conversations, traces int64, err error)
	DecayProfileConfidence(now time.Time) (int64, error)
	ListJobs() ([]store.ScheduledJob, error)
}

// Scheduler wraps a cron runner with job persistence awareness.
type Scheduler struct {
	cron   *cronlib.Cron
	runner Runner
	maint  Maintenance
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]cronlib.EntryID
}

// New creates a scheduler. runner executes user-scheduled prompts.
func New(runner Runner, maint Maintenance, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cronlib.New(),
		runner:  runner,
		maint:   maint,
		logger:  logger,
		entries: make(map[string]cronlib.EntryID),
	}
}

// Start loads persisted jobs, registers the maintenance jobs, and starts
// the cron loop.
func (s *Scheduler) Start() error {
	jobs, err := s.maint.ListJobs()
	if err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}
	for _, j := range jobs {
		if err := s.AddJob(j); err != nil {
			s.logger.Warn("skipping unparseable persisted job",
				zap.String("job_id", j.JobID),
				zap.String("cron_expr", j.CronExpr),
				zap.Error(err))
		}
	}

	if _, err := s.cron.AddFunc(cleanupSpec, s.runCleanup); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}
	if _, err := s.cron.AddFunc(decaySpec, s.runDecay); err != nil {
		return fmt.Errorf("failed to register decay job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// AddJob registers a persisted job with the live cron loop.
func (s *Scheduler) AddJob(j store.ScheduledJob) error {
	id, err := s.cron.AddFunc(j.CronExpr, func() { s.runJob(j) })
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[j.JobID] = id
	s.mu.Unlock()
	return nil
}

// RemoveJob unregisters a job. Unknown ids are ignored.
func (s *Scheduler) RemoveJob(jobID string) {
	s.mu.Lock()
	id, ok := s.entries[jobID]
	if ok {
		delete(s.entries, jobID)
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(id)
	}
}

func (s *Scheduler) runJob(j store.ScheduledJob) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	s.logger.Info("running scheduled job", zap.String("job_id", j.JobID))
	if err := s.runner(ctx, j.JobID, j.Prompt); err != nil {
		s.logger.Warn("scheduled job failed", zap.String("job_id", j.JobID), zap.Error(err))
	}
}

func (s *Scheduler) runCleanup() {
	convs, traces, err := s.maint.CleanupOldData(time.Now())
	if err != nil {
		s.logger.Warn("cleanup job failed", zap.Error(err))
		return
	}
	s.logger.Info("cleanup job finished",
		zap.Int64("conversations_removed", convs),
		zap.Int64("traces_removed", traces))
}

func (s *Scheduler) runDecay() {
	removed, err := s.maint.DecayProfileConfidence(time.Now())
	if err != nil {
		s.logger.Warn("decay job failed", zap.Error(err))
		return
	}
	s.logger.Info("decay job finished", zap.Int64("facts_removed", removed))
}
