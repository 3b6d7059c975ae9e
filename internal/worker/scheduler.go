package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/autopost/internal/domain"
)

// JobStore is the part of the job repository the scheduler drives.
type JobStore interface {
	ListDue(ctx context.Context, now time.Time) ([]domain.Job, error)
	Claim(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id string, result domain.JobResult) error
	Fail(ctx context.Context, id string, message string) error
}

// JobLog receives the operator-visible trail of each job.
type JobLog interface {
	Info(ctx context.Context, jobID, msg string)
	Warn(ctx context.Context, jobID, msg string)
	Error(ctx context.Context, jobID, msg string)
}

// Scheduler polls the job store and executes due jobs one at a time.
type Scheduler struct {
	store    JobStore
	registry *Registry
	logs     JobLog
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(store JobStore, registry *Registry, logs JobLog, logger *slog.Logger, interval time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		store:    store,
		registry: registry,
		logs:     logs,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled. A job that already started is allowed
// to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick processes every job due now, sequentially in claim order. Failures
// of one job never stop the scan.
func (s *Scheduler) Tick(ctx context.Context) error {
	jobs, err := s.store.ListDue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list due jobs: %w", err)
	}
	for i := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runJob(ctx, &jobs[i])
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job *domain.Job) {
	won, err := s.store.Claim(ctx, job.ID)
	if err != nil {
		s.logger.Error("claim failed", "job_id", job.ID, "error", err)
		return
	}
	if !won {
		s.logger.Debug("job claimed elsewhere", "job_id", job.ID)
		return
	}

	// claimed jobs run to completion even if the scheduler is stopping
	runCtx := context.WithoutCancel(ctx)

	proc, ok := s.registry.Resolve(job)
	if !ok {
		s.fail(runCtx, job.ID, fmt.Sprintf("%s for job type %s", ErrNoProcessor, job.Type))
		return
	}

	s.logs.Info(runCtx, job.ID, fmt.Sprintf("started %s job", job.Type))
	start := time.Now()
	result, err := execute(runCtx, proc, job.ID)
	if err != nil {
		s.fail(runCtx, job.ID, err.Error())
		return
	}

	msg := result.Message
	if msg == "" {
		msg = "completed"
	}
	s.logs.Info(runCtx, job.ID, msg)
	if err := s.store.Complete(runCtx, job.ID, domain.JobResult{URL: result.URL, Message: result.Message}); err != nil {
		s.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	s.logger.Info("job completed", "job_id", job.ID, "type", job.Type, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) fail(ctx context.Context, jobID, message string) {
	s.logs.Error(ctx, jobID, message)
	if err := s.store.Fail(ctx, jobID, message); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

// execute runs the processor and converts a panic into an error.
func execute(ctx context.Context, proc Processor, jobID string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return proc.Process(ctx, jobID)
}
