package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/autopost/internal/domain"
)

// JobLogRepository appends and reads job log entries.
type JobLogRepository struct {
	db *sqlx.DB
}

// NewJobLogRepository creates a new JobLogRepository.
func NewJobLogRepository(db *sqlx.DB) *JobLogRepository {
	return &JobLogRepository{db: db}
}

// Append stores an entry. CreatedAt must be set by the caller.
func (r *JobLogRepository) Append(ctx context.Context, entry domain.LogEntry) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO job_logs (job_id, level, message, created_at) VALUES (?, ?, ?, ?)`),
		entry.JobID, entry.Level, entry.Message, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append log for %s: %w", entry.JobID, err)
	}
	return nil
}

// ListByJob returns a job's entries in the order they were written.
func (r *JobLogRepository) ListByJob(ctx context.Context, jobID string) ([]domain.LogEntry, error) {
	entries := []domain.LogEntry{}
	err := r.db.SelectContext(ctx, &entries, r.db.Rebind(
		`SELECT id, job_id, level, message, created_at FROM job_logs WHERE job_id = ? ORDER BY id`), jobID)
	if err != nil {
		return nil, fmt.Errorf("list logs for %s: %w", jobID, err)
	}
	return entries, nil
}
