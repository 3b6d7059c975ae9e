package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/sumire/autopost/internal/domain"
)

const jobColumns = `id, type, subject, payload, status, priority, scheduled_at, started_at, completed_at,
	result_url, result_msg, error_message, created_at, updated_at`

// JobRepository is the persistent store for generic jobs.
type JobRepository struct {
	lifecycle
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{lifecycle{db: db, table: "jobs", now: utcNow}}
}

// Create inserts a new pending job. A zero ScheduledAt means "now".
func (r *JobRepository) Create(ctx context.Context, job domain.Job) (*domain.Job, error) {
	job = r.prepare(job, r.now())
	if err := insertJob(ctx, r.db, job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateBatch inserts jobs in one transaction: either all of them are
// created or none is.
func (r *JobRepository) CreateBatch(ctx context.Context, jobs []domain.Job) ([]domain.Job, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create jobs: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	out := make([]domain.Job, 0, len(jobs))
	for _, job := range jobs {
		job = r.prepare(job, now)
		if err := insertJob(ctx, tx, job); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create jobs: %w", err)
	}
	return out, nil
}

func (r *JobRepository) prepare(job domain.Job, now time.Time) domain.Job {
	job.ID = uuid.NewString()
	job.Status = domain.JobStatusPending
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	job.ScheduledAt = job.ScheduledAt.UTC()
	if len(job.Payload) == 0 {
		job.Payload = types.JSONText("{}")
	}
	job.StartedAt, job.CompletedAt = nil, nil
	job.ResultURL, job.ResultMsg, job.ErrorMessage = nil, nil, nil
	job.CreatedAt, job.UpdatedAt = now, now
	return job
}

func insertJob(ctx context.Context, db sqlx.ExtContext, job domain.Job) error {
	_, err := sqlx.NamedExecContext(ctx, db,
		`INSERT INTO jobs (id, type, subject, payload, status, priority, scheduled_at, created_at, updated_at)
		 VALUES (:id, :type, :subject, :payload, :status, :priority, :scheduled_at, :created_at, :updated_at)`, job)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a job by its ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	err := r.db.GetContext(ctx, &job, r.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// List returns jobs newest first, optionally filtered by status.
func (r *JobRepository) List(ctx context.Context, f domain.ListFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, f.EffectiveLimit())

	jobs := []domain.Job{}
	if err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListDue returns pending jobs whose scheduled time has passed, highest
// priority first and oldest schedule first within a priority.
func (r *JobRepository) ListDue(ctx context.Context, now time.Time) ([]domain.Job, error) {
	jobs := []domain.Job{}
	err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ? AND scheduled_at <= ?
		 ORDER BY priority DESC, scheduled_at ASC`),
		domain.JobStatusPending, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	return jobs, nil
}

// ListProcessing returns the ids of jobs left in processing.
func (r *JobRepository) ListProcessing(ctx context.Context) ([]string, error) {
	return r.ProcessingIDs(ctx)
}
