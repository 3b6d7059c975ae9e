package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/autopost/internal/domain"
)

const postJobColumns = `id, destination, target_url, title, content_html, nickname, password, headtext,
	image_paths, login_id, login_password, status, priority, scheduled_at, started_at, completed_at,
	result_url, result_msg, error_message, created_at, updated_at`

// PostJobRepository is the persistent store for destination post jobs.
type PostJobRepository struct {
	lifecycle
}

// NewPostJobRepository creates a new PostJobRepository.
func NewPostJobRepository(db *sqlx.DB) *PostJobRepository {
	return &PostJobRepository{lifecycle{db: db, table: "post_jobs", now: utcNow}}
}

// Create inserts a new pending post job.
func (r *PostJobRepository) Create(ctx context.Context, job domain.PostJob) (*domain.PostJob, error) {
	now := r.now()
	job.ID = uuid.NewString()
	job.Status = domain.JobStatusPending
	if job.Destination == "" {
		job.Destination = domain.DestinationForum
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	job.ScheduledAt = job.ScheduledAt.UTC()
	if job.ImagePaths == nil {
		job.ImagePaths = domain.StringList{}
	}
	job.StartedAt, job.CompletedAt = nil, nil
	job.ResultURL, job.ResultMsg, job.ErrorMessage = nil, nil, nil
	job.CreatedAt, job.UpdatedAt = now, now

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO post_jobs (id, destination, target_url, title, content_html, nickname, password, headtext,
		                        image_paths, login_id, login_password, status, priority, scheduled_at,
		                        created_at, updated_at)
		 VALUES (:id, :destination, :target_url, :title, :content_html, :nickname, :password, :headtext,
		         :image_paths, :login_id, :login_password, :status, :priority, :scheduled_at,
		         :created_at, :updated_at)`, job)
	if err != nil {
		return nil, fmt.Errorf("create post job: %w", err)
	}
	return &job, nil
}

// Get retrieves a post job by its ID.
func (r *PostJobRepository) Get(ctx context.Context, id string) (*domain.PostJob, error) {
	var job domain.PostJob
	err := r.db.GetContext(ctx, &job, r.db.Rebind(`SELECT `+postJobColumns+` FROM post_jobs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("post job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get post job %s: %w", id, err)
	}
	return &job, nil
}

// List returns post jobs newest first, optionally filtered by status.
func (r *PostJobRepository) List(ctx context.Context, f domain.ListFilter) ([]domain.PostJob, error) {
	query := `SELECT ` + postJobColumns + ` FROM post_jobs`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, f.EffectiveLimit())

	jobs := []domain.PostJob{}
	if err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list post jobs: %w", err)
	}
	return jobs, nil
}

// ListDue returns pending post jobs that are due, in claim order.
func (r *PostJobRepository) ListDue(ctx context.Context, now time.Time) ([]domain.PostJob, error) {
	jobs := []domain.PostJob{}
	err := r.db.SelectContext(ctx, &jobs, r.db.Rebind(
		`SELECT `+postJobColumns+` FROM post_jobs
		 WHERE status = ? AND scheduled_at <= ?
		 ORDER BY priority DESC, scheduled_at ASC`),
		domain.JobStatusPending, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list due post jobs: %w", err)
	}
	return jobs, nil
}

// ListProcessing returns the ids of post jobs left in processing.
func (r *PostJobRepository) ListProcessing(ctx context.Context) ([]string, error) {
	return r.ProcessingIDs(ctx)
}
