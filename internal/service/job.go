package service

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/sumire/autopost/internal/domain"
)

// CreateJobInput describes a generic job. Payload must be a JSON object
// when present; it is interpreted by the processor for Type.
type CreateJobInput struct {
	Type        domain.JobType  `json:"type" validate:"required"`
	Subject     string          `json:"subject" validate:"max=500"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
}

// JobService is the operator surface over generic jobs. Types are not
// checked against the registry; an unknown type fails when it is run.
type JobService struct {
	jobs JobStore
	logs JobLog
}

func NewJobService(jobs JobStore, logs JobLog) *JobService {
	return &JobService{jobs: jobs, logs: logs}
}

func (s *JobService) Create(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	payload := bytes.TrimSpace(in.Payload)
	if len(payload) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
			return nil, &domain.ValidationError{Field: "payload", Message: "must be a JSON object"}
		}
	}
	job := domain.Job{
		Type:     in.Type,
		Subject:  in.Subject,
		Payload:  payload,
		Priority: in.Priority,
	}
	if in.ScheduledAt != nil {
		job.ScheduledAt = in.ScheduledAt.UTC()
	}
	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	s.logs.Info(ctx, created.ID, "created "+string(created.Type)+" job")
	return created, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobs.Get(ctx, id)
}

func (s *JobService) List(ctx context.Context, f domain.ListFilter) ([]domain.Job, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "unknown status " + string(f.Status)}
	}
	return s.jobs.List(ctx, f)
}

// Retry resets a failed job to pending.
func (s *JobService) Retry(ctx context.Context, id string) error {
	if err := s.jobs.Retry(ctx, id); err != nil {
		return err
	}
	s.logs.Info(ctx, id, "retry requested")
	return nil
}

func (s *JobService) Delete(ctx context.Context, id string) error {
	return s.jobs.Delete(ctx, id)
}

func (s *JobService) Logs(ctx context.Context, id string) ([]domain.LogEntry, error) {
	if _, err := s.jobs.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.logs.List(ctx, id)
}
