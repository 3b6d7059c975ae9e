package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// JobStatus represents the lifecycle state of a job or post job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobType selects the processor that executes a job.
type JobType string

const (
	JobTypeBlogPost      JobType = "BLOG_POST"
	JobTypeGenerateTopic JobType = "GENERATE_TOPIC"
)

// InterruptedByRestart is the error message stamped on jobs recovered at startup.
const InterruptedByRestart = "interrupted by restart"

// Job is a unit of schedulable work.
type Job struct {
	ID           string         `json:"id" db:"id"`
	Type         JobType        `json:"type" db:"type"`
	Subject      string         `json:"subject" db:"subject"`
	Payload      types.JSONText `json:"payload,omitempty" db:"payload"`
	Status       JobStatus      `json:"status" db:"status"`
	Priority     int            `json:"priority" db:"priority"`
	ScheduledAt  time.Time      `json:"scheduled_at" db:"scheduled_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	ResultURL    *string        `json:"result_url,omitempty" db:"result_url"`
	ResultMsg    *string        `json:"result_msg,omitempty" db:"result_msg"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// JobResult is what a successful execution leaves on the record.
type JobResult struct {
	URL     string
	Message string
}

// ListFilter narrows job listings.
type ListFilter struct {
	Status JobStatus
	Limit  int
}

// EffectiveLimit clamps Limit to 1..500, defaulting to 100.
func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}
