package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sumire/autopost/internal/content"
	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/worker"
)

// TopicPayload is the payload of a GENERATE_TOPIC job.
type TopicPayload struct {
	Keyword  string   `json:"keyword"`
	Count    int      `json:"count"`
	Schedule bool     `json:"schedule"`
	Interval string   `json:"interval,omitempty"` // Go duration, default 1h
	Priority int      `json:"priority"`
	BlogID   string   `json:"blogId,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// TopicProcessor generates topic ideas and optionally schedules one
// BLOG_POST job per topic.
type TopicProcessor struct {
	jobs   JobStore
	logs   JobLog
	topics TopicGenerator
	logger *slog.Logger
	now    func() time.Time
}

func NewTopicProcessor(jobs JobStore, logs JobLog, topics TopicGenerator, logger *slog.Logger) *TopicProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicProcessor{jobs: jobs, logs: logs, topics: topics, logger: logger, now: time.Now}
}

func (p *TopicProcessor) CanProcess(job *domain.Job) bool {
	return job.Type == domain.JobTypeGenerateTopic
}

func (p *TopicProcessor) Process(ctx context.Context, jobID string) (worker.Result, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return worker.Result{}, err
	}
	var payload TopicPayload
	if err := decodePayload(job, &payload); err != nil {
		return worker.Result{}, err
	}
	if payload.Keyword == "" {
		payload.Keyword = job.Subject
	}
	if payload.Keyword == "" {
		return worker.Result{}, fmt.Errorf("%w: topic job needs a keyword", domain.ErrInvalidInput)
	}
	interval := time.Hour
	if payload.Interval != "" {
		d, err := time.ParseDuration(payload.Interval)
		if err != nil || d < 0 {
			return worker.Result{}, fmt.Errorf("%w: interval %q", domain.ErrInvalidInput, payload.Interval)
		}
		interval = d
	}

	topics, err := p.topics.GenerateTopics(ctx, content.TopicRequest{Keyword: payload.Keyword, Count: payload.Count})
	if err != nil {
		return worker.Result{}, fmt.Errorf("generate topics: %w", err)
	}
	titles := make([]string, 0, len(topics))
	for _, t := range topics {
		titles = append(titles, t.Title)
	}
	p.logs.Info(ctx, jobID, fmt.Sprintf("generated %d topics", len(topics)))

	if !payload.Schedule {
		return worker.Result{Message: fmt.Sprintf("generated %d topics: %s", len(topics), strings.Join(titles, ", "))}, nil
	}

	start := p.now().UTC()
	batch := make([]domain.Job, 0, len(topics))
	for i, t := range topics {
		body, err := json.Marshal(BlogPayload{Keyword: t.Keyword, Title: t.Title, BlogID: payload.BlogID, Labels: payload.Labels})
		if err != nil {
			return worker.Result{}, fmt.Errorf("encode blog payload: %w", err)
		}
		batch = append(batch, domain.Job{
			Type:        domain.JobTypeBlogPost,
			Subject:     t.Title,
			Payload:     body,
			Priority:    payload.Priority,
			ScheduledAt: start.Add(time.Duration(i) * interval),
		})
	}
	created, err := p.jobs.CreateBatch(ctx, batch)
	if err != nil {
		return worker.Result{}, fmt.Errorf("schedule blog posts: %w", err)
	}
	for _, j := range created {
		p.logs.Info(ctx, jobID, fmt.Sprintf("scheduled %q as %s at %s", j.Subject, j.ID, j.ScheduledAt.Format(time.RFC3339)))
	}
	return worker.Result{Message: fmt.Sprintf("generated %d topics, scheduled %d posts", len(topics), len(topics))}, nil
}
