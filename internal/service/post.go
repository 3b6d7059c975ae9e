package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumire/autopost/internal/automation"
	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/postqueue"
	"github.com/sumire/autopost/internal/publish"
)

// CreatePostInput describes a forum post to schedule.
type CreatePostInput struct {
	Destination   string     `json:"destination"`
	TargetURL     string     `json:"target_url" validate:"required,url"`
	Title         string     `json:"title" validate:"required,max=200"`
	ContentHTML   string     `json:"content_html" validate:"required"`
	Nickname      string     `json:"nickname" validate:"required_without=LoginID"`
	Password      string     `json:"password" validate:"required_without=LoginID"`
	Headtext      string     `json:"headtext"`
	ImagePaths    []string   `json:"image_paths" validate:"dive,required"`
	LoginID       string     `json:"login_id"`
	LoginPassword string     `json:"login_password"`
	Priority      int        `json:"priority"`
	ScheduledAt   *time.Time `json:"scheduled_at"`
}

// Enqueuer accepts due posts for serial execution.
type Enqueuer interface {
	Enqueue(item postqueue.Item) error
}

// PostServiceConfig holds the post poller settings.
type PostServiceConfig struct {
	PollInterval time.Duration
	Headless     bool
}

// PostService manages forum post jobs and feeds due ones to the post queue.
type PostService struct {
	posts    PostStore
	logs     JobLog
	queue    Enqueuer
	interval time.Duration
	headless bool
	logger   *slog.Logger
	now      func() time.Time
}

func NewPostService(posts PostStore, logs JobLog, queue Enqueuer, cfg PostServiceConfig, logger *slog.Logger) *PostService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &PostService{
		posts:    posts,
		logs:     logs,
		queue:    queue,
		interval: cfg.PollInterval,
		headless: cfg.Headless,
		logger:   logger,
		now:      time.Now,
	}
}

// Create validates in and stores it as a pending post job.
func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*domain.PostJob, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	job := domain.PostJob{
		Destination:   in.Destination,
		TargetURL:     in.TargetURL,
		Title:         in.Title,
		ContentHTML:   in.ContentHTML,
		Nickname:      optional(in.Nickname),
		Password:      optional(in.Password),
		Headtext:      optional(in.Headtext),
		ImagePaths:    domain.StringList(in.ImagePaths),
		LoginID:       optional(in.LoginID),
		LoginPassword: optional(in.LoginPassword),
		Priority:      in.Priority,
	}
	if in.ScheduledAt != nil {
		job.ScheduledAt = in.ScheduledAt.UTC()
	}
	created, err := s.posts.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	s.logs.Info(ctx, created.ID, fmt.Sprintf("scheduled %q for %s", created.Title, created.ScheduledAt.Format(time.RFC3339)))
	return created, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*domain.PostJob, error) {
	return s.posts.Get(ctx, id)
}

func (s *PostService) List(ctx context.Context, f domain.ListFilter) ([]domain.PostJob, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "unknown status " + string(f.Status)}
	}
	return s.posts.List(ctx, f)
}

// Retry resets a failed post to pending. The next poll picks it up.
func (s *PostService) Retry(ctx context.Context, id string) error {
	if err := s.posts.Retry(ctx, id); err != nil {
		return err
	}
	s.logs.Info(ctx, id, "retry requested")
	return nil
}

func (s *PostService) Delete(ctx context.Context, id string) error {
	return s.posts.Delete(ctx, id)
}

func (s *PostService) Logs(ctx context.Context, id string) ([]domain.LogEntry, error) {
	if _, err := s.posts.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.logs.List(ctx, id)
}

// Poll enqueues every due post job and returns how many were handed over.
func (s *PostService) Poll(ctx context.Context) (int, error) {
	due, err := s.posts.ListDue(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list due posts: %w", err)
	}
	n := 0
	for i := range due {
		if err := s.queue.Enqueue(ItemFromJob(&due[i], s.headless)); err != nil {
			if errors.Is(err, postqueue.ErrClosed) {
				return n, nil
			}
			return n, fmt.Errorf("enqueue %s: %w", due[i].ID, err)
		}
		n++
	}
	return n, nil
}

// Run polls on the configured interval until ctx is cancelled.
func (s *PostService) Run(ctx context.Context) error {
	s.logger.Info("post poller started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if n, err := s.Poll(ctx); err != nil {
			s.logger.Error("post poll failed", "error", err)
		} else if n > 0 {
			s.logger.Info("due posts enqueued", "count", n)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("post poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ItemFromJob rebuilds the automaton input from a stored post job.
func ItemFromJob(job *domain.PostJob, headless bool) postqueue.Item {
	return postqueue.Item{
		ID: job.ID,
		Params: automation.PostParams{
			Destination:   job.Destination,
			TargetURL:     job.TargetURL,
			Title:         job.Title,
			ContentHTML:   job.ContentHTML,
			Nickname:      deref(job.Nickname),
			Password:      deref(job.Password),
			Headtext:      deref(job.Headtext),
			ImagePaths:    append([]string(nil), job.ImagePaths...),
			LoginID:       deref(job.LoginID),
			LoginPassword: deref(job.LoginPassword),
			Headless:      headless,
		},
	}
}

// PostRunner executes queued items through the forum publisher, streaming
// automaton progress into the job log.
type PostRunner struct {
	publisher Publisher
	logs      JobLog
}

func NewPostRunner(publisher Publisher, logs JobLog) *PostRunner {
	return &PostRunner{publisher: publisher, logs: logs}
}

// Run satisfies postqueue.RunFunc.
func (r *PostRunner) Run(ctx context.Context, item postqueue.Item) (domain.JobResult, error) {
	params := item.Params
	params.Progress = func(msg string) {
		r.logs.Info(ctx, item.ID, msg)
	}
	out, err := r.publisher.Publish(ctx, publish.Forum{Params: params})
	if err != nil {
		return domain.JobResult{}, err
	}
	return domain.JobResult{URL: out.URL, Message: out.Message}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
